package main

import (
	"log"

	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"iazeconnect/internal/config"
	"iazeconnect/internal/database"
	"iazeconnect/internal/logger"
)

func main() {
	if err := godotenv.Load("../../.env"); err != nil {
		log.Println("Arquivo .env não encontrado, usando variáveis do sistema")
	}

	cfg := config.Load()
	zapLogger, err := logger.Init(cfg)
	if err != nil {
		log.Fatal("Falha ao configurar logger:", err)
	}
	defer zapLogger.Sync()

	db, err := database.Connect(cfg.DatabaseDriver, cfg.DatabaseURL)
	if err != nil {
		zap.L().Fatal("Falha ao conectar com o banco de dados", zap.Error(err))
	}

	zap.L().Info("=== EXECUTANDO MIGRAÇÃO ===")
	if err := database.Migrate(db); err != nil {
		zap.L().Fatal("Falha ao executar migrações", zap.Error(err))
	}
	zap.L().Info("Migração concluída")
}
