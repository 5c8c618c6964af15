package main

import (
	"flag"
	"log"
	"time"

	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"iazeconnect/internal/config"
	"iazeconnect/internal/database"
	"iazeconnect/internal/logger"
	"iazeconnect/internal/repositories"
)

func main() {
	days := flag.Int("days", 7, "idade mínima, em dias, das sessões abandonadas")
	flag.Parse()

	// Carregar variáveis de ambiente
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
		zap.L().Fatal("Falha ao conectar com o banco", zap.Error(err))
	}

	flowRepo := repositories.NewFlowRepository(db)
	before := time.Now().UTC().Add(-time.Duration(*days) * 24 * time.Hour)

	// 1. Sessões do fluxo que nunca receberam credenciais
	deleted, err := flowRepo.DeleteStaleSessions(before)
	if err != nil {
		zap.L().Error("Erro ao remover sessões abandonadas", zap.Error(err))
	} else {
		zap.L().Info("Sessões abandonadas removidas", zap.Int64("count", deleted))
	}

	// 2. Handoffs já entregues
	purged, err := flowRepo.DeleteDeliveredHandoffs(before)
	if err != nil {
		zap.L().Error("Erro ao remover handoffs entregues", zap.Error(err))
	} else {
		zap.L().Info("Handoffs entregues removidos", zap.Int64("count", purged))
	}

	zap.L().Info("Limpeza concluída")
}
