package main

import (
	"flag"
	"fmt"
	"log"

	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"iazeconnect/internal/config"
	"iazeconnect/internal/database"
	"iazeconnect/internal/logger"
	"iazeconnect/internal/repositories"
)

// verify varre o registro de conexões procurando QR/telefone incompatíveis
// com o status.
func main() {
	fix := flag.Bool("fix", false, "corrige os registros inconsistentes")
	flag.Parse()

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

	connectionRepo := repositories.NewConnectionRepository(db)
	connections, err := connectionRepo.ListAll()
	if err != nil {
		zap.L().Fatal("Falha ao listar conexões", zap.Error(err))
	}

	violations := 0
	for i := range connections {
		connection := &connections[i]
		violation := connection.ConsistencyViolation()
		if violation == "" {
			continue
		}
		violations++
		fmt.Printf("❌ %s/%s (%s): %s\n", connection.TenantID, connection.InstanceName, connection.ID, violation)

		if *fix {
			connection.Normalize()
			if err := connectionRepo.Save(connection); err != nil {
				zap.L().Error("Falha ao corrigir conexão", zap.String("id", connection.ID), zap.Error(err))
				continue
			}
			fmt.Printf("   ✅ corrigida\n")
		}
	}

	fmt.Printf("%d conexões verificadas, %d inconsistentes\n", len(connections), violations)
}
