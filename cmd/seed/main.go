package main

import (
	"flag"
	"fmt"
	"log"
	"time"

	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"iazeconnect/internal/config"
	"iazeconnect/internal/database"
	"iazeconnect/internal/logger"
	"iazeconnect/internal/models"
	"iazeconnect/internal/repositories"
	"iazeconnect/internal/services"
)

func main() {
	tenantID := flag.String("tenant", "demo", "tenant da conexão de demonstração")
	instance := flag.String("instance", "demo-whatsapp", "nome da instância na Evolution API")
	role := flag.String("role", "ADMIN", "papel do token gerado")
	ttl := flag.Duration("ttl", 30*24*time.Hour, "validade do token")
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
		zap.L().Fatal("Falha ao conectar com o banco de dados", zap.Error(err))
	}
	if err := database.Migrate(db); err != nil {
		zap.L().Fatal("Falha ao executar migrações", zap.Error(err))
	}

	connectionRepo := repositories.NewConnectionRepository(db)
	connection, err := connectionRepo.GetByInstance(*tenantID, *instance)
	if err != nil {
		zap.L().Fatal("Falha ao buscar conexão", zap.Error(err))
	}
	if connection == nil {
		slot, err := connectionRepo.NextSlot(*tenantID)
		if err != nil {
			zap.L().Fatal("Falha ao calcular slot", zap.Error(err))
		}
		// o poller recria a instância no gateway no primeiro ciclo
		connection = &models.Connection{
			TenantID:     *tenantID,
			InstanceName: *instance,
			Slot:         slot,
			Status:       models.ConnectionStatusDisconnected,
		}
		if err := connectionRepo.Create(connection); err != nil {
			zap.L().Fatal("Falha ao criar conexão", zap.Error(err))
		}
		zap.L().Info("Conexão de demonstração criada", zap.String("id", connection.ID), zap.Int("slot", slot))
	} else {
		zap.L().Info("Conexão de demonstração já existe", zap.String("id", connection.ID))
	}

	token, err := services.NewAuthService(cfg.JWTSecret).IssueToken(*tenantID, "seed-"+*tenantID, *role, *ttl)
	if err != nil {
		zap.L().Fatal("Falha ao gerar token", zap.Error(err))
	}

	fmt.Println("Tenant:   ", *tenantID)
	fmt.Println("Instância:", connection.InstanceName)
	fmt.Println("Token:    ", token)
}
