package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"iazeconnect/internal/config"
	"iazeconnect/internal/database"
	"iazeconnect/internal/handlers"
	"iazeconnect/internal/logger"
	"iazeconnect/internal/router"
	"iazeconnect/internal/services"
)

func main() {
	// Carregar variáveis de ambiente
	if err := godotenv.Load("../../.env"); err != nil {
		if err := godotenv.Load(".env"); err != nil {
			log.Println("Arquivo .env não encontrado, usando variáveis do sistema")
		}
	}

	cfg := config.Load()

	zapLogger, err := logger.Init(cfg)
	if err != nil {
		log.Fatal("Falha ao configurar logger:", err)
	}
	defer zapLogger.Sync()

	// Conectar ao banco de dados
	db, err := database.Connect(cfg.DatabaseDriver, cfg.DatabaseURL)
	if err != nil {
		zap.L().Fatal("Falha ao conectar com o banco de dados", zap.Error(err))
	}

	// Executar migrações
	if err := database.Migrate(db); err != nil {
		zap.L().Fatal("Falha ao executar migrações", zap.Error(err))
	}

	// Conectar ao Redis
	redisClient := database.ConnectRedis(cfg.RedisURL)

	hub := handlers.NewHub()
	go hub.Run()

	// Inicializar serviços
	container := services.NewContainer(db, redisClient, cfg, hub)

	if cfg.Environment == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	srv := &http.Server{
		Addr:    ":" + cfg.Port,
		Handler: router.Setup(container, hub),
	}

	if err := container.Poller.Start(); err != nil {
		zap.L().Fatal("Falha ao iniciar o agendador", zap.Error(err))
	}

	go func() {
		zap.L().Info("Servidor iniciando", zap.String("port", cfg.Port))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			zap.L().Fatal("Falha ao iniciar servidor", zap.Error(err))
		}
	}()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	<-ctx.Done()

	zap.L().Info("Encerrando servidor...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	container.Poller.Stop(shutdownCtx)
	if err := srv.Shutdown(shutdownCtx); err != nil {
		zap.L().Error("Falha ao encerrar servidor", zap.Error(err))
	}
	hub.Stop()

	if redisClient != nil {
		_ = redisClient.Close()
	}
	if sqlDB, err := db.DB(); err == nil {
		_ = sqlDB.Close()
	}
	zap.L().Info("Servidor encerrado")
}
