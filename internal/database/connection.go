package database

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// Connect conecta ao banco de dados (PostgreSQL em produção, SQLite em desenvolvimento)
func Connect(driver, databaseURL string) (*gorm.DB, error) {
	config := &gorm.Config{
		Logger:  logger.Default.LogMode(logger.Warn),
		NowFunc: func() time.Time { return time.Now().UTC() },
	}

	var dialector gorm.Dialector
	switch driver {
	case "postgres", "postgresql", "":
		dialector = postgres.Open(databaseURL)
	case "sqlite", "sqlite3":
		dialector = sqlite.Open(databaseURL)
	default:
		return nil, fmt.Errorf("driver de banco não suportado: %s", driver)
	}

	db, err := gorm.Open(dialector, config)
	if err != nil {
		return nil, err
	}

	// Configurar pool de conexões
	sqlDB, err := db.DB()
	if err != nil {
		return nil, err
	}

	if driver == "sqlite" || driver == "sqlite3" {
		// SQLite serializa escritas; uma conexão evita "database is locked"
		sqlDB.SetMaxOpenConns(1)
	} else {
		sqlDB.SetMaxIdleConns(10)
		sqlDB.SetMaxOpenConns(100)
	}

	zap.S().Infof("[DATABASE] Conectado ao banco de dados (%s)", dialector.Name())
	return db, nil
}

// ConnectRedis conecta ao Redis (opcional)
func ConnectRedis(redisURL string) *redis.Client {
	if redisURL == "" {
		zap.L().Info("[REDIS] URL não configurada, continuando sem Redis")
		return nil
	}

	opt, err := redis.ParseURL(redisURL)
	if err != nil {
		zap.L().Warn("[REDIS] Erro ao parsear URL, continuando sem Redis", zap.Error(err))
		return nil
	}

	client := redis.NewClient(opt)

	// Testar conexão
	if err := client.Ping(context.Background()).Err(); err != nil {
		zap.L().Warn("[REDIS] Erro ao conectar, continuando sem Redis", zap.Error(err))
		return nil
	}

	zap.L().Info("[REDIS] Conectado ao Redis")
	return client
}
