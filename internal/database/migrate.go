package database

import (
	"go.uber.org/zap"
	"gorm.io/gorm"

	"iazeconnect/internal/models"
)

// Migrate executa as migrações do banco de dados
func Migrate(db *gorm.DB) error {
	zap.L().Info("[MIGRATION] Starting database migration...")

	err := db.AutoMigrate(
		// Registro de conexões WhatsApp
		&models.Connection{},

		// Atendimento
		&models.Department{},
		&models.Client{},
		&models.Ticket{},
		&models.Message{},

		// Fluxo 12
		&models.FlowSession{},
		&models.FlowMessage{},
		&models.PendingHandoff{},
	)
	if err != nil {
		zap.L().Error("[MIGRATION] AutoMigrate error", zap.Error(err))
		return err
	}

	zap.L().Info("[MIGRATION] Migration completed successfully")
	return nil
}
