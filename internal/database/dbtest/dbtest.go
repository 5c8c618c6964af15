// Package dbtest abre bancos SQLite em memória já migrados para os testes.
package dbtest

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"iazeconnect/internal/database"
)

// Open returns an isolated, migrated in-memory database for t.
func Open(t testing.TB) *gorm.DB {
	t.Helper()

	dsn := "file:" + uuid.NewString() + "?mode=memory&cache=shared"
	db, err := database.Connect("sqlite", dsn)
	require.NoError(t, err)
	require.NoError(t, database.Migrate(db))

	t.Cleanup(func() {
		if sqlDB, err := db.DB(); err == nil {
			sqlDB.Close()
		}
	})
	return db
}

// RejectMessageText makes every insert into messages with the given text
// fail, so tests can break one message in the middle of a batch.
func RejectMessageText(t testing.TB, db *gorm.DB, text string) {
	t.Helper()
	require.NoError(t, db.Exec(
		"CREATE TRIGGER reject_message_text BEFORE INSERT ON messages WHEN NEW.text = '"+text+"' "+
			"BEGIN SELECT RAISE(ABORT, 'mensagem rejeitada'); END").Error)
}
