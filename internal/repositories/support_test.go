package repositories

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"iazeconnect/internal/database/dbtest"
	"iazeconnect/internal/models"
)

func TestResolveIsIdempotent(t *testing.T) {
	repo := NewSupportRepository(dbtest.Open(t))

	d1, err := repo.ResolveDepartment("t1", "WHATSAPP 1")
	require.NoError(t, err)
	d2, err := repo.ResolveDepartment("t1", "WHATSAPP 1")
	require.NoError(t, err)
	assert.Equal(t, d1.ID, d2.ID)

	other, err := repo.ResolveDepartment("t2", "WHATSAPP 1")
	require.NoError(t, err)
	assert.NotEqual(t, d1.ID, other.ID)

	name := "Maria"
	c1, err := repo.ResolveClient("t1", "5511999999999", &name)
	require.NoError(t, err)
	renamed := "Outra"
	c2, err := repo.ResolveClient("t1", "5511999999999", &renamed)
	require.NoError(t, err)
	assert.Equal(t, c1.ID, c2.ID)
	assert.Equal(t, "Maria", *c2.Name)

	t1, created, err := repo.ResolveOpenTicket("t1", c1.ID, OpenTicketAttrs{DepartmentID: &d1.ID, Origin: models.TicketOriginWhatsApp})
	require.NoError(t, err)
	assert.True(t, created)
	t2, created, err := repo.ResolveOpenTicket("t1", c1.ID, OpenTicketAttrs{Origin: models.TicketOriginFlow12})
	require.NoError(t, err)
	assert.False(t, created)
	assert.Equal(t, t1.ID, t2.ID)
	assert.Equal(t, models.TicketOriginWhatsApp, t2.Origin)
}

func TestInsertMessageDeduplicatesByExternalID(t *testing.T) {
	db := dbtest.Open(t)
	repo := NewSupportRepository(db)

	client, err := repo.ResolveClient("t1", "5511999999999", nil)
	require.NoError(t, err)
	ticket, _, err := repo.ResolveOpenTicket("t1", client.ID, OpenTicketAttrs{Origin: models.TicketOriginWhatsApp})
	require.NoError(t, err)

	externalID := "m1"
	at := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	inserted, err := repo.InsertMessage(&models.Message{TenantID: "t1", TicketID: ticket.ID, FromType: models.SenderClient, Text: "Olá", ExternalID: &externalID, CreatedAt: at})
	require.NoError(t, err)
	assert.True(t, inserted)

	inserted, err = repo.InsertMessage(&models.Message{TenantID: "t1", TicketID: ticket.ID, FromType: models.SenderClient, Text: "Olá", ExternalID: &externalID})
	require.NoError(t, err)
	assert.False(t, inserted)

	// mensagens sem id externo nunca colidem
	for i := 0; i < 2; i++ {
		inserted, err = repo.InsertMessage(&models.Message{TenantID: "t1", TicketID: ticket.ID, FromType: models.SenderAgent, Text: "resposta"})
		require.NoError(t, err)
		assert.True(t, inserted)
	}

	exists, err := repo.MessageExists("t1", "m1")
	require.NoError(t, err)
	assert.True(t, exists)
	exists, err = repo.MessageExists("t2", "m1")
	require.NoError(t, err)
	assert.False(t, exists)

	messages, err := repo.ListMessages(ticket.ID)
	require.NoError(t, err)
	assert.Len(t, messages, 3)

	stored, err := repo.GetTicket("t1", ticket.ID)
	require.NoError(t, err)
	require.NotNil(t, stored.LastMessageAt)
	require.NotNil(t, stored.Client)
	assert.Equal(t, "5511999999999", stored.Client.Phone)
}

func TestSetClientPIN(t *testing.T) {
	repo := NewSupportRepository(dbtest.Open(t))

	client, err := repo.ResolveClient("t1", "11988887777", nil)
	require.NoError(t, err)
	require.NoError(t, repo.SetClientPIN(client, "42"))

	again, err := repo.ResolveClient("t1", "11988887777", nil)
	require.NoError(t, err)
	require.NotNil(t, again.PIN)
	assert.Equal(t, "42", *again.PIN)
}
