package services

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"iazeconnect/internal/flow"
	"iazeconnect/internal/models"
)

func runHappyPath(t *testing.T, f *fixture) *FlowReply {
	t.Helper()
	ctx := context.Background()

	start, err := f.flow.Start(ctx, "t1")
	require.NoError(t, err)
	assert.Equal(t, flow.StepWaitingWhatsApp, start.State)

	reply, err := f.flow.HandleMessage(ctx, start.SessionID, "11988887777")
	require.NoError(t, err)
	assert.Equal(t, flow.StepWaitingPassword, reply.State)

	reply, err = f.flow.HandleMessage(ctx, start.SessionID, "42")
	require.NoError(t, err)
	assert.Equal(t, flow.StepGeneratingCredentials, reply.State)
	require.NotNil(t, reply.Credentials)
	assert.Equal(t, "u1", reply.Credentials.Username)

	reply, err = f.flow.HandleMessage(ctx, start.SessionID, "instalar")
	require.NoError(t, err)
	return reply
}

func TestFlowHappyPathTransplantsHistory(t *testing.T) {
	f := newFixture(t)

	reply := runHappyPath(t, f)
	assert.Equal(t, flow.StepComplete, reply.State)
	require.NotNil(t, reply.Redirect)
	require.NotNil(t, reply.Redirect.TicketID)
	assert.Equal(t, 1, f.issuer.calls)

	view, err := f.flow.Get(reply.SessionID)
	require.NoError(t, err)
	assert.Equal(t, string(flow.StepComplete), view.Session.Step)
	assert.Equal(t, "42", *view.Session.PIN)
	assert.NotNil(t, view.Session.CredentialsIssuedAt)
	// saudação + 3 entradas do usuário + 3 respostas do bot
	require.Len(t, view.Messages, 7)

	var ticket models.Ticket
	require.NoError(t, f.db.Preload("Client").First(&ticket, "id = ?", *reply.Redirect.TicketID).Error)
	assert.Equal(t, models.TicketOriginFlow12, ticket.Origin)
	assert.Equal(t, models.TicketStatusOpen, ticket.Status)
	assert.Equal(t, "t1", ticket.TenantID)
	assert.Equal(t, "11988887777", ticket.Client.Phone)
	require.NotNil(t, ticket.Client.PIN)
	assert.Equal(t, "42", *ticket.Client.PIN)

	transplanted, err := f.support.ListMessages(ticket.ID)
	require.NoError(t, err)
	require.Len(t, transplanted, len(view.Messages))
	for i, original := range view.Messages {
		assert.Equal(t, original.Text, transplanted[i].Text)
		assert.Equal(t, original.FromType, transplanted[i].FromType)
		assert.True(t, original.CreatedAt.Equal(transplanted[i].CreatedAt))
	}
}

func TestFlowCompleteIsIdempotent(t *testing.T) {
	f := newFixture(t)
	reply := runHappyPath(t, f)
	before := f.count(t, &models.Message{})

	again, err := f.flow.HandleMessage(context.Background(), reply.SessionID, "oi?")
	require.NoError(t, err)
	assert.Equal(t, flow.StepComplete, again.State)
	assert.Equal(t, reply.Reply, again.Reply)
	assert.Equal(t, *reply.Redirect.TicketID, *again.Redirect.TicketID)

	assert.Equal(t, before, f.count(t, &models.Message{}))
	assert.EqualValues(t, 1, f.count(t, &models.Ticket{}))
	assert.Equal(t, 1, f.issuer.calls)
}

func TestFlowHandoffAfterTicketClosedOpensFreshTicket(t *testing.T) {
	f := newFixture(t)
	reply := runHappyPath(t, f)
	first := *reply.Redirect.TicketID

	require.NoError(t, f.db.Model(&models.Ticket{}).Where("id = ?", first).
		Update("status", models.TicketStatusClosed).Error)

	again, err := f.flow.HandleMessage(context.Background(), reply.SessionID, "voltei")
	require.NoError(t, err)
	require.NotNil(t, again.Redirect)
	require.NotNil(t, again.Redirect.TicketID)
	assert.NotEqual(t, first, *again.Redirect.TicketID)

	var ticket models.Ticket
	require.NoError(t, f.db.First(&ticket, "id = ?", *again.Redirect.TicketID).Error)
	assert.Equal(t, models.TicketStatusOpen, ticket.Status)

	transplanted, err := f.support.ListMessages(ticket.ID)
	require.NoError(t, err)
	assert.NotEmpty(t, transplanted)

	session, err := f.flows.GetSession(reply.SessionID)
	require.NoError(t, err)
	assert.Equal(t, ticket.ID, *session.HandoffTicketID)
	assert.Equal(t, 1, f.issuer.calls)
}

func TestFlowPINValidation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	start, err := f.flow.Start(ctx, "t1")
	require.NoError(t, err)
	_, err = f.flow.HandleMessage(ctx, start.SessionID, "11988887777")
	require.NoError(t, err)

	reply, err := f.flow.HandleMessage(ctx, start.SessionID, "123")
	require.NoError(t, err)
	assert.Equal(t, flow.StepWaitingPassword, reply.State)
	assert.Equal(t, flow.ReplyInvalidPIN, reply.Reply)
	assert.Zero(t, f.issuer.calls)
}

func TestFlowCredentialFailureStaysWaitingPassword(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.issuer.err = errors.New("503")

	start, err := f.flow.Start(ctx, "t1")
	require.NoError(t, err)
	_, err = f.flow.HandleMessage(ctx, start.SessionID, "11988887777")
	require.NoError(t, err)

	reply, err := f.flow.HandleMessage(ctx, start.SessionID, "42")
	require.NoError(t, err)
	assert.Equal(t, flow.StepWaitingPassword, reply.State)
	assert.Equal(t, flow.ReplyCredentialsFailed, reply.Reply)
	assert.Nil(t, reply.Credentials)

	session, err := f.flows.GetSession(start.SessionID)
	require.NoError(t, err)
	assert.Nil(t, session.PIN)
	assert.Nil(t, session.Username)

	// reenviar o PIN refaz a chamada inteira
	f.issuer.err = nil
	reply, err = f.flow.HandleMessage(ctx, start.SessionID, "42")
	require.NoError(t, err)
	assert.Equal(t, flow.StepGeneratingCredentials, reply.State)
	assert.Equal(t, 2, f.issuer.calls)
}

func TestFlowThrottleWithinWindowReusesCredentials(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	runHappyPath(t, f)

	f.issuer.credentials = flow.Credentials{Username: "u2", Password: "p2", URL: "http://y"}
	start, err := f.flow.Start(ctx, "t1")
	require.NoError(t, err)

	reply, err := f.flow.HandleMessage(ctx, start.SessionID, "(11) 98888-7777")
	require.NoError(t, err)
	assert.Equal(t, flow.StepComplete, reply.State)
	require.NotNil(t, reply.Credentials)
	assert.Equal(t, flow.Credentials{Username: "u1", Password: "p1", URL: "http://x"}, *reply.Credentials)
	assert.Equal(t, 1, f.issuer.calls)

	session, err := f.flows.GetSession(start.SessionID)
	require.NoError(t, err)
	assert.Nil(t, session.CredentialsIssuedAt)
}

func TestFlowThrottleIsTenantScoped(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	runHappyPath(t, f)

	start, err := f.flow.Start(ctx, "t2")
	require.NoError(t, err)

	reply, err := f.flow.HandleMessage(ctx, start.SessionID, "11988887777")
	require.NoError(t, err)
	assert.Equal(t, flow.StepWaitingPassword, reply.State)
	assert.Nil(t, reply.Credentials)
	assert.Equal(t, 1, f.issuer.calls)
}

func TestFlowThrottleExpiredCallsAPIAgain(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	first := runHappyPath(t, f)

	old := time.Now().UTC().Add(-25 * time.Hour)
	require.NoError(t, f.db.Model(&models.FlowSession{}).Where("id = ?", first.SessionID).
		Update("credentials_issued_at", old).Error)

	start, err := f.flow.Start(ctx, "t1")
	require.NoError(t, err)
	reply, err := f.flow.HandleMessage(ctx, start.SessionID, "11988887777")
	require.NoError(t, err)
	assert.Equal(t, flow.StepWaitingPassword, reply.State)

	reply, err = f.flow.HandleMessage(ctx, start.SessionID, "07")
	require.NoError(t, err)
	assert.Equal(t, flow.StepGeneratingCredentials, reply.State)
	assert.Equal(t, 2, f.issuer.calls)
}

func TestFlowHandoffFailureIsQueuedAndRetried(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	start, err := f.flow.Start(ctx, "t1")
	require.NoError(t, err)
	_, err = f.flow.HandleMessage(ctx, start.SessionID, "11988887777")
	require.NoError(t, err)
	_, err = f.flow.HandleMessage(ctx, start.SessionID, "42")
	require.NoError(t, err)

	// tabela de tickets indisponível durante o handoff
	require.NoError(t, f.db.Exec("ALTER TABLE tickets RENAME TO tickets_offline").Error)

	reply, err := f.flow.HandleMessage(ctx, start.SessionID, "instalar")
	require.NoError(t, err)
	assert.Equal(t, flow.StepComplete, reply.State)
	require.NotNil(t, reply.Redirect)
	assert.Nil(t, reply.Redirect.TicketID)

	pending, err := f.flows.ListUndeliveredHandoffs(10)
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Equal(t, start.SessionID, pending[0].FlowSessionID)

	delivered, err := f.handoff.RetryPending(ctx)
	require.NoError(t, err)
	assert.Zero(t, delivered)

	require.NoError(t, f.db.Exec("ALTER TABLE tickets_offline RENAME TO tickets").Error)
	delivered, err = f.handoff.RetryPending(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, delivered)

	pending, err = f.flows.ListUndeliveredHandoffs(10)
	require.NoError(t, err)
	assert.Empty(t, pending)

	session, err := f.flows.GetSession(start.SessionID)
	require.NoError(t, err)
	require.NotNil(t, session.HandoffTicketID)
	assert.EqualValues(t, 1, f.count(t, &models.Ticket{}))
}

func TestFlowUnknownSession(t *testing.T) {
	f := newFixture(t)

	_, err := f.flow.HandleMessage(context.Background(), "nope", "oi")
	assert.ErrorIs(t, err, ErrFlowSessionNotFound)

	_, err = f.flow.Get("nope")
	assert.ErrorIs(t, err, ErrFlowSessionNotFound)
}

func TestFlowStartUsesDefaultTenant(t *testing.T) {
	f := newFixture(t)

	reply, err := f.flow.Start(context.Background(), "")
	require.NoError(t, err)
	assert.Equal(t, flow.ReplyAskContact, reply.Reply)

	session, err := f.flows.GetSession(reply.SessionID)
	require.NoError(t, err)
	assert.Equal(t, "tenant-default", session.TenantID)
}
