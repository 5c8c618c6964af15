package handlers_test

import (
	"net/http"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"iazeconnect/internal/flow"
	"iazeconnect/internal/models"
	"iazeconnect/internal/services"
)

func TestFlow12OverHTTP(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(t, http.MethodPost, "/api/vendas/flow12/sessions", "", nil)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	var reply services.FlowReply
	decode(t, rec, &reply)
	assert.Equal(t, flow.StepWaitingWhatsApp, reply.State)
	assert.Equal(t, flow.ReplyAskContact, reply.Reply)
	sessionID := reply.SessionID
	path := "/api/vendas/flow12/sessions/" + sessionID + "/messages"

	rec = env.do(t, http.MethodPost, path, "", gin.H{"text": "(11) 98888-7777"})
	require.Equal(t, http.StatusOK, rec.Code)
	reply = services.FlowReply{}
	decode(t, rec, &reply)
	assert.Equal(t, flow.StepWaitingPassword, reply.State)

	rec = env.do(t, http.MethodPost, path, "", gin.H{"text": "42"})
	require.Equal(t, http.StatusOK, rec.Code)
	reply = services.FlowReply{}
	decode(t, rec, &reply)
	assert.Equal(t, flow.StepComplete, reply.State)
	require.NotNil(t, reply.Credentials)
	assert.Equal(t, "teste123", reply.Credentials.Username)
	assert.Nil(t, reply.Redirect)

	rec = env.do(t, http.MethodPost, path, "", gin.H{"text": "obrigado"})
	require.Equal(t, http.StatusOK, rec.Code)
	reply = services.FlowReply{}
	decode(t, rec, &reply)
	require.NotNil(t, reply.Redirect)
	assert.Equal(t, "support", reply.Redirect.Target)
	require.NotNil(t, reply.Redirect.TicketID)

	tickets, err := env.container.TicketService.List("t1", models.TicketStatusOpen)
	require.NoError(t, err)
	require.Len(t, tickets, 1)
	assert.Equal(t, *reply.Redirect.TicketID, tickets[0].ID)
	assert.Equal(t, models.TicketOriginFlow12, tickets[0].Origin)

	rec = env.do(t, http.MethodGet, "/api/vendas/flow12/sessions/"+sessionID, "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var view services.FlowSessionView
	decode(t, rec, &view)
	assert.Equal(t, string(flow.StepComplete), view.Session.Step)
	assert.NotEmpty(t, view.Messages)
}

func TestFlow12UnknownSession(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(t, http.MethodPost, "/api/vendas/flow12/sessions/nao-existe/messages", "", gin.H{"text": "oi"})
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = env.do(t, http.MethodGet, "/api/vendas/flow12/sessions/nao-existe", "", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestFlow12StartWithTenant(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(t, http.MethodPost, "/api/vendas/flow12/sessions", "", gin.H{"tenant_id": "t9"})
	require.Equal(t, http.StatusCreated, rec.Code)
	var reply services.FlowReply
	decode(t, rec, &reply)

	view, err := env.container.FlowService.Get(reply.SessionID)
	require.NoError(t, err)
	assert.Equal(t, "t9", view.Session.TenantID)
}
