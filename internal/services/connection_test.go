package services

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"iazeconnect/internal/gateway"
	"iazeconnect/internal/models"
)

func TestDeletedSessionSelfHealsWithoutFetching(t *testing.T) {
	f := newFixture(t)
	connection := f.addConnection(t, "t1", "x", models.ConnectionStatusConnected)
	f.gateway.messages["x"] = []gateway.Message{inbound("m1", customerJid, "Olá", false)}
	// sem estado no fake: o gateway responde 404

	f.poller.RunOnce(context.Background())

	assert.Equal(t, []string{"x"}, f.gateway.created)
	assert.Empty(t, f.gateway.fetched)

	stored := f.reload(t, connection)
	assert.Equal(t, models.ConnectionStatusConnecting, stored.Status)
	require.NotNil(t, stored.QRCode)
	assert.Equal(t, f.gateway.qr, *stored.QRCode)
	assert.Nil(t, stored.PhoneNumber)
	assert.Zero(t, f.count(t, &models.Message{}))
}

func TestRecreateFailureMarksDeleted(t *testing.T) {
	f := newFixture(t)
	f.gateway.createErr = errors.New("gateway recusou")
	connection := f.addConnection(t, "t1", "x", models.ConnectionStatusConnected)

	_, err := f.connection.Reconcile(context.Background(), connection)
	assert.Error(t, err)
	assert.Equal(t, models.ConnectionStatusDeleted, f.reload(t, connection).Status)

	// o próximo ciclo tenta de novo
	f.gateway.createErr = nil
	status, err := f.connection.Reconcile(context.Background(), connection)
	require.NoError(t, err)
	assert.Equal(t, models.ConnectionStatusConnecting, status)
	assert.Len(t, f.gateway.created, 2)
}

func TestReconcileUpdatesDriftedStatus(t *testing.T) {
	f := newFixture(t)
	connection := f.addConnection(t, "t1", "loja", models.ConnectionStatusConnecting)
	f.gateway.setState("loja", models.ConnectionStatusConnected, "5511999999999")

	status, err := f.connection.Reconcile(context.Background(), connection)
	require.NoError(t, err)
	assert.Equal(t, models.ConnectionStatusConnected, status)

	stored := f.reload(t, connection)
	assert.Equal(t, models.ConnectionStatusConnected, stored.Status)
	assert.Nil(t, stored.QRCode)
	require.NotNil(t, stored.PhoneNumber)
	assert.Equal(t, "5511999999999", *stored.PhoneNumber)
	assert.NotNil(t, stored.LastActivity)

	f.gateway.setState("loja", models.ConnectionStatusDisconnected, "")
	status, err = f.connection.Reconcile(context.Background(), connection)
	require.NoError(t, err)
	assert.Equal(t, models.ConnectionStatusDisconnected, status)

	stored = f.reload(t, connection)
	assert.Nil(t, stored.PhoneNumber)
	assert.Nil(t, stored.QRCode)
}

func TestReconcileUnreachableGatewayMutatesNothing(t *testing.T) {
	f := newFixture(t)
	connection := f.addConnection(t, "t1", "loja", models.ConnectionStatusConnecting)
	before := f.reload(t, connection)
	f.gateway.setState("loja", models.ConnectionStatusError, "")

	_, err := f.connection.Reconcile(context.Background(), connection)
	assert.Error(t, err)

	after := f.reload(t, connection)
	assert.Equal(t, before.Status, after.Status)
	assert.Equal(t, before.QRCode, after.QRCode)
	assert.Equal(t, before.UpdatedAt.Unix(), after.UpdatedAt.Unix())
	assert.Empty(t, f.gateway.created)
}

func TestPollerIsolatesConnections(t *testing.T) {
	f := newFixture(t)
	f.addConnection(t, "t1", "down", models.ConnectionStatusConnected)
	up := f.addConnection(t, "t1", "up", models.ConnectionStatusConnected)
	f.gateway.setState("down", models.ConnectionStatusError, "")
	f.gateway.setState("up", models.ConnectionStatusConnected, "5511000000000")
	f.gateway.messages["up"] = []gateway.Message{inbound("m1", customerJid, "Olá", false)}

	f.poller.RunOnce(context.Background())

	assert.Equal(t, []string{"up"}, f.gateway.fetched)
	assert.EqualValues(t, 1, f.count(t, &models.Message{}))
	assert.Equal(t, 1, f.reload(t, up).MessagesReceivedToday)
}

func TestPollerSkipsIngestWhenNotConnected(t *testing.T) {
	f := newFixture(t)
	f.addConnection(t, "t1", "loja", models.ConnectionStatusConnecting)
	f.gateway.setState("loja", models.ConnectionStatusConnecting, "")

	f.poller.RunOnce(context.Background())
	assert.Empty(t, f.gateway.fetched)
}

func TestCreateConnection(t *testing.T) {
	f := newFixture(t)

	first, err := f.connection.Create(context.Background(), "t1", &models.CreateConnectionRequest{InstanceName: "loja-1"})
	require.NoError(t, err)
	assert.Equal(t, models.ConnectionStatusConnecting, first.Status)
	assert.Equal(t, 1, first.Slot)
	require.NotNil(t, first.QRCode)

	second, err := f.connection.Create(context.Background(), "t1", &models.CreateConnectionRequest{InstanceName: "loja-2"})
	require.NoError(t, err)
	assert.Equal(t, 2, second.Slot)
	assert.Equal(t, "WHATSAPP 2", second.DepartmentName())

	_, err = f.connection.Create(context.Background(), "t1", &models.CreateConnectionRequest{InstanceName: "loja-1"})
	assert.ErrorIs(t, err, ErrConnectionExists)

	other, err := f.connection.Create(context.Background(), "t2", &models.CreateConnectionRequest{InstanceName: "loja-1"})
	require.NoError(t, err)
	assert.Equal(t, 1, other.Slot)
}

func TestCreateConnectionGatewayFailure(t *testing.T) {
	f := newFixture(t)
	f.gateway.createErr = errors.New("indisponível")

	_, err := f.connection.Create(context.Background(), "t1", &models.CreateConnectionRequest{InstanceName: "loja"})
	assert.Error(t, err)
	assert.Zero(t, f.count(t, &models.Connection{}))
}

func TestRefreshQR(t *testing.T) {
	f := newFixture(t)
	connection := f.addConnection(t, "t1", "loja", models.ConnectionStatusDisconnected)
	f.gateway.qr = "data:image/png;base64,NEW"

	refreshed, err := f.connection.RefreshQR(context.Background(), "t1", connection.ID)
	require.NoError(t, err)
	assert.Equal(t, models.ConnectionStatusConnecting, refreshed.Status)
	assert.Equal(t, "data:image/png;base64,NEW", *refreshed.QRCode)

	f.gateway.qrErr = gateway.ErrAlreadyConnected
	_, err = f.connection.RefreshQR(context.Background(), "t1", connection.ID)
	assert.ErrorIs(t, err, ErrAlreadyConnected)

	connected := f.addConnection(t, "t1", "ok", models.ConnectionStatusConnected)
	_, err = f.connection.RefreshQR(context.Background(), "t1", connected.ID)
	assert.ErrorIs(t, err, ErrAlreadyConnected)

	_, err = f.connection.RefreshQR(context.Background(), "t2", connection.ID)
	assert.ErrorIs(t, err, ErrConnectionNotFound)
}

func TestDeleteConnection(t *testing.T) {
	f := newFixture(t)
	connection := f.addConnection(t, "t1", "loja", models.ConnectionStatusConnected)

	require.NoError(t, f.connection.Delete(context.Background(), "t1", connection.ID))
	assert.Equal(t, []string{"loja"}, f.gateway.deleted)
	assert.Zero(t, f.count(t, &models.Connection{}))

	assert.ErrorIs(t, f.connection.Delete(context.Background(), "t1", connection.ID), ErrConnectionNotFound)
}

func TestApplyRemoteStateKeepsInvariant(t *testing.T) {
	f := newFixture(t)
	connection := f.addConnection(t, "t1", "loja", models.ConnectionStatusConnecting)

	require.NoError(t, f.connection.ApplyRemoteState(connection, models.ConnectionStatusConnected, "5511999999999"))
	stored := f.reload(t, connection)
	assert.Equal(t, models.ConnectionStatusConnected, stored.Status)
	assert.Nil(t, stored.QRCode)
	assert.Equal(t, "5511999999999", *stored.PhoneNumber)

	// QR atrasado não derruba uma sessão conectada
	require.NoError(t, f.connection.ApplyQRCode(stored, "data:image/png;base64,LATE"))
	assert.Nil(t, f.reload(t, connection).QRCode)

	require.NoError(t, f.connection.ApplyRemoteState(stored, models.ConnectionStatusDisconnected, ""))
	stored = f.reload(t, connection)
	assert.Empty(t, stored.ConsistencyViolation())
	assert.Nil(t, stored.PhoneNumber)
}

func TestResetDailyCounters(t *testing.T) {
	f := newFixture(t)
	connection := f.addConnection(t, "t1", "loja", models.ConnectionStatusConnected)
	require.NoError(t, f.connections.IncrementReceived(connection.ID))
	require.NoError(t, f.connections.IncrementSent(connection.ID))

	affected, err := f.connection.ResetDailyCounters()
	require.NoError(t, err)
	assert.EqualValues(t, 1, affected)

	stored := f.reload(t, connection)
	assert.Zero(t, stored.MessagesReceivedToday)
	assert.Zero(t, stored.MessagesSentToday)
}
