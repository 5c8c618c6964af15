package services

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"iazeconnect/internal/database/dbtest"
	"iazeconnect/internal/flow"
	"iazeconnect/internal/gateway"
	"iazeconnect/internal/models"
	"iazeconnect/internal/repositories"
)

type fakeGateway struct {
	mu sync.Mutex

	states    map[string]gateway.State
	messages  map[string][]gateway.Message
	qr        string
	qrErr     error
	fetchErr  error
	createErr error
	sendErr   error

	created []string
	fetched []string
	deleted []string
	sent    []string
}

func newFakeGateway() *fakeGateway {
	return &fakeGateway{
		states:   map[string]gateway.State{},
		messages: map[string][]gateway.Message{},
		qr:       "data:image/png;base64,QR",
	}
}

func (g *fakeGateway) setState(instance string, status models.ConnectionStatus, phone string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	var err error
	if status == models.ConnectionStatusError {
		err = errors.New("connection refused")
	}
	g.states[instance] = gateway.State{Status: status, Phone: phone, Err: err}
}

func (g *fakeGateway) ConnectionState(_ context.Context, instance gateway.Instance) gateway.State {
	g.mu.Lock()
	defer g.mu.Unlock()
	state, ok := g.states[instance.Name]
	if !ok {
		return gateway.State{Status: models.ConnectionStatusDeleted}
	}
	return state
}

func (g *fakeGateway) FetchMessages(_ context.Context, instance gateway.Instance, limit int) ([]gateway.Message, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.fetched = append(g.fetched, instance.Name)
	if g.fetchErr != nil {
		return nil, g.fetchErr
	}
	messages := g.messages[instance.Name]
	if len(messages) > limit {
		messages = messages[:limit]
	}
	return append([]gateway.Message(nil), messages...), nil
}

func (g *fakeGateway) CreateInstance(_ context.Context, instance gateway.Instance) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.created = append(g.created, instance.Name)
	if g.createErr != nil {
		return g.createErr
	}
	g.states[instance.Name] = gateway.State{Status: models.ConnectionStatusConnecting}
	return nil
}

func (g *fakeGateway) ConnectQR(_ context.Context, _ gateway.Instance) (string, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.qrErr != nil {
		return "", g.qrErr
	}
	return g.qr, nil
}

func (g *fakeGateway) DeleteInstance(_ context.Context, instance gateway.Instance) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.deleted = append(g.deleted, instance.Name)
	delete(g.states, instance.Name)
	return nil
}

func (g *fakeGateway) SendText(_ context.Context, instance gateway.Instance, number, text string) (string, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.sendErr != nil {
		return "", g.sendErr
	}
	g.sent = append(g.sent, number+":"+text)
	return "OUT-" + text, nil
}

type recordingNotifier struct {
	mu     sync.Mutex
	events []interface{}
	err    error
}

func (n *recordingNotifier) Notify(_ string, event interface{}) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.events = append(n.events, event)
	return n.err
}

func (n *recordingNotifier) count() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return len(n.events)
}

type fakeIssuer struct {
	calls       int
	err         error
	credentials flow.Credentials
}

func (f *fakeIssuer) Issue(context.Context) (flow.Credentials, error) {
	f.calls++
	if f.err != nil {
		return flow.Credentials{}, f.err
	}
	return f.credentials, nil
}

// fixture wires the services over an in-memory database
type fixture struct {
	db          *gorm.DB
	gateway     *fakeGateway
	notifier    *recordingNotifier
	issuer      *fakeIssuer
	processed   *MemoryProcessedSet
	connections *repositories.ConnectionRepository
	support     *repositories.SupportRepository
	flows       *repositories.FlowRepository

	connection *ConnectionService
	ingestion  *IngestionService
	tickets    *TicketService
	handoff    *HandoffService
	flow       *FlowService
	poller     *Poller
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	db := dbtest.Open(t)

	f := &fixture{
		db:          db,
		gateway:     newFakeGateway(),
		notifier:    &recordingNotifier{},
		issuer:      &fakeIssuer{credentials: flow.Credentials{Username: "u1", Password: "p1", URL: "http://x"}},
		processed:   NewMemoryProcessedSet(0),
		connections: repositories.NewConnectionRepository(db),
		support:     repositories.NewSupportRepository(db),
		flows:       repositories.NewFlowRepository(db),
	}
	f.connection = NewConnectionService(f.connections, f.gateway, 0)
	f.ingestion = NewIngestionService(f.connections, f.support, f.gateway, f.processed, f.notifier, 10)
	f.tickets = NewTicketService(f.support, f.connections, f.gateway, f.notifier)
	f.handoff = NewHandoffService(f.flows, f.support, f.notifier)
	f.flow = NewFlowService(f.flows, f.issuer, f.handoff, 0, "tenant-default")
	f.poller = NewPoller(f.connection, f.ingestion, f.handoff, 0, 0)
	return f
}

func (f *fixture) addConnection(t *testing.T, tenantID, instance string, status models.ConnectionStatus) *models.Connection {
	t.Helper()
	slot, err := f.connections.NextSlot(tenantID)
	require.NoError(t, err)

	connection := &models.Connection{TenantID: tenantID, InstanceName: instance, Slot: slot, Status: status}
	if status == models.ConnectionStatusConnecting {
		qr := "data:image/png;base64,OLD"
		connection.QRCode = &qr
	}
	require.NoError(t, f.connections.Create(connection))
	return connection
}

func (f *fixture) reload(t *testing.T, connection *models.Connection) *models.Connection {
	t.Helper()
	fresh, err := f.connections.GetByID(connection.TenantID, connection.ID)
	require.NoError(t, err)
	require.NotNil(t, fresh)
	return fresh
}

func (f *fixture) count(t *testing.T, model interface{}) int64 {
	t.Helper()
	var n int64
	require.NoError(t, f.db.Model(model).Count(&n).Error)
	return n
}

func inbound(id, jid, text string, fromMe bool) gateway.Message {
	return gateway.Message{
		Key:     gateway.MessageKey{RemoteJid: jid, FromMe: fromMe, ID: id},
		Message: &gateway.MessageContent{Conversation: text},
	}
}
