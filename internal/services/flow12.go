package services

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"iazeconnect/internal/flow"
	"iazeconnect/internal/models"
	"iazeconnect/internal/repositories"
)

// maxEffectSteps bounds the effect loop of one user message
const maxEffectSteps = 4

// Redirect points the user at human support after the handoff
type Redirect struct {
	Target   string  `json:"target"`
	TicketID *string `json:"ticket_id,omitempty"`
}

type FlowReply struct {
	SessionID   string            `json:"session_id"`
	State       flow.Step         `json:"state"`
	Reply       string            `json:"reply"`
	Credentials *flow.Credentials `json:"credentials,omitempty"`
	Redirect    *Redirect         `json:"redirect,omitempty"`
}

type FlowSessionView struct {
	Session  *models.FlowSession  `json:"session"`
	Messages []models.FlowMessage `json:"messages"`
}

// FlowService conduz o fluxo 12 de uma sessão por vez. The caller must not
// run two messages of the same session concurrently; the last save wins.
type FlowService struct {
	flowRepo        *repositories.FlowRepository
	issuer          CredentialIssuer
	handoff         *HandoffService
	throttleWindow  time.Duration
	defaultTenantID string
	now             func() time.Time
}

func NewFlowService(flowRepo *repositories.FlowRepository, issuer CredentialIssuer, handoff *HandoffService, throttleWindow time.Duration, defaultTenantID string) *FlowService {
	if throttleWindow <= 0 {
		throttleWindow = 24 * time.Hour
	}
	return &FlowService{
		flowRepo:        flowRepo,
		issuer:          issuer,
		handoff:         handoff,
		throttleWindow:  throttleWindow,
		defaultTenantID: defaultTenantID,
		now:             func() time.Time { return time.Now().UTC() },
	}
}

// Start creates a session and runs its entry step
func (s *FlowService) Start(ctx context.Context, tenantID string) (*FlowReply, error) {
	if tenantID == "" {
		tenantID = s.defaultTenantID
	}

	session := &models.FlowSession{
		TenantID: tenantID,
		Step:     string(flow.StepInitial),
	}
	if err := s.flowRepo.CreateSession(session); err != nil {
		return nil, fmt.Errorf("failed to create flow session: %w", err)
	}

	return s.advance(ctx, session, flow.Text(""))
}

// HandleMessage registra a mensagem do usuário e executa um passo do fluxo
func (s *FlowService) HandleMessage(ctx context.Context, sessionID, text string) (*FlowReply, error) {
	session, err := s.flowRepo.GetSession(sessionID)
	if err != nil {
		return nil, fmt.Errorf("failed to get flow session: %w", err)
	}
	if session == nil {
		return nil, ErrFlowSessionNotFound
	}

	if _, err := s.flowRepo.AppendMessage(session.ID, models.SenderClient, text); err != nil {
		return nil, fmt.Errorf("failed to store user message: %w", err)
	}

	return s.advance(ctx, session, flow.Text(text))
}

// Get returns a session with its history
func (s *FlowService) Get(sessionID string) (*FlowSessionView, error) {
	session, err := s.flowRepo.GetSession(sessionID)
	if err != nil {
		return nil, fmt.Errorf("failed to get flow session: %w", err)
	}
	if session == nil {
		return nil, ErrFlowSessionNotFound
	}

	messages, err := s.flowRepo.ListMessages(session.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to list flow messages: %w", err)
	}
	return &FlowSessionView{Session: session, Messages: messages}, nil
}

func (s *FlowService) advance(ctx context.Context, session *models.FlowSession, input flow.Input) (*FlowReply, error) {
	state := stateOf(session)
	issuedNow := false

	outcome, err := flow.Transition(state, input)
effects:
	for i := 0; err == nil && i < maxEffectSteps; i++ {
		var next flow.Input
		switch outcome.Effect {
		case flow.EffectLookupPriorRun:
			next, err = s.lookupPriorRun(session.TenantID, session.ID, outcome.State.Contact)
		case flow.EffectIssueCredentials:
			next = s.issueCredentials(ctx, session.ID)
			issuedNow = next.Kind == flow.InputCredentialsIssued
		default:
			break effects
		}
		if err == nil {
			outcome, err = flow.Transition(outcome.State, next)
		}
	}
	if err != nil {
		return nil, fmt.Errorf("flow step failed: %w", err)
	}

	s.applyState(session, outcome.State, issuedNow)
	if err := s.flowRepo.SaveSession(session); err != nil {
		return nil, fmt.Errorf("failed to save flow session: %w", err)
	}
	if _, err := s.flowRepo.AppendMessage(session.ID, models.SenderBot, outcome.Reply); err != nil {
		return nil, fmt.Errorf("failed to store bot reply: %w", err)
	}

	reply := &FlowReply{
		SessionID:   session.ID,
		State:       outcome.State.Step,
		Reply:       outcome.Reply,
		Credentials: outcome.State.Credentials,
	}

	if outcome.Effect == flow.EffectHandoff {
		ticketID := s.handoff.Deliver(ctx, session)
		reply.Redirect = &Redirect{Target: "support", TicketID: ticketID}
	}
	return reply, nil
}

func (s *FlowService) lookupPriorRun(tenantID, sessionID, contact string) (flow.Input, error) {
	prior, err := s.flowRepo.FindRecentIssued(tenantID, contact, s.now().Add(-s.throttleWindow), sessionID)
	if err != nil {
		return flow.Input{}, fmt.Errorf("buscar execução anterior: %w", err)
	}
	if prior == nil || prior.Username == nil {
		return flow.NoPriorRun(), nil
	}

	zap.L().Info("[FLOW12] Contato já recebeu teste na janela, devolvendo credenciais anteriores",
		zap.String("flow_session_id", sessionID), zap.String("prior_session_id", prior.ID))
	return flow.PriorRunFound(credentialsOf(prior)), nil
}

func (s *FlowService) issueCredentials(ctx context.Context, sessionID string) flow.Input {
	credentials, err := s.issuer.Issue(ctx)
	if err != nil {
		zap.L().Warn("[FLOW12] Falha ao emitir credenciais", zap.String("flow_session_id", sessionID), zap.Error(err))
		return flow.CredentialsFailed()
	}
	return flow.CredentialsIssued(credentials)
}

func stateOf(session *models.FlowSession) flow.State {
	state := flow.State{Step: flow.Step(session.Step)}
	if session.ContactNumber != nil {
		state.Contact = *session.ContactNumber
	}
	if session.PIN != nil {
		state.PIN = *session.PIN
	}
	if session.Username != nil {
		credentials := credentialsOf(session)
		state.Credentials = &credentials
	}
	return state
}

func credentialsOf(session *models.FlowSession) flow.Credentials {
	var credentials flow.Credentials
	if session.Username != nil {
		credentials.Username = *session.Username
	}
	if session.Password != nil {
		credentials.Password = *session.Password
	}
	if session.URL != nil {
		credentials.URL = *session.URL
	}
	return credentials
}

// applyState copies the machine state into the session. The PIN is only
// kept once credentials exist, and only a real API issuance stamps
// credentials_issued_at.
func (s *FlowService) applyState(session *models.FlowSession, state flow.State, issuedNow bool) {
	session.Step = string(state.Step)
	session.ContactNumber = optional(state.Contact)

	if state.Credentials != nil {
		session.PIN = optional(state.PIN)
		session.Username = optional(state.Credentials.Username)
		session.Password = optional(state.Credentials.Password)
		session.URL = optional(state.Credentials.URL)
	} else {
		session.PIN = nil
	}

	if issuedNow {
		now := s.now()
		session.CredentialsIssuedAt = &now
	}
}

func optional(value string) *string {
	if value == "" {
		return nil
	}
	return &value
}
