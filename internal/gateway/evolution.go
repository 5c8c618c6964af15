package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"go.uber.org/zap"

	"iazeconnect/internal/models"
	"iazeconnect/internal/utils"
)

var (
	ErrInstanceNotFound = errors.New("instância não encontrada no gateway")
	ErrAlreadyConnected = errors.New("instância já conectada")
	ErrNoQRCode         = errors.New("gateway não retornou QR code")
)

// EvolutionClient fala com a Evolution API. Calls are bounded by Timeout,
// except instance creation which uses CreateTimeout.
type EvolutionClient struct {
	http          *resty.Client
	apiKey        string
	timeout       time.Duration
	createTimeout time.Duration
}

type EvolutionOptions struct {
	BaseURL       string
	APIKey        string
	Timeout       time.Duration
	CreateTimeout time.Duration
}

func NewEvolutionClient(opts EvolutionOptions) *EvolutionClient {
	if opts.Timeout <= 0 {
		opts.Timeout = 10 * time.Second
	}
	if opts.CreateTimeout <= 0 {
		opts.CreateTimeout = 30 * time.Second
	}

	httpClient := resty.New().
		SetBaseURL(strings.TrimRight(opts.BaseURL, "/")).
		SetTimeout(opts.CreateTimeout).
		SetHeader("Accept", "application/json")
	httpClient.OnError(func(req *resty.Request, err error) {
		zap.L().Debug("[EVOLUTION] Falha de requisição", zap.String("url", req.URL), zap.Error(err))
	})

	return &EvolutionClient{
		http:          httpClient,
		apiKey:        opts.APIKey,
		timeout:       opts.Timeout,
		createTimeout: opts.CreateTimeout,
	}
}

func (c *EvolutionClient) request(ctx context.Context, instance Instance) *resty.Request {
	key := instance.APIKey
	if key == "" {
		key = c.apiKey
	}
	return c.http.R().
		SetContext(ctx).
		SetHeader("apikey", key).
		SetPathParam("name", instance.Name)
}

// ConnectionState consulta o estado ao vivo da sessão. It never returns an
// error: transport and decoding failures come back as StatusError.
func (c *EvolutionClient) ConnectionState(ctx context.Context, instance Instance) State {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	resp, err := c.request(ctx, instance).Get("/instance/connectionState/{name}")
	if err != nil {
		return State{Status: models.ConnectionStatusError, Err: err}
	}
	if resp.StatusCode() == http.StatusNotFound {
		return State{Status: models.ConnectionStatusDeleted}
	}
	if !resp.IsSuccess() {
		return State{Status: models.ConnectionStatusError, Err: fmt.Errorf("connectionState retornou status %d", resp.StatusCode())}
	}

	var body struct {
		State    string `json:"state"`
		Instance *struct {
			State string `json:"state"`
		} `json:"instance"`
	}
	if err := json.Unmarshal(resp.Body(), &body); err != nil {
		return State{Status: models.ConnectionStatusError, Err: fmt.Errorf("resposta inválida de connectionState: %w", err)}
	}

	raw := body.State
	if body.Instance != nil && body.Instance.State != "" {
		raw = body.Instance.State
	}
	if raw == "" {
		return State{Status: models.ConnectionStatusError, Err: errors.New("connectionState sem campo state")}
	}

	status, known := parseState(raw)
	if !known {
		return State{Status: models.ConnectionStatusError, Err: fmt.Errorf("estado desconhecido em connectionState: %q", raw)}
	}
	state := State{Status: status}
	if state.Status != models.ConnectionStatusConnected {
		return state
	}

	info, found, err := c.FetchInstance(ctx, instance)
	switch {
	case err != nil:
		zap.L().Debug("[EVOLUTION] fetchInstances falhou, seguindo sem número", zap.String("instance", instance.Name), zap.Error(err))
	case !found:
		return State{Status: models.ConnectionStatusDeleted}
	default:
		state.Phone = info.Phone
	}
	return state
}

// MapState converte o estado da Evolution para o status do registro.
// Unknown values map to disconnected.
func MapState(raw string) models.ConnectionStatus {
	if status, known := parseState(raw); known {
		return status
	}
	return models.ConnectionStatusDisconnected
}

func parseState(raw string) (models.ConnectionStatus, bool) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "open":
		return models.ConnectionStatusConnected, true
	case "connecting":
		return models.ConnectionStatusConnecting, true
	case "close", "closed", "refused":
		return models.ConnectionStatusDisconnected, true
	default:
		return "", false
	}
}

// InstanceInfo is the subset of fetchInstances the registry cares about
type InstanceInfo struct {
	Name   string
	Phone  string
	Status models.ConnectionStatus
}

// FetchInstance looks an instance up in fetchInstances. found is false when
// the gateway lists no such instance.
func (c *EvolutionClient) FetchInstance(ctx context.Context, instance Instance) (info *InstanceInfo, found bool, err error) {
	resp, err := c.request(ctx, instance).
		SetQueryParam("instanceName", instance.Name).
		Get("/instance/fetchInstances")
	if err != nil {
		return nil, false, err
	}
	if resp.StatusCode() == http.StatusNotFound {
		return nil, false, nil
	}
	if !resp.IsSuccess() {
		return nil, false, fmt.Errorf("fetchInstances retornou status %d", resp.StatusCode())
	}

	// v1: [{"instance":{"instanceName","owner","status"}}], v2: [{"name","ownerJid","connectionStatus"}]
	var items []struct {
		Name             string `json:"name"`
		OwnerJid         string `json:"ownerJid"`
		ConnectionStatus string `json:"connectionStatus"`
		Instance         *struct {
			InstanceName string `json:"instanceName"`
			Owner        string `json:"owner"`
			Status       string `json:"status"`
		} `json:"instance"`
	}
	if err := json.Unmarshal(resp.Body(), &items); err != nil {
		return nil, false, fmt.Errorf("resposta inválida de fetchInstances: %w", err)
	}

	for _, item := range items {
		name, owner, status := item.Name, item.OwnerJid, item.ConnectionStatus
		if item.Instance != nil {
			name, owner, status = item.Instance.InstanceName, item.Instance.Owner, item.Instance.Status
		}
		if name != instance.Name {
			continue
		}
		return &InstanceInfo{
			Name:   name,
			Phone:  utils.PhoneFromJid(owner),
			Status: MapState(status),
		}, true, nil
	}
	return nil, false, nil
}

// FetchMessages returns up to limit recent messages of the session
func (c *EvolutionClient) FetchMessages(ctx context.Context, instance Instance, limit int) ([]Message, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	resp, err := c.request(ctx, instance).
		SetHeader("Content-Type", "application/json").
		SetBody(map[string]interface{}{"limit": limit}).
		Post("/chat/findMessages/{name}")
	if err != nil {
		return nil, err
	}
	if resp.StatusCode() == http.StatusNotFound {
		return nil, ErrInstanceNotFound
	}
	if !resp.IsSuccess() {
		return nil, fmt.Errorf("findMessages retornou status %d", resp.StatusCode())
	}

	messages, err := decodeMessages(resp.Body())
	if err != nil {
		return nil, fmt.Errorf("resposta inválida de findMessages: %w", err)
	}
	if limit > 0 && len(messages) > limit {
		messages = messages[:limit]
	}
	return messages, nil
}

// decodeMessages accepts a bare list or the paginated {"messages":{"records":[...]}} shape
func decodeMessages(body []byte) ([]Message, error) {
	var list []Message
	if err := json.Unmarshal(body, &list); err == nil {
		return list, nil
	}

	var paged struct {
		Messages json.RawMessage `json:"messages"`
	}
	if err := json.Unmarshal(body, &paged); err != nil {
		return nil, err
	}
	if len(paged.Messages) == 0 {
		return nil, nil
	}
	if err := json.Unmarshal(paged.Messages, &list); err == nil {
		return list, nil
	}

	var records struct {
		Records []Message `json:"records"`
	}
	if err := json.Unmarshal(paged.Messages, &records); err != nil {
		return nil, err
	}
	return records.Records, nil
}

// CreateInstance cria a instância no gateway com QR habilitado
func (c *EvolutionClient) CreateInstance(ctx context.Context, instance Instance) error {
	ctx, cancel := context.WithTimeout(ctx, c.createTimeout)
	defer cancel()

	resp, err := c.request(ctx, instance).
		SetHeader("Content-Type", "application/json").
		SetBody(map[string]interface{}{
			"instanceName": instance.Name,
			"qrcode":       true,
			"integration":  "WHATSAPP-BAILEYS",
		}).
		Post("/instance/create")
	if err != nil {
		return err
	}
	if resp.StatusCode() != http.StatusOK && resp.StatusCode() != http.StatusCreated {
		return fmt.Errorf("create retornou status %d: %s", resp.StatusCode(), truncate(resp.String(), 200))
	}
	return nil
}

type connectResponse struct {
	Base64   string `json:"base64"`
	Code     string `json:"code"`
	Instance *struct {
		State string `json:"state"`
	} `json:"instance"`
}

func (c *EvolutionClient) connect(ctx context.Context, instance Instance) (*connectResponse, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	resp, err := c.request(ctx, instance).Get("/instance/connect/{name}")
	if err != nil {
		return nil, err
	}
	if resp.StatusCode() == http.StatusNotFound {
		return nil, ErrInstanceNotFound
	}
	if !resp.IsSuccess() {
		return nil, fmt.Errorf("connect retornou status %d", resp.StatusCode())
	}

	var body connectResponse
	if err := json.Unmarshal(resp.Body(), &body); err != nil {
		return nil, fmt.Errorf("resposta inválida de connect: %w", err)
	}
	if body.Base64 == "" && body.Code == "" && body.Instance != nil && MapState(body.Instance.State) == models.ConnectionStatusConnected {
		return nil, ErrAlreadyConnected
	}
	return &body, nil
}

// ConnectQR pede um novo QR para a instância
func (c *EvolutionClient) ConnectQR(ctx context.Context, instance Instance) (string, error) {
	body, err := c.connect(ctx, instance)
	if err != nil {
		return "", err
	}
	return QRPayload(body.Base64, body.Code)
}

// PairingCode returns the raw QR content, for rendering outside a browser
func (c *EvolutionClient) PairingCode(ctx context.Context, instance Instance) (string, error) {
	body, err := c.connect(ctx, instance)
	if err != nil {
		return "", err
	}
	if body.Code == "" {
		return "", ErrNoQRCode
	}
	return body.Code, nil
}

// DeleteInstance desconecta e remove a instância. A missing instance is not
// an error.
func (c *EvolutionClient) DeleteInstance(ctx context.Context, instance Instance) error {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	if _, err := c.request(ctx, instance).Delete("/instance/logout/{name}"); err != nil {
		zap.L().Debug("[EVOLUTION] logout falhou", zap.String("instance", instance.Name), zap.Error(err))
	}

	resp, err := c.request(ctx, instance).Delete("/instance/delete/{name}")
	if err != nil {
		return err
	}
	if resp.StatusCode() == http.StatusNotFound || resp.IsSuccess() {
		return nil
	}
	return fmt.Errorf("delete retornou status %d", resp.StatusCode())
}

// SendText envia texto para um número e devolve o id externo da mensagem
func (c *EvolutionClient) SendText(ctx context.Context, instance Instance, number, text string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	resp, err := c.request(ctx, instance).
		SetHeader("Content-Type", "application/json").
		SetBody(map[string]interface{}{
			"number":      number,
			"text":        text,
			"textMessage": map[string]string{"text": text},
		}).
		Post("/message/sendText/{name}")
	if err != nil {
		return "", err
	}
	if resp.StatusCode() == http.StatusNotFound {
		return "", ErrInstanceNotFound
	}
	if !resp.IsSuccess() {
		return "", fmt.Errorf("sendText retornou status %d", resp.StatusCode())
	}

	var body struct {
		Key MessageKey `json:"key"`
	}
	if err := json.Unmarshal(resp.Body(), &body); err != nil {
		return "", nil
	}
	return body.Key.ID, nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
