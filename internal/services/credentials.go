package services

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/go-resty/resty/v2"

	"iazeconnect/internal/flow"
)

// CredentialIssuer emite o acesso de teste do fluxo 12
type CredentialIssuer interface {
	Issue(ctx context.Context) (flow.Credentials, error)
}

// CredentialClient calls the trial credential API: POST <url>?hash=<hash>,
// no body, answering {result, username, password, url}.
type CredentialClient struct {
	http *resty.Client
	url  string
	hash string
}

func NewCredentialClient(url, hash string, timeout time.Duration) *CredentialClient {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &CredentialClient{
		http: resty.New().SetTimeout(timeout).SetHeader("Accept", "application/json"),
		url:  url,
		hash: hash,
	}
}

func (c *CredentialClient) Issue(ctx context.Context) (flow.Credentials, error) {
	resp, err := c.http.R().
		SetContext(ctx).
		SetQueryParam("hash", c.hash).
		Post(c.url)
	if err != nil {
		return flow.Credentials{}, fmt.Errorf("chamar API de credenciais: %w", err)
	}
	if !resp.IsSuccess() {
		return flow.Credentials{}, fmt.Errorf("API de credenciais retornou status %d", resp.StatusCode())
	}

	var body struct {
		Result   bool   `json:"result"`
		Username string `json:"username"`
		Password string `json:"password"`
		URL      string `json:"url"`
	}
	if err := json.Unmarshal(resp.Body(), &body); err != nil {
		return flow.Credentials{}, fmt.Errorf("resposta inválida da API de credenciais: %w", err)
	}
	if !body.Result || body.Username == "" {
		return flow.Credentials{}, ErrCredentialsRejected
	}

	return flow.Credentials{Username: body.Username, Password: body.Password, URL: body.URL}, nil
}
