// Package flow implements the guided trial signup conversation ("flow 12")
// as a pure state machine. Side effects are requested through Outcome.Effect
// and executed by the caller, whose results come back as the next Input.
package flow

import (
	"errors"
	"fmt"
)

type Step string

const (
	StepInitial               Step = "initial"
	StepWaitingWhatsApp       Step = "waiting_whatsapp"
	StepWaitingPassword       Step = "waiting_password"
	StepGeneratingCredentials Step = "generating_credentials"
	StepComplete              Step = "complete"
)

var stepRank = map[Step]int{
	StepInitial:               0,
	StepWaitingWhatsApp:       1,
	StepWaitingPassword:       2,
	StepGeneratingCredentials: 3,
	StepComplete:              4,
}

// Rank is the position of the step in the forward order, or -1 when unknown
func (s Step) Rank() int {
	rank, ok := stepRank[s]
	if !ok {
		return -1
	}
	return rank
}

func (s Step) Valid() bool {
	return s.Rank() >= 0
}

// Credentials are the trial access issued by the credential API
type Credentials struct {
	Username string `json:"username"`
	Password string `json:"password"`
	URL      string `json:"url"`
}

// State is what the machine remembers about one session. Contact is set from
// waiting_password on, and Credentials from generating_credentials on.
type State struct {
	Step        Step
	Contact     string
	PIN         string
	Credentials *Credentials
}

var ErrInvalidState = errors.New("estado de fluxo inválido")

// Validate rejects combinations the machine can never produce
func (s State) Validate() error {
	if !s.Step.Valid() {
		return fmt.Errorf("%w: etapa desconhecida %q", ErrInvalidState, s.Step)
	}

	switch s.Step {
	case StepInitial, StepWaitingWhatsApp:
		if s.Credentials != nil {
			return fmt.Errorf("%w: credenciais antes da emissão", ErrInvalidState)
		}
	case StepWaitingPassword:
		if s.Contact == "" {
			return fmt.Errorf("%w: %s sem contato", ErrInvalidState, s.Step)
		}
		if s.Credentials != nil {
			return fmt.Errorf("%w: credenciais antes da emissão", ErrInvalidState)
		}
	case StepGeneratingCredentials, StepComplete:
		if s.Contact == "" {
			return fmt.Errorf("%w: %s sem contato", ErrInvalidState, s.Step)
		}
		if s.Credentials == nil {
			return fmt.Errorf("%w: %s sem credenciais", ErrInvalidState, s.Step)
		}
	}
	return nil
}
