package flow

import (
	"errors"
	"fmt"

	"iazeconnect/internal/utils"
)

type InputKind int

const (
	// InputText is a message typed by the user
	InputText InputKind = iota
	// InputPriorRunFound carries the credentials of a recent run for the same contact
	InputPriorRunFound
	InputNoPriorRun
	InputCredentialsIssued
	InputCredentialsFailed
)

type Input struct {
	Kind        InputKind
	Text        string
	Credentials *Credentials
}

func Text(text string) Input {
	return Input{Kind: InputText, Text: text}
}

func PriorRunFound(credentials Credentials) Input {
	return Input{Kind: InputPriorRunFound, Credentials: &credentials}
}

func NoPriorRun() Input {
	return Input{Kind: InputNoPriorRun}
}

func CredentialsIssued(credentials Credentials) Input {
	return Input{Kind: InputCredentialsIssued, Credentials: &credentials}
}

func CredentialsFailed() Input {
	return Input{Kind: InputCredentialsFailed}
}

// Effect is work the caller must do after a transition
type Effect int

const (
	EffectNone Effect = iota
	// EffectLookupPriorRun: search a recent run for State.Contact, answer with PriorRunFound or NoPriorRun
	EffectLookupPriorRun
	// EffectIssueCredentials: call the credential API, answer with CredentialsIssued or CredentialsFailed
	EffectIssueCredentials
	// EffectHandoff: hand the conversation over to human support
	EffectHandoff
)

type Outcome struct {
	State    State
	Reply    string
	Effect   Effect
	Redirect bool
}

var ErrUnexpectedInput = errors.New("entrada inesperada para a etapa")

const (
	contactMinDigits = 10
	contactMaxDigits = 11
	pinDigits        = 2
)

// Transition applies one input to the state. Invalid user text keeps the
// step and re-prompts; the step never moves backwards.
func Transition(state State, input Input) (Outcome, error) {
	if err := state.Validate(); err != nil {
		return Outcome{}, err
	}

	switch state.Step {
	case StepInitial:
		if input.Kind != InputText {
			return Outcome{}, unexpected(state, input)
		}
		state.Step = StepWaitingWhatsApp
		return Outcome{State: state, Reply: ReplyAskContact}, nil

	case StepWaitingWhatsApp:
		return onWaitingWhatsApp(state, input)

	case StepWaitingPassword:
		return onWaitingPassword(state, input)

	case StepGeneratingCredentials, StepComplete:
		if input.Kind != InputText {
			return Outcome{}, unexpected(state, input)
		}
		state.Step = StepComplete
		return Outcome{State: state, Reply: ReplyHandoff, Effect: EffectHandoff, Redirect: true}, nil
	}

	return Outcome{}, unexpected(state, input)
}

func onWaitingWhatsApp(state State, input Input) (Outcome, error) {
	switch input.Kind {
	case InputText:
		digits := utils.OnlyDigits(input.Text)
		if len(digits) < contactMinDigits || len(digits) > contactMaxDigits {
			return Outcome{State: state, Reply: ReplyInvalidContact}, nil
		}
		state.Contact = digits
		return Outcome{State: state, Effect: EffectLookupPriorRun}, nil

	case InputPriorRunFound:
		if state.Contact == "" || input.Credentials == nil {
			return Outcome{}, unexpected(state, input)
		}
		credentials := *input.Credentials
		state.Step = StepComplete
		state.Credentials = &credentials
		return Outcome{State: state, Reply: ReplyAlreadyIssued(credentials)}, nil

	case InputNoPriorRun:
		if state.Contact == "" {
			return Outcome{}, unexpected(state, input)
		}
		state.Step = StepWaitingPassword
		return Outcome{State: state, Reply: ReplyAskPIN}, nil
	}
	return Outcome{}, unexpected(state, input)
}

func onWaitingPassword(state State, input Input) (Outcome, error) {
	switch input.Kind {
	case InputText:
		digits := utils.OnlyDigits(input.Text)
		if len(digits) != pinDigits {
			return Outcome{State: state, Reply: ReplyInvalidPIN}, nil
		}
		state.PIN = digits
		return Outcome{State: state, Effect: EffectIssueCredentials}, nil

	case InputCredentialsIssued:
		if state.PIN == "" || input.Credentials == nil {
			return Outcome{}, unexpected(state, input)
		}
		credentials := *input.Credentials
		state.Step = StepGeneratingCredentials
		state.Credentials = &credentials
		return Outcome{State: state, Reply: ReplyCredentials(credentials)}, nil

	case InputCredentialsFailed:
		// o PIN é pedido de novo e a chamada inteira é repetida
		state.PIN = ""
		return Outcome{State: state, Reply: ReplyCredentialsFailed}, nil
	}
	return Outcome{}, unexpected(state, input)
}

func unexpected(state State, input Input) error {
	return fmt.Errorf("%w: %s recebeu entrada %d", ErrUnexpectedInput, state.Step, input.Kind)
}
