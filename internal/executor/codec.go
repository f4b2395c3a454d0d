// File: internal/executor/codec.go
package executor

import (
	"errors"
	"fmt"

	jsoniter "github.com/json-iterator/go"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

var (
	// ErrUnknownKind is returned when an envelope names no known action.
	ErrUnknownKind = errors.New("executor: unknown action kind")
	// ErrMalformed is returned when an envelope or its payload cannot be decoded.
	ErrMalformed = errors.New("executor: malformed action")
)

// envelope is the wire form of an action: {"kind": "...", "payload": {...}}.
type envelope struct {
	Kind        Kind                `json:"kind"`
	Payload     jsoniter.RawMessage `json:"payload"`
	WaitForLoad bool                `json:"wait_for_load,omitempty"`
}

// Marshal encodes an action into its envelope.
func Marshal(a Action) ([]byte, error) {
	if a == nil {
		return nil, fmt.Errorf("%w: nil action", ErrMalformed)
	}
	env, err := wrap(a)
	if err != nil {
		return nil, err
	}
	return json.Marshal(env)
}

// Unmarshal decodes an envelope into a concrete action.
func Unmarshal(data []byte) (Action, error) {
	var env envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	return unwrap(env)
}

func wrap(a Action) (envelope, error) {
	payload, err := json.Marshal(a)
	if err != nil {
		return envelope{}, fmt.Errorf("failed to encode %s payload: %w", a.Kind(), err)
	}
	return envelope{Kind: a.Kind(), Payload: payload}, nil
}

func unwrap(env envelope) (Action, error) {
	var a Action
	var err error
	switch env.Kind {
	case KindNavigate:
		a, err = decode[Navigate](env.Payload)
	case KindSwitchTab:
		a, err = decode[SwitchTab](env.Payload)
	case KindClick:
		a, err = decode[Click](env.Payload)
	case KindFillInput:
		a, err = decode[FillInput](env.Payload)
	case KindClearInput:
		a, err = decode[ClearInput](env.Payload)
	case KindSelectOption:
		a, err = decode[SelectOption](env.Payload)
	case KindSelectListItem:
		a, err = decode[SelectListItem](env.Payload)
	case KindRunWorkflow:
		a, err = decode[RunWorkflow](env.Payload)
	case "":
		return nil, fmt.Errorf("%w: missing kind", ErrMalformed)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownKind, env.Kind)
	}
	if err != nil {
		return nil, err
	}
	return a, nil
}

func decode[T Action](payload jsoniter.RawMessage) (T, error) {
	var v T
	if len(payload) == 0 || string(payload) == "null" {
		return v, nil
	}
	if err := json.Unmarshal(payload, &v); err != nil {
		return v, fmt.Errorf("%w: %s payload: %v", ErrMalformed, v.Kind(), err)
	}
	return v, nil
}

// MarshalJSON encodes a step as an envelope with its wait flag.
func (s Step) MarshalJSON() ([]byte, error) {
	if s.Action == nil {
		return nil, fmt.Errorf("%w: workflow step without action", ErrMalformed)
	}
	env, err := wrap(s.Action)
	if err != nil {
		return nil, err
	}
	env.WaitForLoad = s.WaitForLoad
	return json.Marshal(env)
}

// UnmarshalJSON decodes a step envelope.
func (s *Step) UnmarshalJSON(data []byte) error {
	var env envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	a, err := unwrap(env)
	if err != nil {
		return err
	}
	s.Action = a
	s.WaitForLoad = env.WaitForLoad
	return nil
}
