// Package actions lists the side effects the assistant may propose and
// checks proposals before they reach the players for confirmation.
package actions

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"reflect"
	"slices"

	"github.com/invopop/jsonschema"
)

var (
	ErrUnknownAction = errors.New("unknown action")
	ErrInvalidParams = errors.New("invalid action parameters")
)

type Kind string

// Action is a validated proposal waiting for confirmation.
type Action struct {
	Kind         Kind
	Params       map[string]any
	Confirmation string
}

// Schema describes one action to the completion backend.
type Schema struct {
	Name        string             `json:"name"`
	Description string             `json:"description"`
	Parameters  *jsonschema.Schema `json:"parameters"`
}

type params interface {
	validate() error
	confirmation() string
}

type definition struct {
	kind        Kind
	description string
	newParams   func() params
}

type Catalogue struct {
	definitions []definition
	reflector   jsonschema.Reflector
}

func NewCatalogue() *Catalogue {
	return &Catalogue{
		definitions: defaultDefinitions(),
		reflector:   jsonschema.Reflector{DoNotReference: true},
	}
}

func (c *Catalogue) Kinds() []Kind {
	kinds := make([]Kind, 0, len(c.definitions))
	for _, definition := range c.definitions {
		kinds = append(kinds, definition.kind)
	}
	return kinds
}

func (c *Catalogue) Schemas() []Schema {
	schemas := make([]Schema, 0, len(c.definitions))
	for _, definition := range c.definitions {
		schemas = append(schemas, Schema{
			Name:        string(definition.kind),
			Description: definition.description,
			Parameters:  c.reflector.ReflectFromType(reflect.TypeOf(definition.newParams()).Elem()),
		})
	}
	return schemas
}

// Validate checks a proposal against its definition. When confirmation is
// empty a default one is generated from the parameters.
func (c *Catalogue) Validate(actionType string, rawParams map[string]any, confirmation string) (Action, error) {
	index := slices.IndexFunc(c.definitions, func(d definition) bool { return string(d.kind) == actionType })
	if index < 0 {
		return Action{}, fmt.Errorf("%w: %q", ErrUnknownAction, actionType)
	}
	definition := c.definitions[index]

	encoded, err := json.Marshal(rawParams)
	if err != nil {
		return Action{}, fmt.Errorf("%w: %w", ErrInvalidParams, err)
	}
	decoder := json.NewDecoder(bytes.NewReader(encoded))
	decoder.DisallowUnknownFields()
	params := definition.newParams()
	if err := decoder.Decode(params); err != nil {
		return Action{}, fmt.Errorf("%w for %s: %w", ErrInvalidParams, actionType, err)
	}
	if err := params.validate(); err != nil {
		return Action{}, fmt.Errorf("%w for %s: %w", ErrInvalidParams, actionType, err)
	}

	if confirmation == "" {
		confirmation = params.confirmation()
	}
	return Action{Kind: definition.kind, Params: rawParams, Confirmation: confirmation}, nil
}
