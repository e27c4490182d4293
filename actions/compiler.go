// Package actions serialises stored selections into the action list consumed
// by the processing service.
package actions

import (
	"encoding/json"
	"errors"
	"fmt"

	"pdf_unmark/selection"
)

// EmptySelectionError is returned when there is nothing to compile.
type EmptySelectionError struct{}

func (EmptySelectionError) Error() string {
	return "no regions selected; draw at least one region before processing"
}

// ErrEmptySelection can be used with errors.Is.
var ErrEmptySelection error = EmptySelectionError{}

// Action is one region instruction for the processing service.
type Action struct {
	Page   int                  `json:"page"`
	BBox   selection.BBox       `json:"bbox"`
	Method selection.MethodKind `json:"method"`
	Color  string               `json:"color,omitempty"`
}

// Compiler turns a selection store into actions. CoverColor is applied to
// every cover action.
type Compiler struct {
	CoverColor string
}

// NewCompiler validates color and returns a compiler using it. An empty color
// selects white.
func NewCompiler(color string) (Compiler, error) {
	c, err := ParseColor(color)
	if err != nil {
		return Compiler{}, err
	}
	return Compiler{CoverColor: c}, nil
}

// ParseColor normalises a hex colour to upper-case "#RRGGBB". An empty
// string yields the default white.
func ParseColor(color string) (string, error) {
	if color == "" {
		return selection.DefaultCoverColor, nil
	}
	c, err := selection.NormalizeColor(color)
	if err != nil {
		return "", fmt.Errorf("cover color: %w", err)
	}
	return c, nil
}

// Compile returns one action per stored selection across all pages, in store
// order. It does not modify the store.
func (c Compiler) Compile(store *selection.Store) ([]Action, error) {
	color := c.CoverColor
	if color == "" {
		color = selection.DefaultCoverColor
	}

	var out []Action
	for sel := range store.All() {
		a := Action{
			Page:   sel.Page,
			BBox:   sel.BBox,
			Method: sel.Method.Kind(),
		}
		if a.Method == selection.KindCover {
			a.Color = color
		}
		out = append(out, a)
	}
	if len(out) == 0 {
		return nil, EmptySelectionError{}
	}
	return out, nil
}

// Marshal encodes actions as the JSON array sent in the "actions" form field.
func Marshal(actions []Action) ([]byte, error) {
	if len(actions) == 0 {
		return nil, EmptySelectionError{}
	}
	data, err := json.Marshal(actions)
	if err != nil {
		return nil, fmt.Errorf("failed to encode actions: %w", err)
	}
	return data, nil
}

// IsEmptySelection reports whether err is an EmptySelectionError.
func IsEmptySelection(err error) bool {
	var e EmptySelectionError
	return errors.As(err, &e)
}
