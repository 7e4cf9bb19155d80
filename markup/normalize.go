package markup

import (
	"context"
	"errors"
)

// ErrNoElement is returned when a render is requested without an element.
var ErrNoElement = errors.New("markup: no element")

// Normalize returns the element tree for el. Markup is parsed; a *Node is
// returned as is, without copying.
func Normalize(ctx context.Context, el Element) (*Node, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	switch v := el.(type) {
	case *Node:
		if v == nil {
			return nil, ErrNoElement
		}
		return v, nil
	case Markup:
		return ParseString(string(v))
	default:
		return nil, ErrNoElement
	}
}
