package selection

import (
	"errors"
	"fmt"
	"strings"

	"github.com/lucasb-eyer/go-colorful"
)

// MethodKind names a removal technique on the wire.
type MethodKind string

const (
	KindCover   MethodKind = "cover"
	KindDelete  MethodKind = "delete"
	KindInpaint MethodKind = "inpaint"
)

// DefaultCoverColor is the fill used for freshly drawn regions.
const DefaultCoverColor = "#FFFFFF"

var (
	ErrUnknownMethod = errors.New("unknown method")
	ErrInvalidColor  = errors.New("invalid colour")
)

// Method is the removal technique applied to a region. Only Cover carries a
// colour, so a colour on a delete or inpaint region cannot be expressed.
type Method interface {
	Kind() MethodKind
	isMethod()
}

// Cover paints an opaque rectangle over the region.
type Cover struct {
	Color string
}

// Delete removes the content under the region.
type Delete struct{}

// Inpaint reconstructs the region from its surroundings.
type Inpaint struct{}

func (Cover) Kind() MethodKind   { return KindCover }
func (Delete) Kind() MethodKind  { return KindDelete }
func (Inpaint) Kind() MethodKind { return KindInpaint }

func (Cover) isMethod()   {}
func (Delete) isMethod()  {}
func (Inpaint) isMethod() {}

// DefaultMethod is what the overlay tags new regions with.
func DefaultMethod() Method {
	return Cover{Color: DefaultCoverColor}
}

// ParseMethod builds a Method from its wire form. color is only consulted for
// cover and falls back to DefaultCoverColor when empty.
func ParseMethod(kind, color string) (Method, error) {
	switch MethodKind(strings.ToLower(strings.TrimSpace(kind))) {
	case KindCover, "":
		if color == "" {
			return DefaultMethod(), nil
		}
		c, err := NormalizeColor(color)
		if err != nil {
			return nil, err
		}
		return Cover{Color: c}, nil
	case KindDelete:
		return Delete{}, nil
	case KindInpaint:
		return Inpaint{}, nil
	default:
		return nil, fmt.Errorf("%w %q (supported: cover, delete, inpaint)", ErrUnknownMethod, kind)
	}
}

// NormalizeColor parses a hex colour ("#fff", "#ffffff", "ffffff") and returns
// it as upper-case "#RRGGBB".
func NormalizeColor(s string) (string, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return "", fmt.Errorf("%w: empty", ErrInvalidColor)
	}
	if !strings.HasPrefix(s, "#") {
		s = "#" + s
	}
	c, err := colorful.Hex(s)
	if err != nil {
		return "", fmt.Errorf("%w %q: %v", ErrInvalidColor, s, err)
	}
	return strings.ToUpper(c.Clamped().Hex()), nil
}

// ColorOf returns the colour of a cover method, or "" for other methods.
func ColorOf(m Method) string {
	if c, ok := m.(Cover); ok {
		return c.Color
	}
	return ""
}
