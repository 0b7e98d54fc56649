package models

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/lucasb-eyer/go-colorful"
)

// RGBA is a color with float channels in [0, 1].
type RGBA struct {
	R, G, B, A float64
}

// ParseRGBA accepts "#rgb", "#rrggbb", "rgb(r,g,b)" and "rgba(r,g,b,a)".
func ParseRGBA(s string) (RGBA, error) {
	s = strings.TrimSpace(s)
	switch {
	case strings.HasPrefix(s, "#"):
		c, err := colorful.Hex(strings.ToLower(s))
		if err != nil {
			return RGBA{}, fmt.Errorf("color: parse %q: %w", s, err)
		}
		return RGBA{R: c.R, G: c.G, B: c.B, A: 1}, nil
	case strings.HasPrefix(s, "rgba(") && strings.HasSuffix(s, ")"):
		return parseFunc(s[len("rgba("):len(s)-1], 4)
	case strings.HasPrefix(s, "rgb(") && strings.HasSuffix(s, ")"):
		return parseFunc(s[len("rgb("):len(s)-1], 3)
	}
	return RGBA{}, fmt.Errorf("color: unrecognized %q", s)
}

func parseFunc(args string, n int) (RGBA, error) {
	parts := strings.Split(args, ",")
	if len(parts) != n {
		return RGBA{}, fmt.Errorf("color: want %d components, got %d", n, len(parts))
	}
	var v [4]float64
	v[3] = 1
	for i, p := range parts {
		f, err := strconv.ParseFloat(strings.TrimSpace(p), 64)
		if err != nil {
			return RGBA{}, fmt.Errorf("color: component %d: %w", i, err)
		}
		if i < 3 {
			f /= 255
		}
		v[i] = f
	}
	c := colorful.Color{R: v[0], G: v[1], B: v[2]}
	if !c.IsValid() || v[3] < 0 || v[3] > 1 {
		return RGBA{}, fmt.Errorf("color: out of range %q", args)
	}
	return RGBA{R: c.R, G: c.G, B: c.B, A: v[3]}, nil
}

// Hex renders the color channels as #rrggbb, dropping alpha.
func (c RGBA) Hex() string {
	return colorful.Color{R: c.R, G: c.G, B: c.B}.Clamped().Hex()
}

// String renders the GTK textual form, rgb() when opaque and rgba() otherwise.
func (c RGBA) String() string {
	r, g, b := colorful.Color{R: c.R, G: c.G, B: c.B}.Clamped().RGB255()
	if c.A >= 1 {
		return fmt.Sprintf("rgb(%d,%d,%d)", r, g, b)
	}
	return fmt.Sprintf("rgba(%d,%d,%d,%s)", r, g, b, strconv.FormatFloat(c.A, 'g', 3, 64))
}

// Equal compares colors at 8-bit precision.
func (c RGBA) Equal(o RGBA) bool {
	return c.String() == o.String()
}

// MarshalText implements encoding.TextMarshaler.
func (c RGBA) MarshalText() ([]byte, error) {
	return []byte(c.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (c *RGBA) UnmarshalText(b []byte) error {
	v, err := ParseRGBA(string(b))
	if err != nil {
		return err
	}
	*c = v
	return nil
}
