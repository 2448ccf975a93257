package colorscale

import (
	"fmt"
	"math"
	"sort"
	"strings"

	"atomsense/domain/core"

	"github.com/lucasb-eyer/go-colorful"
	"gonum.org/v1/plot/palette"
	"gonum.org/v1/plot/palette/moreland"
)

// sequential holds evenly spaced control colours of the plotly sequential scales.
var sequential = map[string][]string{
	"viridis": {"#440154", "#482878", "#3e4989", "#31688e", "#26828e", "#1f9e89", "#35b779", "#6ece58", "#b5de2b", "#fde725"},
	"plasma":  {"#0d0887", "#46039f", "#7201a8", "#9c179e", "#bd3786", "#d8576b", "#ed7953", "#fb9f3a", "#fdca26", "#f0f921"},
	"inferno": {"#000004", "#1b0c41", "#4a0c6b", "#781c6d", "#a52c60", "#cf4446", "#ed6925", "#fb9b06", "#f7d13d", "#fcffa4"},
	"magma":   {"#000004", "#180f3d", "#440f76", "#721f81", "#9e2f7f", "#cd4071", "#f1605d", "#fd9668", "#feca8d", "#fcfdbf"},
	"cividis": {"#00224e", "#123570", "#3b496c", "#575d6d", "#707173", "#8a8678", "#a59c74", "#c3b369", "#e1cc55", "#fee838"},
}

// perceptual are Moreland's maps shipped with gonum/plot.
var perceptual = map[string]func() palette.ColorMap{
	"blackbody":     moreland.BlackBody,
	"kindlmann":     moreland.Kindlmann,
	"smoothbluered": func() palette.ColorMap { return moreland.SmoothBlueRed() },
}

type scale interface {
	at(position float64) (colorful.Color, error)
}

// Registry samples named colour scales. Names are case-insensitive and a
// "_r" suffix reverses a scale.
type Registry struct {
	scales map[string]scale
}

// NewRegistry builds the registry of every built-in scale.
func NewRegistry() (*Registry, error) {
	r := &Registry{scales: make(map[string]scale)}
	for name, hexes := range sequential {
		s, err := newControlScale(hexes)
		if err != nil {
			return nil, fmt.Errorf("colorscale %s: %w", name, err)
		}
		r.scales[name] = s
	}
	for name, build := range perceptual {
		cm := build()
		cm.SetMin(0)
		cm.SetMax(1)
		r.scales[name] = mapScale{cm: cm}
	}
	return r, nil
}

// MustNewRegistry is NewRegistry for package-level wiring; the built-in
// control colours are constants so failure is a programming error.
func MustNewRegistry() *Registry {
	r, err := NewRegistry()
	if err != nil {
		panic(err)
	}
	return r
}

// Names lists the available base scale names, sorted.
func (r *Registry) Names() []string {
	names := make([]string, 0, len(r.scales))
	for n := range r.scales {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

func (r *Registry) lookup(name string) (scale, bool, bool) {
	key := strings.ToLower(strings.TrimSpace(name))
	reversed := false
	if strings.HasSuffix(key, "_r") {
		key = strings.TrimSuffix(key, "_r")
		reversed = true
	}
	s, ok := r.scales[key]
	return s, reversed, ok
}

// Has reports whether name (optionally "_r" suffixed) is a known scale.
func (r *Registry) Has(name string) bool {
	_, _, ok := r.lookup(name)
	return ok
}

// Sample returns the colour at position, clamped to [0,1].
func (r *Registry) Sample(name string, position float64) (colorful.Color, error) {
	s, reversed, ok := r.lookup(name)
	if !ok {
		return colorful.Color{}, fmt.Errorf("%w: %q", core.ErrUnknownColorScale, name)
	}
	if math.IsNaN(position) {
		return colorful.Color{}, fmt.Errorf("position is NaN")
	}
	position = math.Max(0, math.Min(1, position))
	if reversed {
		position = 1 - position
	}
	return s.at(position)
}

// controlScale interpolates linearly in RGB between evenly spaced colours.
type controlScale struct {
	stops []colorful.Color
}

func newControlScale(hexes []string) (controlScale, error) {
	stops := make([]colorful.Color, len(hexes))
	for i, h := range hexes {
		c, err := colorful.Hex(h)
		if err != nil {
			return controlScale{}, err
		}
		stops[i] = c
	}
	return controlScale{stops: stops}, nil
}

func (s controlScale) at(position float64) (colorful.Color, error) {
	last := len(s.stops) - 1
	h := position * float64(last)
	lo := int(math.Floor(h))
	if lo >= last {
		return s.stops[last], nil
	}
	return s.stops[lo].BlendRgb(s.stops[lo+1], h-float64(lo)), nil
}

type mapScale struct {
	cm palette.ColorMap
}

func (s mapScale) at(position float64) (colorful.Color, error) {
	c, err := s.cm.At(position)
	if err != nil {
		return colorful.Color{}, err
	}
	out, ok := colorful.MakeColor(c)
	if !ok {
		return colorful.Color{}, fmt.Errorf("colour map returned a fully transparent colour")
	}
	return out, nil
}
