package present

import (
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/lucasb-eyer/go-colorful"
)

const (
	gradientStart = "#FF8C42"
	gradientEnd   = "#6B50FF"
)

// MakeGradientRamp blends gradientStart into gradientEnd over length steps.
func MakeGradientRamp(length int) []lipgloss.Color {
	var (
		c        = make([]lipgloss.Color, length)
		start, _ = colorful.Hex(gradientStart)
		end, _   = colorful.Hex(gradientEnd)
	)
	for i := range length {
		step := start.BlendLuv(end, float64(i)/float64(length))
		c[i] = lipgloss.Color(step.Hex())
	}
	return c
}

// MakeGradientText colors each rune of str along the gradient. Strings of
// fewer than three runes are returned as is.
func MakeGradientText(base lipgloss.Style, str string) string {
	runes := []rune(str)
	if len(runes) < 3 { //nolint:mnd
		return str
	}
	var b strings.Builder
	for i, c := range MakeGradientRamp(len(runes)) {
		b.WriteString(base.Foreground(c).Render(string(runes[i])))
	}
	return b.String()
}
