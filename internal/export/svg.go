// Package export renders trajectories as standalone SVG documents.
package export

import (
	"fmt"
	"strings"

	"github.com/san-kum/stochsim/internal/analysis"
	"github.com/san-kum/stochsim/internal/sim"
)

// Palette cycles over realizations.
var Palette = []string{"#00ff88", "#00ccff", "#ff00ff", "#ffcc00", "#ff4444", "#8888ff"}

type bounds struct {
	minX, maxX, minY, maxY float64
}

func (b *bounds) add(x, y float64) {
	b.minX, b.maxX = min(b.minX, x), max(b.maxX, x)
	b.minY, b.maxY = min(b.minY, y), max(b.maxY, y)
}

// padded widens b by 10% on every side.
func (b bounds) padded() bounds {
	rangeX := b.maxX - b.minX
	rangeY := b.maxY - b.minY
	if rangeX == 0 {
		rangeX = 1
	}
	if rangeY == 0 {
		rangeY = 1
	}
	return bounds{
		minX: b.minX - rangeX*0.1,
		maxX: b.maxX + rangeX*0.1,
		minY: b.minY - rangeY*0.1,
		maxY: b.maxY + rangeY*0.1,
	}
}

func (b bounds) project(x, y float64, width, height int) (float64, float64) {
	px := (x - b.minX) / (b.maxX - b.minX) * float64(width)
	py := float64(height) - (y-b.minY)/(b.maxY-b.minY)*float64(height)
	return px, py
}

func header(sb *strings.Builder, width, height int) {
	sb.WriteString(fmt.Sprintf(`<?xml version="1.0" encoding="UTF-8"?>
<svg xmlns="http://www.w3.org/2000/svg" width="%d" height="%d" viewBox="0 0 %d %d">
<rect width="100%%" height="100%%" fill="#0a0a0a"/>
`, width, height, width, height))
}

func path(sb *strings.Builder, xs, ys []float64, b bounds, width, height int, stroke string, steps bool) {
	sb.WriteString(fmt.Sprintf(`<path fill="none" stroke="%s" stroke-width="1.5" d="M`, stroke))
	var lastY float64
	for i := range xs {
		x, y := b.project(xs[i], ys[i], width, height)
		switch {
		case i == 0:
			sb.WriteString(fmt.Sprintf("%.1f,%.1f", x, y))
		case steps:
			sb.WriteString(fmt.Sprintf(" L%.1f,%.1f L%.1f,%.1f", x, lastY, x, y))
		default:
			sb.WriteString(fmt.Sprintf(" L%.1f,%.1f", x, y))
		}
		lastY = y
	}
	sb.WriteString("\"/>\n")
}

// EnsembleSVG draws variable idx of every realization against time. With
// steps set, values are held between samples as jump processes are.
func EnsembleSVG(results []*sim.Result, idx, width, height int, steps bool) string {
	var b *bounds
	for _, r := range results {
		for i, t := range r.Times {
			if idx >= len(r.States[i]) {
				return ""
			}
			if b == nil {
				b = &bounds{t, t, r.States[i][idx], r.States[i][idx]}
			}
			b.add(t, r.States[i][idx])
		}
	}
	if b == nil {
		return ""
	}
	view := b.padded()

	var sb strings.Builder
	header(&sb, width, height)
	for i, r := range results {
		path(&sb, r.Times, r.Series(idx), view, width, height, Palette[i%len(Palette)], steps)
	}
	sb.WriteString("</svg>")
	return sb.String()
}

// PhaseSVG draws a phase portrait as a single path.
func PhaseSVG(p *analysis.PhasePortrait2D, width, height int, stroke string) string {
	if p == nil || len(p.Points) < 2 {
		return ""
	}

	b := bounds{p.Points[0].X, p.Points[0].X, p.Points[0].Y, p.Points[0].Y}
	xs := make([]float64, len(p.Points))
	ys := make([]float64, len(p.Points))
	for i, pt := range p.Points {
		b.add(pt.X, pt.Y)
		xs[i], ys[i] = pt.X, pt.Y
	}

	var sb strings.Builder
	header(&sb, width, height)
	path(&sb, xs, ys, b.padded(), width, height, stroke, false)
	sb.WriteString("</svg>")
	return sb.String()
}
