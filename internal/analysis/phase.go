package analysis

import (
	"strings"

	"github.com/san-kum/stochsim/internal/sim"
)

type Point struct{ X, Y float64 }

// PhasePortrait2D holds one realization projected onto two variables.
type PhasePortrait2D struct {
	XIndex, YIndex int
	Points         []Point
}

// PhasePortrait projects r onto variables xIdx and yIdx, e.g. prey against
// predators. It returns nil if either index is out of range.
func PhasePortrait(r *sim.Result, xIdx, yIdx int) *PhasePortrait2D {
	if r.Len() == 0 || xIdx >= len(r.States[0]) || yIdx >= len(r.States[0]) {
		return nil
	}
	p := &PhasePortrait2D{
		XIndex: xIdx,
		YIndex: yIdx,
		Points: make([]Point, r.Len()),
	}
	for i, s := range r.States {
		p.Points[i] = Point{X: s[xIdx], Y: s[yIdx]}
	}
	return p
}

// ASCII renders the portrait on a width x height character canvas with 10%
// padding around the data. Axes are drawn where they cross the view.
func (p *PhasePortrait2D) ASCII(width, height int) string {
	if p == nil || len(p.Points) == 0 || width < 2 || height < 2 {
		return ""
	}

	minX, maxX := p.Points[0].X, p.Points[0].X
	minY, maxY := p.Points[0].Y, p.Points[0].Y
	for _, pt := range p.Points {
		minX, maxX = min(minX, pt.X), max(maxX, pt.X)
		minY, maxY = min(minY, pt.Y), max(maxY, pt.Y)
	}
	minX, maxX = pad(minX, maxX)
	minY, maxY = pad(minY, maxY)
	rangeX, rangeY := maxX-minX, maxY-minY

	canvas := make([][]rune, height)
	for i := range canvas {
		canvas[i] = []rune(strings.Repeat(" ", width))
	}
	col := func(x float64) int { return int((x - minX) / rangeX * float64(width-1)) }
	row := func(y float64) int { return height - 1 - int((y-minY)/rangeY*float64(height-1)) }

	for _, pt := range p.Points {
		if r, c := row(pt.Y), col(pt.X); r >= 0 && r < height && c >= 0 && c < width {
			canvas[r][c] = '•'
		}
	}
	if minX <= 0 && maxX >= 0 {
		c := col(0)
		for r := 0; r < height; r++ {
			if canvas[r][c] == ' ' {
				canvas[r][c] = '│'
			}
		}
	}
	if minY <= 0 && maxY >= 0 {
		r := row(0)
		for c := 0; c < width; c++ {
			if canvas[r][c] == ' ' {
				canvas[r][c] = '─'
			}
		}
	}

	var sb strings.Builder
	for _, line := range canvas {
		sb.WriteString(string(line))
		sb.WriteRune('\n')
	}
	return sb.String()
}

func pad(lo, hi float64) (float64, float64) {
	span := hi - lo
	if span == 0 {
		span = 1
	}
	return lo - span*0.1, hi + span*0.1
}
