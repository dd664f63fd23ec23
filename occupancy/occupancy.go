// Package occupancy holds the raw occupancy raster produced by the SLAM
// engine and the pure tile-averaging function that derives the coarse
// three-valued planning grid from it.
package occupancy

import "fmt"

// Map is a square raster of occupancy bytes: higher means more likely free,
// per the external estimator's convention.
type Map struct {
	Pixels int
	Bytes  []byte
}

// NewMap allocates a Pixels x Pixels raster, every byte initialized free
// (255), matching an estimator that has not yet observed a cell.
func NewMap(pixels int) Map {
	b := make([]byte, pixels*pixels)
	for i := range b {
		b[i] = 255
	}
	return Map{Pixels: pixels, Bytes: b}
}

// At returns the byte at pixel (x, y).
func (m Map) At(x, y int) byte {
	return m.Bytes[y*m.Pixels+x]
}

// Clone returns an independently-owned copy; callers never receive an
// aliased buffer.
func (m Map) Clone() Map {
	cp := make([]byte, len(m.Bytes))
	copy(cp, m.Bytes)
	return Map{Pixels: m.Pixels, Bytes: cp}
}

// Cell is a planning-grid label.
type Cell int

const (
	Free Cell = iota
	Blocked
	Unknown
)

// Coord addresses one planning-grid cell.
type Coord struct {
	X, Y int
}

// String renders a Coord as "(x,y)" for log lines and test failure output.
func (c Coord) String() string {
	return fmt.Sprintf("(%d,%d)", c.X, c.Y)
}

// Grid is the square, three-valued planning representation derived from a Map.
type Grid struct {
	N      int
	Labels []Cell
}

// At returns the label at grid cell (x, y).
func (g Grid) At(x, y int) Cell {
	return g.Labels[y*g.N+x]
}

// InBounds reports whether (x, y) is a valid cell in this grid.
func (g Grid) InBounds(x, y int) bool {
	return x >= 0 && x < g.N && y >= 0 && y < g.N
}

// GridConfig carries the tile size in source pixels and the two
// thresholds that separate FREE / BLOCKED / UNKNOWN.
type GridConfig struct {
	CellPixels   int
	FreeAbove    int
	BlockedBelow int
}

// Coarsen tile-averages m into a three-valued Grid. Deterministic: the
// same bytes always produce the same labels. Empty (off-raster) tiles
// default to an average of 255, i.e. FREE.
func Coarsen(m Map, cfg GridConfig) Grid {
	cellPx := cfg.CellPixels
	if cellPx < 1 {
		cellPx = 1
	}
	n := (m.Pixels + cellPx - 1) / cellPx

	labels := make([]Cell, n*n)
	for cy := 0; cy < n; cy++ {
		for cx := 0; cx < n; cx++ {
			x0 := cx * cellPx
			y0 := cy * cellPx
			x1 := min(x0+cellPx, m.Pixels)
			y1 := min(y0+cellPx, m.Pixels)

			sum, count := 0, 0
			for y := y0; y < y1; y++ {
				for x := x0; x < x1; x++ {
					sum += int(m.At(x, y))
					count++
				}
			}

			avg := 255
			if count > 0 {
				avg = sum / count
			}

			var label Cell
			switch {
			case avg > cfg.FreeAbove:
				label = Free
			case avg < cfg.BlockedBelow:
				label = Blocked
			default:
				label = Unknown
			}
			labels[cy*n+cx] = label
		}
	}
	return Grid{N: n, Labels: labels}
}
