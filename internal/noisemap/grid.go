package noisemap

import (
	"fmt"
	"math"

	"github.com/paulmach/orb"
)

// Cell is one square of the study area
type Cell struct {
	ID    string
	Row   int
	Col   int
	Bound orb.Bound
}

// CellGrid splits the study area into square cells, row 0 at the south
type CellGrid struct {
	Extent orb.Bound
	Size   float64
	Rows   int
	Cols   int
}

// NewCellGrid covers extent with cells of the given size
func NewCellGrid(extent orb.Bound, size float64) (*CellGrid, error) {
	if size <= 0 {
		return nil, fmt.Errorf("cell size must be positive, got %f", size)
	}
	cols := int(math.Ceil((extent.Max[0] - extent.Min[0]) / size))
	rows := int(math.Ceil((extent.Max[1] - extent.Min[1]) / size))
	return &CellGrid{
		Extent: extent,
		Size:   size,
		Rows:   max(rows, 1),
		Cols:   max(cols, 1),
	}, nil
}

// Count returns the number of cells
func (g *CellGrid) Count() int {
	return g.Rows * g.Cols
}

// Cell returns the cell at (row, col)
func (g *CellGrid) Cell(row, col int) (Cell, error) {
	if row < 0 || col < 0 || row >= g.Rows || col >= g.Cols {
		return Cell{}, fmt.Errorf("cell (%d, %d) outside %dx%d grid: %w", row, col, g.Rows, g.Cols, ErrCellOutOfRange)
	}
	minX := g.Extent.Min[0] + float64(col)*g.Size
	minY := g.Extent.Min[1] + float64(row)*g.Size
	return Cell{
		ID:  fmt.Sprintf("cell_%d_%d", row, col),
		Row: row,
		Col: col,
		Bound: orb.Bound{
			Min: orb.Point{minX, minY},
			Max: orb.Point{minX + g.Size, minY + g.Size},
		},
	}, nil
}

// Cells returns every cell in row-major order
func (g *CellGrid) Cells() []Cell {
	cells := make([]Cell, 0, g.Count())
	for row := 0; row < g.Rows; row++ {
		for col := 0; col < g.Cols; col++ {
			c, _ := g.Cell(row, col)
			cells = append(cells, c)
		}
	}
	return cells
}

// Owns reports whether p is attributed to cell c. Cells are half-open except
// on the last row and column so that every point of the extent has exactly
// one owner.
func (g *CellGrid) Owns(c Cell, p orb.Point) bool {
	inX := p[0] >= c.Bound.Min[0] && (p[0] < c.Bound.Max[0] || (c.Col == g.Cols-1 && p[0] <= c.Bound.Max[0]))
	inY := p[1] >= c.Bound.Min[1] && (p[1] < c.Bound.Max[1] || (c.Row == g.Rows-1 && p[1] <= c.Bound.Max[1]))
	return inX && inY
}
