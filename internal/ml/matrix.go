package ml

import (
	"fmt"

	"gonum.org/v1/gonum/mat"
)

// NewMatrix copies row-major data into a dense matrix.
func NewMatrix(rows [][]float64) (*mat.Dense, error) {
	if len(rows) == 0 {
		return nil, fmt.Errorf("empty matrix")
	}
	cols := len(rows[0])
	data := make([]float64, 0, len(rows)*cols)
	for i, row := range rows {
		if len(row) != cols {
			return nil, fmt.Errorf("row %d has %d columns, expected %d", i, len(row), cols)
		}
		data = append(data, row...)
	}
	return mat.NewDense(len(rows), cols, data), nil
}

// SelectColumns projects m onto the given column indices.
func SelectColumns(m mat.Matrix, idx []int) *mat.Dense {
	r, _ := m.Dims()
	out := mat.NewDense(r, len(idx), nil)
	for i := 0; i < r; i++ {
		for j, c := range idx {
			out.Set(i, j, m.At(i, c))
		}
	}
	return out
}

// SelectRows copies the listed rows of m.
func SelectRows(m mat.Matrix, idx []int) *mat.Dense {
	_, c := m.Dims()
	out := mat.NewDense(len(idx), c, nil)
	for i, r := range idx {
		for j := 0; j < c; j++ {
			out.Set(i, j, m.At(r, j))
		}
	}
	return out
}

// denseJSON is the persisted form of a matrix.
type denseJSON struct {
	Rows int       `json:"rows"`
	Cols int       `json:"cols"`
	Data []float64 `json:"data"`
}

func encodeDense(m *mat.Dense) denseJSON {
	r, c := m.Dims()
	data := make([]float64, 0, r*c)
	for i := 0; i < r; i++ {
		data = append(data, m.RawRowView(i)...)
	}
	return denseJSON{Rows: r, Cols: c, Data: data}
}

func (d denseJSON) decode() (*mat.Dense, error) {
	if d.Rows <= 0 || d.Cols <= 0 || len(d.Data) != d.Rows*d.Cols {
		return nil, fmt.Errorf("matrix %dx%d with %d values", d.Rows, d.Cols, len(d.Data))
	}
	return mat.NewDense(d.Rows, d.Cols, d.Data), nil
}
