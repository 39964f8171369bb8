package solvers

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"

	"github.com/san-kum/stagesim/internal/model"
)

// ErrImport is returned when the chain nodes cannot be read.
var ErrImport = errors.New("solvers: model import failed")

// generateNodes places n equally spaced nodes on [0, length].
func generateNodes(mp *model.ModelPart, n int, length float64) error {
	if n < 2 {
		return fmt.Errorf("%w: a chain needs at least 2 nodes, got %d", ErrImport, n)
	}
	spacing := length / float64(n-1)
	for i := 0; i < n; i++ {
		if _, err := mp.CreateNode(i+1, float64(i)*spacing); err != nil {
			return err
		}
	}
	return nil
}

// readNodesCSV reads rows of "id,x[,displacement[,velocity]]". A first
// row whose id is not an integer is treated as a header.
func readNodesCSV(mp *model.ModelPart, path string) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrImport, err)
	}
	defer f.Close()

	r := csv.NewReader(f)
	r.FieldsPerRecord = -1
	r.TrimLeadingSpace = true

	for line := 1; ; line++ {
		rec, err := r.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return fmt.Errorf("%w: %s: %v", ErrImport, path, err)
		}
		if len(rec) < 2 {
			return fmt.Errorf("%w: %s:%d: want at least id and x", ErrImport, path, line)
		}

		id, err := strconv.Atoi(rec[0])
		if err != nil {
			if line == 1 {
				continue
			}
			return fmt.Errorf("%w: %s:%d: bad node id %q", ErrImport, path, line, rec[0])
		}

		vals := make([]float64, len(rec)-1)
		for i, field := range rec[1:] {
			if vals[i], err = strconv.ParseFloat(field, 64); err != nil {
				return fmt.Errorf("%w: %s:%d: %v", ErrImport, path, line, err)
			}
		}

		node, err := mp.CreateNode(id, vals[0])
		if err != nil {
			return err
		}
		if len(vals) > 1 {
			if err := node.SetSolutionStepValue(Displacement, vals[1]); err != nil {
				return err
			}
		}
		if len(vals) > 2 {
			if err := node.SetSolutionStepValue(Velocity, vals[2]); err != nil {
				return err
			}
		}
	}

	if mp.NumberOfNodes() < 2 {
		return fmt.Errorf("%w: %s holds %d nodes, a chain needs at least 2", ErrImport, path, mp.NumberOfNodes())
	}
	return nil
}
