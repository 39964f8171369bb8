// Package storage keeps a record of every run: the parameters it used and
// a summary of each stage, one directory per run.
package storage

import (
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"time"
)

// ErrColumnNotFound is returned by LoadColumn for an unknown header.
var ErrColumnNotFound = errors.New("storage: column not found")

type Store struct {
	baseDir string
}

func New(baseDir string) *Store {
	return &Store{baseDir: baseDir}
}

func (s *Store) Init() error {
	return os.MkdirAll(s.baseDir, 0755)
}

// Dir returns the directory of a run.
func (s *Store) Dir(runID string) string {
	return filepath.Join(s.baseDir, runID)
}

type StageRecord struct {
	Name        string   `json:"name"`
	ProblemName string   `json:"problem_name,omitempty"`
	Steps       int      `json:"steps"`
	FinalTime   float64  `json:"final_time"`
	DurationMS  int64    `json:"duration_ms"`
	OutputFiles []string `json:"output_files,omitempty"`
}

type Record struct {
	ID         string          `json:"id"`
	Name       string          `json:"name"`
	Timestamp  time.Time       `json:"timestamp"`
	ParamsFile string          `json:"params_file"`
	Ranks      int             `json:"ranks"`
	Status     string          `json:"status"`
	Error      string          `json:"error,omitempty"`
	Stages     []StageRecord   `json:"stages"`
	Parameters json.RawMessage `json:"parameters,omitempty"`
}

// NewRunID returns a directory-safe id for a run named name.
func NewRunID(name string) string {
	return fmt.Sprintf("%s_%d", name, time.Now().UnixNano())
}

// Save writes rec to <base>/<id>/metadata.json, assigning an id and
// timestamp when they are unset.
func (s *Store) Save(rec *Record) error {
	if rec.ID == "" {
		rec.ID = NewRunID(rec.Name)
	}
	if rec.Timestamp.IsZero() {
		rec.Timestamp = time.Now()
	}

	runDir := s.Dir(rec.ID)
	if err := os.MkdirAll(runDir, 0755); err != nil {
		return err
	}

	metaFile, err := os.Create(filepath.Join(runDir, "metadata.json"))
	if err != nil {
		return err
	}
	defer metaFile.Close()

	enc := json.NewEncoder(metaFile)
	enc.SetIndent("", "  ")
	return enc.Encode(rec)
}

// List returns every readable record, oldest first.
func (s *Store) List() ([]Record, error) {
	entries, err := os.ReadDir(s.baseDir)
	if err != nil {
		if os.IsNotExist(err) {
			return []Record{}, nil
		}
		return nil, err
	}

	runs := make([]Record, 0)
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		rec, err := s.Load(entry.Name())
		if err != nil {
			continue
		}
		runs = append(runs, *rec)
	}

	sort.Slice(runs, func(i, j int) bool {
		return runs[i].Timestamp.Before(runs[j].Timestamp)
	})
	return runs, nil
}

func (s *Store) Load(runID string) (*Record, error) {
	data, err := os.ReadFile(filepath.Join(s.Dir(runID), "metadata.json"))
	if err != nil {
		return nil, err
	}

	var rec Record
	if err := json.Unmarshal(data, &rec); err != nil {
		return nil, err
	}
	return &rec, nil
}

// LoadColumn reads the named column of a CSV file with a header row.
// Rows whose cell does not parse are skipped.
func LoadColumn(path, column string) ([]float64, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer file.Close()

	r := csv.NewReader(file)
	r.FieldsPerRecord = -1

	records, err := r.ReadAll()
	if err != nil {
		return nil, err
	}
	if len(records) == 0 {
		return nil, fmt.Errorf("%w: %s is empty", ErrColumnNotFound, path)
	}

	idx := -1
	for i, name := range records[0] {
		if name == column {
			idx = i
			break
		}
	}
	if idx < 0 {
		return nil, fmt.Errorf("%w: %q in %s", ErrColumnNotFound, column, path)
	}

	values := make([]float64, 0, len(records)-1)
	for _, record := range records[1:] {
		if idx >= len(record) {
			continue
		}
		v, err := strconv.ParseFloat(record[idx], 64)
		if err != nil {
			continue
		}
		values = append(values, v)
	}
	return values, nil
}
