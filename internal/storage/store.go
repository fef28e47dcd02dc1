package storage

import (
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"time"

	"github.com/san-kum/stochsim/internal/sim"
)

var (
	ErrRunNotFound  = errors.New("storage: run not found")
	ErrInvalidRunID = errors.New("storage: invalid run id")
)

// Store keeps one directory per ensemble run under baseDir, holding
// metadata.json and one realization_NNN.csv per realization.
type Store struct {
	baseDir string
	logger  *slog.Logger
}

type StoreOption func(*Store)

func WithLogger(l *slog.Logger) StoreOption {
	return func(s *Store) { s.logger = l }
}

func New(baseDir string, opts ...StoreOption) *Store {
	s := &Store{baseDir: baseDir, logger: slog.New(slog.NewTextHandler(io.Discard, nil))}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Store) Init() error {
	return os.MkdirAll(s.baseDir, 0755)
}

type RunMetadata struct {
	ID           string             `json:"id"`
	Model        string             `json:"model"`
	Kind         string             `json:"kind"`
	Timestamp    time.Time          `json:"timestamp"`
	Seed         int64              `json:"seed"`
	TMax         float64            `json:"t_max"`
	Dt           float64            `json:"dt,omitempty"`
	Realizations int                `json:"realizations"`
	VarNames     []string           `json:"var_names"`
	Warning      string             `json:"warning,omitempty"`
	Metrics      map[string]float64 `json:"metrics,omitempty"`
}

// Save writes a run and returns its id. meta.ID, meta.Timestamp and
// meta.Realizations are filled in.
func (s *Store) Save(meta RunMetadata, results []*sim.Result) (string, error) {
	now := time.Now()
	meta.ID = fmt.Sprintf("%s_%d", slug(meta.Model), now.UnixNano())
	meta.Timestamp = now
	meta.Realizations = len(results)

	runDir := filepath.Join(s.baseDir, meta.ID)
	if err := os.MkdirAll(runDir, 0755); err != nil {
		return "", err
	}

	if err := writeJSON(filepath.Join(runDir, "metadata.json"), meta); err != nil {
		return "", err
	}

	for i, r := range results {
		if err := s.writeRealization(runDir, i, meta.VarNames, r); err != nil {
			return "", fmt.Errorf("realization %d: %w", i+1, err)
		}
	}

	s.logger.Debug("run saved", "id", meta.ID, "realizations", len(results))
	return meta.ID, nil
}

func (s *Store) writeRealization(runDir string, i int, varNames []string, r *sim.Result) error {
	f, err := os.Create(filepath.Join(runDir, realizationFile(i)))
	if err != nil {
		return err
	}
	defer f.Close()
	return WriteCSV(f, varNames, r)
}

// slug keeps ids safe as directory names.
func slug(name string) string {
	if name == "" {
		return "run"
	}
	b := []byte(name)
	for i, c := range b {
		if !(c >= 'a' && c <= 'z' || c >= 'A' && c <= 'Z' || c >= '0' && c <= '9' || c == '_' || c == '-') {
			b[i] = '_'
		}
	}
	return string(b)
}

func realizationFile(i int) string {
	return fmt.Sprintf("realization_%03d.csv", i+1)
}

func writeJSON(path string, v any) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()

	enc := json.NewEncoder(f)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// List returns the stored runs, newest first. Directories without readable
// metadata are skipped.
func (s *Store) List() ([]RunMetadata, error) {
	entries, err := os.ReadDir(s.baseDir)
	if err != nil {
		if os.IsNotExist(err) {
			return []RunMetadata{}, nil
		}
		return nil, err
	}

	runs := make([]RunMetadata, 0)
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}

		meta, err := s.Load(entry.Name())
		if err != nil {
			s.logger.Debug("skipping run directory", "dir", entry.Name(), "error", err)
			continue
		}
		runs = append(runs, *meta)
	}

	sort.Slice(runs, func(i, j int) bool { return runs[i].Timestamp.After(runs[j].Timestamp) })
	return runs, nil
}

func (s *Store) Load(runID string) (*RunMetadata, error) {
	dir, err := s.runDir(runID)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(filepath.Join(dir, "metadata.json"))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%w: %s", ErrRunNotFound, runID)
		}
		return nil, err
	}

	var meta RunMetadata
	if err := json.Unmarshal(data, &meta); err != nil {
		return nil, err
	}
	return &meta, nil
}

// LoadRealization reads realization i (0-based) of a run.
func (s *Store) LoadRealization(runID string, i int) (*sim.Result, error) {
	dir, err := s.runDir(runID)
	if err != nil {
		return nil, err
	}
	f, err := os.Open(filepath.Join(dir, realizationFile(i)))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%w: %s realization %d", ErrRunNotFound, runID, i+1)
		}
		return nil, err
	}
	defer f.Close()

	r, _, err := ReadCSV(f)
	return r, err
}

// LoadAll reads every realization of a run.
func (s *Store) LoadAll(runID string) (*RunMetadata, []*sim.Result, error) {
	meta, err := s.Load(runID)
	if err != nil {
		return nil, nil, err
	}
	results := make([]*sim.Result, meta.Realizations)
	for i := range results {
		if results[i], err = s.LoadRealization(runID, i); err != nil {
			return nil, nil, err
		}
	}
	return meta, results, nil
}

func (s *Store) runDir(runID string) (string, error) {
	if runID == "" || runID != filepath.Base(runID) || runID == "." || runID == ".." {
		return "", fmt.Errorf("%w: %q", ErrInvalidRunID, runID)
	}
	return filepath.Join(s.baseDir, runID), nil
}

// WriteCSV writes one realization with a header of "time" followed by the
// variable names.
func WriteCSV(out io.Writer, varNames []string, r *sim.Result) error {
	w := csv.NewWriter(out)

	header := []string{"time"}
	if len(varNames) > 0 {
		header = append(header, varNames...)
	} else if r.Len() > 0 {
		for i := range r.States[0] {
			header = append(header, fmt.Sprintf("x%d", i))
		}
	}
	if err := w.Write(header); err != nil {
		return err
	}

	for i := range r.States {
		row := make([]string, 0, len(r.States[i])+1)
		row = append(row, strconv.FormatFloat(r.Times[i], 'g', -1, 64))
		for _, val := range r.States[i] {
			row = append(row, strconv.FormatFloat(val, 'g', -1, 64))
		}
		if err := w.Write(row); err != nil {
			return err
		}
	}

	w.Flush()
	return w.Error()
}

// ReadCSV parses the output of WriteCSV and returns the variable names from
// the header.
func ReadCSV(in io.Reader) (*sim.Result, []string, error) {
	r := csv.NewReader(in)
	r.FieldsPerRecord = -1

	records, err := r.ReadAll()
	if err != nil {
		return nil, nil, err
	}
	if len(records) == 0 {
		return nil, nil, errors.New("storage: empty csv")
	}

	varNames := records[0][1:]
	res := &sim.Result{
		Times:  make([]float64, 0, len(records)-1),
		States: make([]sim.State, 0, len(records)-1),
	}
	for line, record := range records[1:] {
		if len(record) != len(varNames)+1 {
			return nil, nil, fmt.Errorf("storage: line %d has %d fields, want %d", line+2, len(record), len(varNames)+1)
		}
		t, err := strconv.ParseFloat(record[0], 64)
		if err != nil {
			return nil, nil, fmt.Errorf("storage: line %d: %w", line+2, err)
		}
		state := make(sim.State, len(varNames))
		for j := range state {
			if state[j], err = strconv.ParseFloat(record[j+1], 64); err != nil {
				return nil, nil, fmt.Errorf("storage: line %d: %w", line+2, err)
			}
		}
		res.Times = append(res.Times, t)
		res.States = append(res.States, state)
	}
	return res, varNames, nil
}
