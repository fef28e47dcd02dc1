package storage

import (
	"bytes"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/san-kum/stochsim/internal/sim"
)

func sampleResults() []*sim.Result {
	return []*sim.Result{
		{
			Times:  []float64{0, 0.013, 0.5},
			States: []sim.State{{500, 100}, {501, 100}, {500, 101}},
			Events: 2,
		},
		{
			Times:     []float64{0, 1e-7},
			States:    []sim.State{{500, 100}, {499, 100}},
			Events:    1,
			Truncated: true,
		},
	}
}

func TestStoreSaveLoad(t *testing.T) {
	tmpDir := t.TempDir()
	st := New(tmpDir)

	if err := st.Init(); err != nil {
		t.Fatalf("init failed: %v", err)
	}

	meta := RunMetadata{
		Model:    "food_chain",
		Kind:     "ssa",
		Seed:     42,
		TMax:     5,
		VarNames: []string{"Plants", "Herbivores"},
		Metrics:  map[string]float64{"events_avg": 1.5},
	}
	runID, err := st.Save(meta, sampleResults())
	if err != nil {
		t.Fatalf("save failed: %v", err)
	}
	if !strings.HasPrefix(runID, "food_chain_") {
		t.Errorf("unexpected run id %q", runID)
	}

	loaded, err := st.Load(runID)
	if err != nil {
		t.Fatalf("load failed: %v", err)
	}
	if loaded.Model != "food_chain" || loaded.Seed != 42 || loaded.Realizations != 2 {
		t.Errorf("metadata = %+v", loaded)
	}
	if loaded.Metrics["events_avg"] != 1.5 {
		t.Errorf("expected events_avg 1.5, got %f", loaded.Metrics["events_avg"])
	}

	for _, name := range []string{"metadata.json", "realization_001.csv", "realization_002.csv"} {
		if _, err := os.Stat(filepath.Join(tmpDir, runID, name)); err != nil {
			t.Errorf("missing %s: %v", name, err)
		}
	}

	r, err := st.LoadRealization(runID, 0)
	if err != nil {
		t.Fatalf("load realization failed: %v", err)
	}
	if r.Len() != 3 || r.Times[1] != 0.013 || r.States[2][1] != 101 {
		t.Errorf("realization = %+v", r)
	}

	_, all, err := st.LoadAll(runID)
	if err != nil {
		t.Fatal(err)
	}
	if len(all) != 2 || all[1].Times[1] != 1e-7 {
		t.Errorf("LoadAll returned %d realizations", len(all))
	}
}

func TestStoreList(t *testing.T) {
	tmpDir := t.TempDir()
	st := New(tmpDir)

	if err := st.Init(); err != nil {
		t.Fatalf("init failed: %v", err)
	}

	runs, err := st.List()
	if err != nil {
		t.Fatal(err)
	}
	if len(runs) != 0 {
		t.Errorf("expected no runs, got %d", len(runs))
	}

	first, _ := st.Save(RunMetadata{Model: "a"}, sampleResults())
	second, _ := st.Save(RunMetadata{Model: "b"}, sampleResults())
	if err := os.MkdirAll(filepath.Join(tmpDir, "junk"), 0755); err != nil {
		t.Fatal(err)
	}

	runs, err = st.List()
	if err != nil {
		t.Fatal(err)
	}
	if len(runs) != 2 {
		t.Fatalf("expected 2 runs, got %d", len(runs))
	}
	if runs[0].ID != second || runs[1].ID != first {
		t.Errorf("runs not newest first: %s, %s", runs[0].ID, runs[1].ID)
	}
}

func TestStoreList_MissingDir(t *testing.T) {
	runs, err := New(filepath.Join(t.TempDir(), "absent")).List()
	if err != nil || len(runs) != 0 {
		t.Errorf("List() = %v, %v", runs, err)
	}
}

func TestStoreLoad_Errors(t *testing.T) {
	st := New(t.TempDir())
	if _, err := st.Load("nope"); !errors.Is(err, ErrRunNotFound) {
		t.Errorf("expected ErrRunNotFound, got %v", err)
	}
	for _, id := range []string{"", "..", "../etc", "a/b"} {
		if _, err := st.Load(id); !errors.Is(err, ErrInvalidRunID) {
			t.Errorf("Load(%q): expected ErrInvalidRunID, got %v", id, err)
		}
	}
}

func TestSaveSanitizesModelName(t *testing.T) {
	st := New(t.TempDir())
	id, err := st.Save(RunMetadata{Model: "../evil model"}, nil)
	if err != nil {
		t.Fatal(err)
	}
	if strings.ContainsAny(id, "/. ") {
		t.Errorf("unsafe run id %q", id)
	}
}

func TestCSVRoundTrip(t *testing.T) {
	var buf bytes.Buffer
	r := sampleResults()[0]
	if err := WriteCSV(&buf, []string{"Prey", "Pred"}, r); err != nil {
		t.Fatal(err)
	}
	if !strings.HasPrefix(buf.String(), "time,Prey,Pred\n") {
		t.Errorf("unexpected header: %q", buf.String())
	}

	got, names, err := ReadCSV(&buf)
	if err != nil {
		t.Fatal(err)
	}
	if len(names) != 2 || names[1] != "Pred" {
		t.Errorf("names = %v", names)
	}
	for i := range r.Times {
		if got.Times[i] != r.Times[i] || got.States[i][0] != r.States[i][0] {
			t.Errorf("row %d = %v %v", i, got.Times[i], got.States[i])
		}
	}
}

func TestReadCSV_Malformed(t *testing.T) {
	if _, _, err := ReadCSV(strings.NewReader("time,X\n0,1\n0.5\n")); err == nil {
		t.Error("expected error for short row")
	}
	if _, _, err := ReadCSV(strings.NewReader("time,X\nzero,1\n")); err == nil {
		t.Error("expected error for bad number")
	}
}

func TestExportJSON(t *testing.T) {
	data := NewExport(RunMetadata{Model: "m", Kind: "ssa", VarNames: []string{"X", "Y"}, Seed: 3}, sampleResults())

	var buf bytes.Buffer
	if err := ExportJSON(&buf, data); err != nil {
		t.Fatal(err)
	}

	var decoded ExportData
	if err := json.Unmarshal(buf.Bytes(), &decoded); err != nil {
		t.Fatal(err)
	}
	if decoded.Model != "m" || len(decoded.Realizations) != 2 {
		t.Errorf("decoded = %+v", decoded)
	}
	if !decoded.Realizations[1].Truncated || decoded.Realizations[0].Events != 2 {
		t.Error("realization fields lost")
	}

	results := decoded.Results()
	if results[0].Len() != 3 || results[0].States[1][0] != 501 {
		t.Errorf("Results() = %+v", results[0])
	}
}
