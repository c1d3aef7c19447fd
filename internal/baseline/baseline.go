// Package baseline implements training, persisting and retraining
// the per-feature statistical baseline a pipeline run is scored
// against.
package baseline

import (
	"encoding/json"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/HarshdeepAthawale/Security-Detection-for-CI-CD-Pipelines/internal/apperr"
	"github.com/HarshdeepAthawale/Security-Detection-for-CI-CD-Pipelines/internal/feature"
)

// ModelFormatVersion is bumped whenever the feature index mapping
// changes. Load refuses a model tagged with a different version.
const ModelFormatVersion = 1

// stdDevFloor prevents a constant or single-sample feature from
// producing a division by a near-zero stddev.
const stdDevFloor = 0.1

// Stats holds the trained statistics for a single feature.
type Stats struct {
	Mean   float64 `json:"mean"`
	StdDev float64 `json:"stdDev"`
	Count  int     `json:"count"`
	Min    float64 `json:"min"`
	Max    float64 `json:"max"`
}

// Model is the persisted baseline: per-feature statistics plus
// training metadata.
type Model struct {
	Features         map[string]Stats `json:"features"`
	TrainedAt        time.Time        `json:"trainedAt"`
	BaselineRunCount int              `json:"baselineRunCount"`
	PipelineName     string           `json:"pipelineName"`
	Version          int              `json:"version"`
}

// Train fits a fresh Model from one or more feature vectors. The HTTP
// layer is responsible for the ≥2-vectors API gate; this
// component only requires ≥1.
func Train(vectors [][]float64, pipelineName string) (*Model, error) {
	if len(vectors) == 0 {
		return nil, apperr.New(apperr.CodeInvalidInput, "at least one feature vector is required to train a baseline")
	}
	for i, v := range vectors {
		if err := feature.Validate(v); err != nil {
			return nil, apperr.Wrap(apperr.CodeInvalidInput, fmt.Sprintf("feature vector %d is invalid", i), err)
		}
	}

	m := &Model{
		Features:         make(map[string]Stats, feature.Count),
		TrainedAt:        time.Now().UTC(),
		BaselineRunCount: len(vectors),
		PipelineName:     pipelineName,
		Version:          ModelFormatVersion,
	}

	for idx, name := range feature.Names {
		values := make([]float64, len(vectors))
		for i, v := range vectors {
			values[i] = v[idx]
		}
		m.Features[name] = statsFor(values)
	}
	return m, nil
}

func statsFor(values []float64) Stats {
	n := len(values)
	mean := sum(values) / float64(n)

	var variance float64
	minV, maxV := values[0], values[0]
	for _, v := range values {
		d := v - mean
		variance += d * d
		if v < minV {
			minV = v
		}
		if v > maxV {
			maxV = v
		}
	}
	variance /= float64(n)
	stdDev := math.Sqrt(variance)
	if n <= 1 || stdDev == 0 {
		stdDev = stdDevFloor
	}

	return Stats{Mean: mean, StdDev: stdDev, Count: n, Min: minV, Max: maxV}
}

func sum(values []float64) float64 {
	var s float64
	for _, v := range values {
		s += v
	}
	return s
}

// Retrain combines an existing model with newly observed vectors,
// producing an approximate pooled model without retaining individual
// historical samples. The retrained stddev is an approximation, not an
// exact pooled variance.
func Retrain(old *Model, vectors [][]float64, pipelineName string) (*Model, error) {
	if old == nil {
		return Train(vectors, pipelineName)
	}
	if len(vectors) == 0 {
		return nil, apperr.New(apperr.CodeInvalidInput, "at least one feature vector is required to retrain a baseline")
	}
	for i, v := range vectors {
		if err := feature.Validate(v); err != nil {
			return nil, apperr.Wrap(apperr.CodeInvalidInput, fmt.Sprintf("feature vector %d is invalid", i), err)
		}
	}

	fresh, err := Train(vectors, pipelineName)
	if err != nil {
		return nil, err
	}

	merged := &Model{
		Features:         make(map[string]Stats, feature.Count),
		TrainedAt:        time.Now().UTC(),
		BaselineRunCount: old.BaselineRunCount + len(vectors),
		PipelineName:     pipelineName,
		Version:          ModelFormatVersion,
	}

	for _, name := range feature.Names {
		newStats := fresh.Features[name]
		oldStats, hadOld := old.Features[name]
		if !hadOld {
			merged.Features[name] = newStats
			continue
		}

		n0, n1 := float64(oldStats.Count), float64(newStats.Count)
		total := n0 + n1
		mean := (oldStats.Mean*n0 + newStats.Mean*n1) / total
		variance := (oldStats.StdDev*oldStats.StdDev*n0 + newStats.StdDev*newStats.StdDev*n1) / total
		stdDev := math.Sqrt(variance)
		if stdDev < stdDevFloor {
			stdDev = stdDevFloor
		}

		merged.Features[name] = Stats{
			Mean:   mean,
			StdDev: stdDev,
			Count:  int(total),
			Min:    math.Min(oldStats.Min, newStats.Min),
			Max:    math.Max(oldStats.Max, newStats.Max),
		}
	}

	return merged, nil
}

// Validate enforces the model-file invariants: the
// feature-name set must be exactly the 17 required names, and no
// stddev may be negative.
func Validate(m *Model) error {
	if m == nil {
		return apperr.New(apperr.CodeInvalidInput, "model is nil")
	}
	if m.Version != ModelFormatVersion {
		return apperr.New(apperr.CodeInvalidInput, fmt.Sprintf("model format version %d is incompatible with %d", m.Version, ModelFormatVersion))
	}
	if len(m.Features) != feature.Count {
		return apperr.New(apperr.CodeInvalidInput, "model must define exactly 17 features")
	}
	for _, name := range feature.Names {
		s, ok := m.Features[name]
		if !ok {
			return apperr.New(apperr.CodeInvalidInput, fmt.Sprintf("model is missing required feature %q", name))
		}
		if s.StdDev < 0 {
			return apperr.New(apperr.CodeInvalidInput, fmt.Sprintf("feature %q has a negative stddev", name))
		}
	}
	return nil
}

// Store persists a named baseline model to disk with an atomic
// temp-file-then-rename replace, so concurrent readers never observe a
// partially written file.
type Store struct {
	mu  sync.RWMutex
	dir string
}

// NewStore creates a Store rooted at dir, creating it if necessary.
func NewStore(dir string) (*Store, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, apperr.Wrap(apperr.CodeInternal, "failed to create baseline model directory", err)
	}
	return &Store{dir: dir}, nil
}

func (s *Store) pathFor(name string) string {
	if name == "" {
		name = "baseline-model"
	}
	return filepath.Join(s.dir, name+".json")
}

// Save atomically replaces the named model file.
func (s *Store) Save(name string, m *Model) error {
	if err := Validate(m); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := json.MarshalIndent(m, "", "  ")
	if err != nil {
		return apperr.Wrap(apperr.CodeInternal, "failed to marshal baseline model", err)
	}

	final := s.pathFor(name)
	tmp, err := os.CreateTemp(s.dir, ".baseline-*.tmp")
	if err != nil {
		return apperr.Wrap(apperr.CodeInternal, "failed to create temp file for baseline model", err)
	}
	tmpPath := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return apperr.Wrap(apperr.CodeInternal, "failed to write baseline model", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpPath)
		return apperr.Wrap(apperr.CodeInternal, "failed to close baseline model temp file", err)
	}
	if err := os.Rename(tmpPath, final); err != nil {
		os.Remove(tmpPath)
		return apperr.Wrap(apperr.CodeInternal, "failed to replace baseline model file", err)
	}
	return nil
}

// Load reads and validates the named model file.
func (s *Store) Load(name string) (*Model, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	data, err := os.ReadFile(s.pathFor(name))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, apperr.Wrap(apperr.CodeNotFound, "no trained baseline model found", err)
		}
		return nil, apperr.Wrap(apperr.CodeInternal, "failed to read baseline model", err)
	}

	var m Model
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, apperr.Wrap(apperr.CodeInternal, "failed to parse baseline model", err)
	}
	if err := Validate(&m); err != nil {
		return nil, err
	}
	return &m, nil
}
