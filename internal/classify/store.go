package classify

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"go.uber.org/zap"
)

// Artifact file names inside the model directory. The manifest is
// written last, so its presence marks a complete generation.
const (
	attentionFile   = "attention_model.json"
	distractionFile = "distraction_model.json"
	fatigueFile     = "fatigue_model.json"
	manifestFile    = "manifest.json"
)

// ErrArtifactsMissing reports that no complete model generation exists
// on disk; callers should bootstrap.
var ErrArtifactsMissing = errors.New("model artifacts missing")

type manifest struct {
	State     ModelState         `json:"state"`
	Version   int                `json:"version"`
	TrainedAt time.Time          `json:"trained_at"`
	Accuracy  map[string]float64 `json:"accuracy,omitempty"`
}

// Store persists model generations as JSON artifacts under one
// directory. Writes go through a temp file and rename, so a crash
// mid-save never leaves a half-written artifact behind the manifest.
type Store struct {
	dir    string
	logger *zap.Logger
}

func NewStore(dir string, logger *zap.Logger) *Store {
	return &Store{dir: dir, logger: logger}
}

// HasArtifacts reports whether a committed generation exists locally.
// Only the manifest matters: it is written last, so its presence means
// the artifacts it describes are complete.
func (s *Store) HasArtifacts() bool {
	_, err := os.Stat(filepath.Join(s.dir, manifestFile))
	return err == nil
}

// Load reads the current generation. Returns ErrArtifactsMissing when
// any artifact or the manifest is absent.
func (s *Store) Load() (*artifactSet, error) {
	var m manifest
	if err := s.readJSON(manifestFile, &m); err != nil {
		if os.IsNotExist(err) {
			return nil, ErrArtifactsMissing
		}
		return nil, fmt.Errorf("read model manifest: %w", err)
	}

	set := &artifactSet{
		State:     m.State,
		Version:   m.Version,
		TrainedAt: m.TrainedAt,
	}
	for _, part := range []struct {
		file string
		dst  **Forest
	}{
		{attentionFile, &set.Attention},
		{distractionFile, &set.Distraction},
		{fatigueFile, &set.Fatigue},
	} {
		var f Forest
		if err := s.readJSON(part.file, &f); err != nil {
			if os.IsNotExist(err) {
				return nil, ErrArtifactsMissing
			}
			return nil, fmt.Errorf("read model artifact %s: %w", part.file, err)
		}
		*part.dst = &f
	}

	s.logger.Info("loaded model artifacts",
		zap.String("state", string(set.State)),
		zap.Int("version", set.Version),
		zap.Time("trained_at", set.TrainedAt))
	return set, nil
}

// Save writes a full generation and commits it by renaming the manifest
// into place last.
func (s *Store) Save(set *artifactSet, accuracy map[string]float64) error {
	if err := os.MkdirAll(s.dir, 0o755); err != nil {
		return fmt.Errorf("create model dir: %w", err)
	}
	for _, part := range []struct {
		file string
		data any
	}{
		{attentionFile, set.Attention},
		{distractionFile, set.Distraction},
		{fatigueFile, set.Fatigue},
	} {
		if err := s.writeJSON(part.file, part.data); err != nil {
			return fmt.Errorf("write model artifact %s: %w", part.file, err)
		}
	}
	m := manifest{
		State:     set.State,
		Version:   set.Version,
		TrainedAt: set.TrainedAt,
		Accuracy:  accuracy,
	}
	if err := s.writeJSON(manifestFile, m); err != nil {
		return fmt.Errorf("write model manifest: %w", err)
	}
	return nil
}

// ArtifactPaths lists the files of the current generation, manifest
// included, for mirroring to object storage.
func (s *Store) ArtifactPaths() []string {
	names := []string{attentionFile, distractionFile, fatigueFile, manifestFile}
	paths := make([]string, len(names))
	for i, n := range names {
		paths[i] = filepath.Join(s.dir, n)
	}
	return paths
}

func (s *Store) readJSON(name string, dst any) error {
	data, err := os.ReadFile(filepath.Join(s.dir, name))
	if err != nil {
		return err
	}
	return json.Unmarshal(data, dst)
}

func (s *Store) writeJSON(name string, src any) error {
	data, err := json.Marshal(src)
	if err != nil {
		return err
	}
	tmp, err := os.CreateTemp(s.dir, name+".tmp-*")
	if err != nil {
		return err
	}
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return err
	}
	return os.Rename(tmp.Name(), filepath.Join(s.dir, name))
}
