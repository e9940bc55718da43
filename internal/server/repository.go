package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"sketchpad/internal/log"
	"sketchpad/internal/sample"
)

// fileDocument is the on-disk layout of the shared data file.
type fileDocument struct {
	Data []sample.TrainingSample `json:"data"`
}

// FileRepository keeps the shared sample list in one JSON file. Every
// mutation rewrites the whole file through a temporary file and a rename;
// concurrent writers are serialised and the last one wins.
type FileRepository struct {
	path string

	mu      sync.Mutex
	samples []sample.TrainingSample
}

// OpenFileRepository loads path, creating it with an empty list when it does
// not exist. Entries that do not decode, or that v rejects, are skipped.
func OpenFileRepository(path string, v *sample.Validator) (*FileRepository, error) {
	r := &FileRepository{path: path}

	data, err := os.ReadFile(path)
	switch {
	case errors.Is(err, os.ErrNotExist):
		r.samples = []sample.TrainingSample{}
		if err := r.write(); err != nil {
			return nil, err
		}
		log.Infof("DataServer: Created %s", path)
		return r, nil
	case err != nil:
		return nil, err
	}

	var doc struct {
		Data []json.RawMessage `json:"data"`
	}
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	r.samples = make([]sample.TrainingSample, 0, len(doc.Data))
	for i, raw := range doc.Data {
		var ts sample.TrainingSample
		if err := json.Unmarshal(raw, &ts); err != nil {
			log.Warnf("DataServer: Skipping malformed entry %d in %s: %v", i, path, err)
			continue
		}
		if v != nil {
			if err := v.Sample(ts); err != nil {
				log.Warnf("DataServer: Skipping invalid entry %d in %s: %v", i, path, err)
				continue
			}
		}
		r.samples = append(r.samples, ts)
	}
	log.Infof("DataServer: Loaded %d samples from %s", len(r.samples), path)
	return r, nil
}

// All returns a copy of the stored samples.
func (r *FileRepository) All() []sample.TrainingSample {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]sample.TrainingSample, len(r.samples))
	copy(out, r.samples)
	return out
}

// Append stores ts and returns the new total.
func (r *FileRepository) Append(ts sample.TrainingSample) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.samples = append(r.samples, ts)
	if err := r.write(); err != nil {
		r.samples = r.samples[:len(r.samples)-1]
		return 0, err
	}
	return len(r.samples), nil
}

// Clear empties the list.
func (r *FileRepository) Clear() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	prev := r.samples
	r.samples = []sample.TrainingSample{}
	if err := r.write(); err != nil {
		r.samples = prev
		return err
	}
	return nil
}

// write must be called with r.mu held (or before r is shared).
func (r *FileRepository) write() error {
	payload, err := json.MarshalIndent(fileDocument{Data: r.samples}, "", "  ")
	if err != nil {
		return err
	}

	dir := filepath.Dir(r.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	tmp, err := os.CreateTemp(dir, filepath.Base(r.path)+".*.tmp")
	if err != nil {
		return err
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(payload); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), r.path)
}
