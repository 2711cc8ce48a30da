package protocol

import (
	"errors"
	"fmt"
	"io/fs"
	"os"

	"github.com/goccy/go-json"
	"github.com/homemade/hubble/sync"
)

// ReadState loads per-stream states from path. A missing file is an empty state.
func ReadState(path string) (map[string]sync.State, error) {
	result := make(map[string]sync.State)
	if path == "" {
		return result, nil
	}
	b, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return result, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read state file %s %w", path, err)
	}
	if len(b) == 0 {
		return result, nil
	}
	if err := json.Unmarshal(b, &result); err != nil {
		return nil, fmt.Errorf("failed to parse state file %s %w", path, err)
	}
	return result, nil
}

// WriteState replaces the file at path with states, merged over previous.
// Streams absent from states keep their previous value.
func WriteState(path string, previous map[string]sync.State, states map[string]sync.State) error {
	merged := make(map[string]sync.State, len(previous)+len(states))
	for k, v := range previous {
		merged[k] = v
	}
	for k, v := range states {
		merged[k] = v
	}
	b, err := json.MarshalIndent(merged, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode state %w", err)
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, b, 0o644); err != nil {
		return fmt.Errorf("failed to write state file %s %w", tmp, err)
	}
	if err := os.Rename(tmp, path); err != nil {
		return fmt.Errorf("failed to replace state file %s %w", path, err)
	}
	return nil
}
