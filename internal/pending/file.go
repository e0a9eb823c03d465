package pending

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
)

// FilePersister stores the slot as a JSON array in a single file.
// Writes go to a temp file in the same directory and are renamed into place.
type FilePersister struct {
	path string
}

// NewFilePersister returns a FilePersister for path. The parent directory is
// created on first save.
func NewFilePersister(path string) *FilePersister {
	return &FilePersister{path: path}
}

// Load implements Persister. A missing file is an empty slot.
func (p *FilePersister) Load(_ context.Context) ([]Record, error) {
	data, err := os.ReadFile(p.path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read slot file: %w", err)
	}
	return decodeSlot(data)
}

// SaveAll implements Persister.
func (p *FilePersister) SaveAll(_ context.Context, records []Record) error {
	data, err := encodeSlot(records)
	if err != nil {
		return err
	}

	dir := filepath.Dir(p.path)
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return fmt.Errorf("create slot dir: %w", err)
	}
	tmp, err := os.CreateTemp(dir, filepath.Base(p.path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("create temp slot file: %w", err)
	}
	defer os.Remove(tmp.Name()) //nolint:errcheck

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("write slot file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close slot file: %w", err)
	}
	if err := os.Rename(tmp.Name(), p.path); err != nil {
		return fmt.Errorf("replace slot file: %w", err)
	}
	return nil
}

// encodeSlot renders records as the slot's JSON array. A nil set encodes as [].
func encodeSlot(records []Record) ([]byte, error) {
	if records == nil {
		records = []Record{}
	}
	data, err := json.Marshal(records)
	if err != nil {
		return nil, fmt.Errorf("marshal pending certificates: %w", err)
	}
	return data, nil
}

func decodeSlot(data []byte) ([]Record, error) {
	if len(data) == 0 {
		return nil, nil
	}
	var records []Record
	if err := json.Unmarshal(data, &records); err != nil {
		return nil, fmt.Errorf("unmarshal pending certificates: %w", err)
	}
	for i := range records {
		// records written before status tracking carry no status
		if records[i].Status == "" {
			records[i].Status = StatusPending
		}
	}
	return records, nil
}
