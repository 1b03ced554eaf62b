// Package filedata is the file-backed handle collaborator: it loads and
// saves chunk values addressed by URL through the abstract file system. The
// data manager calls it exactly as it calls its own materialize path.
package filedata

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"

	"github.com/viant/afs"
	"github.com/viant/afs/file"

	"github.com/chunkgrid/chunkgrid/service/data"
)

// Service implements data.FileStore over afs.
type Service struct {
	fs afs.Service
}

// New creates a file data service.
func New(fs afs.Service) *Service {
	if fs == nil {
		fs = afs.New()
	}
	return &Service{fs: fs}
}

// Materialize loads and decodes the value stored at url.
func (s *Service) Materialize(ctx context.Context, url string) (interface{}, error) {
	payload, err := s.fs.DownloadWithURL(ctx, url)
	if err != nil {
		return nil, fmt.Errorf("failed to download %s: %w", url, err)
	}
	var value interface{}
	if err = json.Unmarshal(payload, &value); err != nil {
		return nil, fmt.Errorf("failed to decode %s: %w", url, err)
	}
	return value, nil
}

// Persist encodes and stores the value at url.
func (s *Service) Persist(ctx context.Context, value interface{}, url string) error {
	payload, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("failed to encode %s: %w", url, err)
	}
	if err = s.fs.Upload(ctx, url, file.DefaultFileOsMode, bytes.NewReader(payload)); err != nil {
		return fmt.Errorf("failed to upload %s: %w", url, err)
	}
	return nil
}

var _ data.FileStore = (*Service)(nil)
