// Package fs implements the checkpoint store on top of the abstract file
// system, one JSON record per key. Results decode back into their concrete
// Go types through a type registry; unregistered types decode generically.
package fs

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"path"
	"reflect"
	"time"

	"github.com/viant/afs"
	"github.com/viant/afs/file"
	"github.com/viant/x"

	"github.com/chunkgrid/chunkgrid/fault"
	"github.com/chunkgrid/chunkgrid/internal/clock"
	"github.com/chunkgrid/chunkgrid/service/checkpoint"
)

// record is the on-disk checkpoint format.
type record struct {
	Key       string          `json:"key"`
	Token     string          `json:"token"`
	Type      string          `json:"type,omitempty"`
	CreatedAt time.Time       `json:"createdAt"`
	Data      json.RawMessage `json:"data"`
}

// Service stores checkpoints under baseURL, one file per key.
type Service struct {
	fs      afs.Service
	baseURL string
	types   *x.Registry
}

// Option customises the checkpoint store.
type Option func(*Service)

// WithTypes registers result types for typed restore.
func WithTypes(types ...*x.Type) Option {
	return func(s *Service) {
		for _, t := range types {
			s.types.Register(t)
		}
	}
}

// New creates a filesystem checkpoint store.
func New(fs afs.Service, baseURL string, options ...Option) *Service {
	ret := &Service{fs: fs, baseURL: baseURL, types: x.NewRegistry()}
	for _, opt := range options {
		opt(ret)
	}
	return ret
}

func (s *Service) url(key string) string {
	return path.Join(s.baseURL, key+".json")
}

// Persist stores the value under key and returns a validity token.
func (s *Service) Persist(ctx context.Context, key string, value interface{}) (string, error) {
	data, err := json.Marshal(value)
	if err != nil {
		return "", &fault.CheckpointError{Key: key, Op: "persist", Err: err}
	}
	rec := record{
		Key:       key,
		Token:     fmt.Sprintf("%s@%d", key, clock.Now().UnixNano()),
		Type:      typeNameOf(value),
		CreatedAt: clock.Now(),
		Data:      data,
	}
	payload, err := json.Marshal(rec)
	if err != nil {
		return "", &fault.CheckpointError{Key: key, Op: "persist", Err: err}
	}
	if err = s.fs.Upload(ctx, s.url(key), file.DefaultFileOsMode, bytes.NewReader(payload)); err != nil {
		return "", &fault.CheckpointError{Key: key, Op: "persist", Err: err}
	}
	return rec.Token, nil
}

// Restore loads the value stored under key; ok is false on miss.
func (s *Service) Restore(ctx context.Context, key string) (interface{}, bool, error) {
	URL := s.url(key)
	if exists, _ := s.fs.Exists(ctx, URL); !exists {
		return nil, false, nil
	}
	payload, err := s.fs.DownloadWithURL(ctx, URL)
	if err != nil {
		return nil, false, &fault.CheckpointError{Key: key, Op: "restore", Err: err}
	}
	var rec record
	if err = json.Unmarshal(payload, &rec); err != nil {
		return nil, false, &fault.CheckpointError{Key: key, Op: "restore", Err: err}
	}
	value, err := s.decode(&rec)
	if err != nil {
		return nil, false, &fault.CheckpointError{Key: key, Op: "restore", Err: err}
	}
	return value, true, nil
}

// decode unmarshals a record's data, using the type registry when the stored
// type is known.
func (s *Service) decode(rec *record) (interface{}, error) {
	if rec.Type != "" {
		if registered := s.types.Lookup(rec.Type); registered != nil {
			value := reflect.New(registered.Type)
			if err := json.Unmarshal(rec.Data, value.Interface()); err != nil {
				return nil, err
			}
			return value.Elem().Interface(), nil
		}
	}
	var generic interface{}
	if err := json.Unmarshal(rec.Data, &generic); err != nil {
		return nil, err
	}
	return generic, nil
}

func typeNameOf(value interface{}) string {
	if value == nil {
		return ""
	}
	rType := reflect.TypeOf(value)
	for rType.Kind() == reflect.Ptr {
		rType = rType.Elem()
	}
	if rType.PkgPath() == "" {
		return ""
	}
	return rType.String()
}

var _ checkpoint.Service = (*Service)(nil)
