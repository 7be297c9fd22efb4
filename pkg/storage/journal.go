// Package storage keeps an append-only journal of committed invoker events
// next to the state database.
package storage

import (
	"encoding/json"
	"os"
	"path/filepath"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/equilibria-xyz/perennial-v2-sub004/pkg/invoker"
)

type NopJournal struct{}

func NewNopJournal() *NopJournal            { return &NopJournal{} }
func (j *NopJournal) Publish(invoker.Event) {}
func (j *NopJournal) Close() error          { return nil }

// Entry is one journal line.
type Entry struct {
	Time  time.Time     `json:"time"`
	Event invoker.Event `json:"event"`
}

// FileJournal appends one JSON line per event.
type FileJournal struct {
	mu     sync.Mutex
	f      *os.File
	enc    *json.Encoder
	now    func() time.Time
	logger *zap.Logger
}

func NewFileJournal(path string, logger *zap.Logger) (*FileJournal, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, err
	}
	return &FileJournal{f: f, enc: json.NewEncoder(f), now: time.Now, logger: logger}, nil
}

// Publish never fails the caller; a write error is logged and the event dropped.
func (j *FileJournal) Publish(ev invoker.Event) {
	j.mu.Lock()
	defer j.mu.Unlock()
	if err := j.enc.Encode(Entry{Time: j.now().UTC(), Event: ev}); err != nil {
		j.logger.Warn("journal_write_failed", zap.String("type", ev.Type), zap.Error(err))
	}
}

func (j *FileJournal) Close() error {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.f.Close()
}

var _ invoker.EventSink = (*NopJournal)(nil)
var _ invoker.EventSink = (*FileJournal)(nil)
