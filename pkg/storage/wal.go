package storage

import (
	"encoding/json"
	"os"
	"sync"

	"go.uber.org/zap"

	"github.com/uhyunpark/portex/pkg/app/core/exchange"
)

// FileWAL appends every committed exchange event to a file as one JSON line.
// It is an audit trail; state is recovered from Pebble, not from this file.
type FileWAL struct {
	mu  sync.Mutex
	f   *os.File
	enc *json.Encoder
	log *zap.SugaredLogger
}

func NewFileWAL(path string, log *zap.SugaredLogger) (*FileWAL, error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, err
	}
	return &FileWAL{f: f, enc: json.NewEncoder(f), log: log}, nil
}

// Observe is an exchange.Observer.
func (w *FileWAL) Observe(r exchange.Record) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if err := w.enc.Encode(r); err != nil {
		w.log.Errorw("wal_append_failed", "seq", r.Seq, "err", err)
	}
}

func (w *FileWAL) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.f.Close()
}
