// Package runlog keeps the append-only journal of controller events as
// hourly zstd-compressed JSONL segments.
package runlog

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/klauspost/compress/zstd"

	"furnacebot.ai/internal/crafter"
)

const hourLayout = "2006-01-02-15"

// segment is one open hourly file.
type segment struct {
	hour string
	file *os.File
	zw   *zstd.Encoder
	enc  *json.Encoder
}

func openSegment(path, hour string) (*segment, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, err
	}
	zw, err := zstd.NewWriter(f, zstd.WithEncoderLevel(zstd.SpeedFastest))
	if err != nil {
		_ = f.Close()
		return nil, err
	}
	return &segment{hour: hour, file: f, zw: zw, enc: json.NewEncoder(zw)}, nil
}

// append encodes ev as one line and ends the zstd block, so a reader sees
// every event written so far.
func (s *segment) append(ev crafter.Event) error {
	if err := s.enc.Encode(ev); err != nil {
		return err
	}
	return s.zw.Flush()
}

func (s *segment) close() error {
	return errors.Join(s.zw.Close(), s.file.Close())
}

// SegmentWriter appends events to <dir>/<prefix>-YYYY-MM-DD-HH.jsonl.zst.
// The segment is chosen from the event's own timestamp (UTC); events without
// one use the wall clock.
type SegmentWriter struct {
	dir    string
	prefix string

	mu  sync.Mutex
	cur *segment
}

func NewSegmentWriter(dir, prefix string) *SegmentWriter {
	return &SegmentWriter{dir: dir, prefix: prefix}
}

func (w *SegmentWriter) Append(ev crafter.Event) error {
	at := ev.At
	if at.IsZero() {
		at = time.Now()
	}
	hour := at.UTC().Format(hourLayout)

	w.mu.Lock()
	defer w.mu.Unlock()
	if w.cur == nil || w.cur.hour != hour {
		if err := w.closeLocked(); err != nil {
			return err
		}
		seg, err := openSegment(w.segmentPath(hour), hour)
		if err != nil {
			return err
		}
		w.cur = seg
	}
	return w.cur.append(ev)
}

func (w *SegmentWriter) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.closeLocked()
}

func (w *SegmentWriter) closeLocked() error {
	if w.cur == nil {
		return nil
	}
	err := w.cur.close()
	w.cur = nil
	return err
}

func (w *SegmentWriter) segmentPath(hour string) string {
	return filepath.Join(w.dir, fmt.Sprintf("%s-%s.jsonl.zst", w.prefix, hour))
}
