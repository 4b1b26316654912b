package runlog

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"
	"sort"

	"github.com/klauspost/compress/zstd"

	"furnacebot.ai/internal/crafter"
)

// EventLogger journals controller events under <dataDir>/sessions/<session>/.
type EventLogger struct {
	w   *SegmentWriter
	log *log.Logger
}

func SessionDir(dataDir, sessionID string) string {
	return filepath.Join(dataDir, "sessions", sessionID)
}

func NewEventLogger(dataDir, sessionID string, logger *log.Logger) *EventLogger {
	if logger == nil {
		logger = log.Default()
	}
	return &EventLogger{
		w:   NewSegmentWriter(SessionDir(dataDir, sessionID), "events"),
		log: logger,
	}
}

// Record implements crafter.Journal. Write failures are logged.
func (l *EventLogger) Record(ev crafter.Event) {
	if err := l.w.Append(ev); err != nil {
		l.log.Printf("runlog: write %s event: %v", ev.Kind, err)
	}
}

func (l *EventLogger) Close() error { return l.w.Close() }

// ReadEvents decodes every event in a session directory, oldest file first.
func ReadEvents(dir string) ([]crafter.Event, error) {
	files, err := filepath.Glob(filepath.Join(dir, "events-*.jsonl.zst"))
	if err != nil {
		return nil, err
	}
	sort.Strings(files)
	var out []crafter.Event
	for _, p := range files {
		evs, err := readFile(p)
		if err != nil {
			return out, fmt.Errorf("%s: %w", filepath.Base(p), err)
		}
		out = append(out, evs...)
	}
	return out, nil
}

func readFile(path string) ([]crafter.Event, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	dec, err := zstd.NewReader(f)
	if err != nil {
		return nil, err
	}
	defer dec.Close()
	return decodeLines(dec)
}

func decodeLines(r io.Reader) ([]crafter.Event, error) {
	var out []crafter.Event
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 64*1024), 1024*1024)
	for sc.Scan() {
		line := sc.Bytes()
		if len(line) == 0 {
			continue
		}
		var ev crafter.Event
		if err := json.Unmarshal(line, &ev); err != nil {
			return out, err
		}
		out = append(out, ev)
	}
	return out, sc.Err()
}
