// Package tradelog records executed orders as JSON lines in per-day files
// under a strategy's working directory.
package tradelog

import (
	"bufio"
	"encoding/json"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// Entry is one executed order.
type Entry struct {
	Time     string `json:"time"`
	Symbol   string `json:"symbol"`
	Side     string `json:"side"`
	Notional string `json:"notional"`
	OrderID  string `json:"order_id"`
	Reason   string `json:"reason,omitempty"`
}

// Log writes order entries under one directory, one file per UTC day.
// Appends on one Log are safe for concurrent use.
type Log struct {
	mu  sync.Mutex
	dir string
	now func() time.Time
}

// New creates a trade log rooted at dir.
func New(dir string) *Log {
	return &Log{dir: dir, now: time.Now}
}

func (l *Log) dailyPath(t time.Time) string {
	return filepath.Join(l.dir, "orders-"+t.UTC().Format("2006-01-02")+".jsonl")
}

// Append records an entry in today's file, creating it as needed.
func (l *Log) Append(e Entry) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now().UTC()
	e.Time = now.Format("2006-01-02 15:04:05")

	if err := os.MkdirAll(l.dir, 0o755); err != nil {
		return err
	}
	f, err := os.OpenFile(l.dailyPath(now), os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return err
	}
	defer f.Close()

	b, err := json.Marshal(e)
	if err != nil {
		return err
	}
	_, err = f.Write(append(b, '\n'))
	return err
}

// ReadDay returns all entries recorded on the given UTC day. A missing file
// is an empty day, not an error.
func (l *Log) ReadDay(t time.Time) ([]Entry, error) {
	f, err := os.Open(l.dailyPath(t))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	defer f.Close()

	var entries []Entry
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		var e Entry
		if err := json.Unmarshal(sc.Bytes(), &e); err != nil {
			continue // skip torn lines
		}
		entries = append(entries, e)
	}
	return entries, sc.Err()
}
