package log

import (
	"bufio"
	"bytes"
	"encoding/json"
	"strings"
	"sync"

	"github.com/rs/zerolog"
)

// TestLogger captures JSON log lines in memory for assertions. It goes through
// the same zerolog encoding as the production logger, so error fields carry
// their stack traces and typed details exactly as they would on stdout.
type TestLogger struct {
	*ZerologLogger
	buf *lockedBuffer
}

// lockedBuffer serializes writes from concurrent search workers and reads
// from the test goroutine.
type lockedBuffer struct {
	mu sync.Mutex
	bytes.Buffer
}

func (b *lockedBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.Buffer.Write(p)
}

func (b *lockedBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.Buffer.String()
}

func (b *lockedBuffer) Reset() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.Buffer.Reset()
}

// NewTestLogger returns a logger capturing entries at level and above. The
// returned buffer holds one JSON object per line; read it only after the
// code under test has returned.
func NewTestLogger(level Level) (*TestLogger, *bytes.Buffer) {
	buf := &lockedBuffer{}
	zl := zerolog.New(buf).Level(toZerologLevel(level))
	return &TestLogger{ZerologLogger: &ZerologLogger{zl: zl}, buf: buf}, &buf.Buffer
}

// GetLogEntries decodes every captured line.
func (t *TestLogger) GetLogEntries() ([]map[string]interface{}, error) {
	var entries []map[string]interface{}
	sc := bufio.NewScanner(strings.NewReader(t.buf.String()))
	sc.Buffer(make([]byte, 0, 64*1024), 1<<20)
	for sc.Scan() {
		if len(sc.Bytes()) == 0 {
			continue
		}
		var entry map[string]interface{}
		if err := json.Unmarshal(sc.Bytes(), &entry); err != nil {
			return nil, err
		}
		entries = append(entries, entry)
	}
	return entries, sc.Err()
}

// ContainsMessage reports whether any captured line contains message.
func (t *TestLogger) ContainsMessage(message string) bool {
	return strings.Contains(t.buf.String(), message)
}

// ContainsField reports whether some entry has key == value. Numbers compare
// as float64 after JSON decoding.
func (t *TestLogger) ContainsField(key string, value interface{}) bool {
	entries, err := t.GetLogEntries()
	if err != nil {
		return false
	}
	for _, entry := range entries {
		if v, ok := entry[key]; ok && v == value {
			return true
		}
	}
	return false
}

// Clear drops everything captured so far.
func (t *TestLogger) Clear() {
	t.buf.Reset()
}
