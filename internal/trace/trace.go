// Package trace writes and reads per-run step traces. A trace is a brotli
// compressed file of JSON lines, one line per run or step record.
package trace

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"

	"github.com/andybalholm/brotli"
	jsoniter "github.com/json-iterator/go"
	"go.uber.org/zap"

	"github.com/xkilldash9x/webpilot/api/schemas"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// FileExt is appended to the run id to name a trace file.
const FileExt = ".jsonl.br"

const maxLineSize = 16 << 20

// EntryType distinguishes the records in a trace.
type EntryType string

const (
	EntryRun  EntryType = "run"
	EntryStep EntryType = "step"
)

// Entry is one line of a trace file.
type Entry struct {
	Type EntryType           `json:"type"`
	Run  *schemas.RunRecord  `json:"run,omitempty"`
	Step *schemas.StepRecord `json:"step,omitempty"`
}

// ErrClosed is returned when recording to a closed writer.
var ErrClosed = errors.New("trace writer is closed")

// Writer appends records of a single run to its trace file. Every record is
// flushed through the compressor so an interrupted run leaves a readable
// prefix behind.
type Writer struct {
	path   string
	logger *zap.Logger

	mu     sync.Mutex
	file   *os.File
	br     *brotli.Writer
	closed bool
}

var _ schemas.RunRecorder = (*Writer)(nil)

// Path returns the trace file location for runID under dir.
func Path(dir, runID string) string {
	return filepath.Join(dir, runID+FileExt)
}

// NewWriter creates dir if needed and opens a fresh trace file for runID.
func NewWriter(dir, runID string, logger *zap.Logger) (*Writer, error) {
	if runID == "" {
		return nil, errors.New("trace: run id is required")
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create trace directory %s: %w", dir, err)
	}
	path := Path(dir, runID)
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		return nil, fmt.Errorf("failed to create trace file: %w", err)
	}
	return &Writer{
		path:   path,
		logger: logger.Named("trace").With(zap.String("path", path)),
		file:   f,
		br:     brotli.NewWriterLevel(f, brotli.DefaultCompression),
	}, nil
}

// Path returns the file being written.
func (w *Writer) Path() string { return w.path }

// RecordRun appends a run record.
func (w *Writer) RecordRun(_ context.Context, run schemas.RunRecord) error {
	return w.write(Entry{Type: EntryRun, Run: &run})
}

// RecordStep appends a step record.
func (w *Writer) RecordStep(_ context.Context, step schemas.StepRecord) error {
	return w.write(Entry{Type: EntryStep, Step: &step})
}

func (w *Writer) write(e Entry) error {
	line, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("failed to encode trace entry: %w", err)
	}
	line = append(line, '\n')

	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed {
		return ErrClosed
	}
	if _, err := w.br.Write(line); err != nil {
		return fmt.Errorf("failed to write trace entry: %w", err)
	}
	if err := w.br.Flush(); err != nil {
		return fmt.Errorf("failed to flush trace: %w", err)
	}
	return nil
}

// Close finishes the compressed stream and closes the file. It is safe to
// call more than once.
func (w *Writer) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed {
		return nil
	}
	w.closed = true

	err := w.br.Close()
	if cerr := w.file.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		return fmt.Errorf("failed to close trace: %w", err)
	}
	w.logger.Debug("Trace closed.")
	return nil
}

// ReadFile decodes every entry of a trace file. If the file is truncated,
// the entries decoded before the damage are returned with the error.
func ReadFile(path string) ([]Entry, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open trace: %w", err)
	}
	defer f.Close()
	return Read(f)
}

// Read decodes a trace stream.
func Read(r io.Reader) ([]Entry, error) {
	scanner := bufio.NewScanner(brotli.NewReader(r))
	scanner.Buffer(make([]byte, 0, 64*1024), maxLineSize)

	var entries []Entry
	for line := 1; scanner.Scan(); line++ {
		raw := scanner.Bytes()
		if len(raw) == 0 {
			continue
		}
		var e Entry
		if err := json.Unmarshal(raw, &e); err != nil {
			return entries, fmt.Errorf("malformed trace entry on line %d: %w", line, err)
		}
		entries = append(entries, e)
	}
	if err := scanner.Err(); err != nil {
		return entries, fmt.Errorf("failed to read trace: %w", err)
	}
	return entries, nil
}
