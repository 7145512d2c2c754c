// Package collector accumulates plain-text drops into one CSV file, one value
// per row.
package collector

import (
	"bytes"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"

	"github.com/spf13/afero"

	"github.com/mijorus/collector/engine/scratch"
)

const (
	filePrefix = "collected_strings_"
	fileExt    = "csv"
	filePerm   = 0o644
	emptyRow   = "\"\"\n"
)

// Collector is an append-only text sink backed by a CSV file.
type Collector struct {
	fs    afero.Fs
	path  string
	count int
	mu    sync.Mutex
}

// New allocates collected_strings_N.csv in dir and creates it empty.
func New(dir *scratch.Dir) (*Collector, error) {
	if dir == nil {
		return nil, fmt.Errorf("collector: scratch dir is required")
	}
	path, err := dir.Allocate(filePrefix, fileExt)
	if err != nil {
		return nil, fmt.Errorf("collector: %w", err)
	}
	fs := dir.Fs()
	f, err := fs.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, filePerm)
	if err != nil {
		return nil, fmt.Errorf("collector: create %s: %w", path, err)
	}
	if err := f.Close(); err != nil {
		return nil, fmt.Errorf("collector: create %s: %w", path, err)
	}
	return &Collector{fs: fs, path: path}, nil
}

// Path returns the backing CSV file.
func (c *Collector) Path() string {
	return c.path
}

// Count returns the number of rows appended since creation or the last Clear.
func (c *Collector) Count() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.count
}

// Append writes s as one row. Delimiters, quotes and newlines inside s are
// quoted by the CSV encoder.
func (c *Collector) Append(s string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	f, err := c.fs.OpenFile(c.path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, filePerm)
	if err != nil {
		return fmt.Errorf("collector: open %s: %w", c.path, err)
	}
	if err := writeRow(f, s); err != nil {
		f.Close()
		return fmt.Errorf("collector: append: %w", err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("collector: append: %w", err)
	}
	c.count++
	return nil
}

// writeRow encodes one single-field record. A lone empty field is written as
// "" because the reader skips blank lines.
func writeRow(w io.Writer, s string) error {
	if s == "" {
		_, err := io.WriteString(w, emptyRow)
		return err
	}
	cw := csv.NewWriter(w)
	if err := cw.Write([]string{s}); err != nil {
		return err
	}
	cw.Flush()
	return cw.Error()
}

// Rows reads every row back in insertion order, byte for byte as appended.
func (c *Collector) Rows() ([]string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	data, err := afero.ReadFile(c.fs, c.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return []string{}, nil
		}
		return nil, fmt.Errorf("collector: read %s: %w", c.path, err)
	}
	r := csv.NewReader(bytes.NewReader(data))
	r.FieldsPerRecord = -1
	rows := make([]string, 0, c.count)
	var offset int64
	for {
		record, err := r.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("collector: read %s: %w", c.path, err)
		}
		end := r.InputOffset()
		rows = append(rows, restoreCR(data[offset:end], record[0]))
		offset = end
	}
	return rows, nil
}

// restoreCR undoes the \r\n to \n folding csv.Reader applies inside quoted
// fields. Fields holding a carriage return are always quoted by the writer, so
// raw is re-decoded from its quoted form.
func restoreCR(raw []byte, field string) string {
	if bytes.IndexByte(raw, '\r') < 0 {
		return field
	}
	raw = bytes.TrimSuffix(raw, []byte("\n"))
	raw = bytes.TrimSuffix(raw, []byte("\r"))
	if len(raw) < 2 || raw[0] != '"' || raw[len(raw)-1] != '"' {
		return field
	}
	return strings.ReplaceAll(string(raw[1:len(raw)-1]), `""`, `"`)
}

// Clear deletes the backing file and resets the row count.
func (c *Collector) Clear() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.fs.Remove(c.path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("collector: clear %s: %w", c.path, err)
	}
	c.count = 0
	return nil
}
