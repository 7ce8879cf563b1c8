package dataset

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"unicode/utf8"

	"oncostats/pkg/models"
)

const utf8BOM = "\ufeff"

// CSVDir serves locators as CSV files inside one directory. Files are re-read
// on every call.
type CSVDir struct {
	Dir string
}

func NewCSVDir(dir string) *CSVDir {
	return &CSVDir{Dir: dir}
}

// Path resolves a locator to a file path, refusing anything that would
// escape the directory.
func (s *CSVDir) Path(locator string) (string, error) {
	if !filepath.IsLocal(locator) {
		return "", fmt.Errorf("locator %q is not a local path", locator)
	}
	return filepath.Join(s.Dir, locator), nil
}

func (s *CSVDir) ReadTable(ctx context.Context, locator string) (*models.Table, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	path, err := s.Path(locator)
	if err != nil {
		return nil, err
	}
	f, err := os.Open(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("%s: %w", path, ErrNotFound)
		}
		return nil, err
	}
	defer f.Close()

	return ReadCSV(ctx, f)
}

// ReadCSV parses a header row followed by data rows. Blank lines are skipped,
// ragged rows are kept as they are, and any invalid UTF-8 fails the read.
func ReadCSV(ctx context.Context, r io.Reader) (*models.Table, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1

	header, err := cr.Read()
	if err != nil {
		if err == io.EOF {
			return nil, errors.New("empty csv: no header row")
		}
		return nil, fmt.Errorf("read header: %w", err)
	}
	if len(header) > 0 {
		header[0] = strings.TrimPrefix(header[0], utf8BOM)
	}
	if err := checkUTF8(header); err != nil {
		return nil, fmt.Errorf("header: %w", err)
	}

	t := &models.Table{Columns: header, Rows: [][]string{}}
	for line := 2; ; line++ {
		row, err := cr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("read row: %w", err)
		}
		if err := checkUTF8(row); err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}
		t.Rows = append(t.Rows, row)

		if line%256 == 0 {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
		}
	}
	return t, nil
}

// WriteCSV writes t with its header row.
func WriteCSV(w io.Writer, t *models.Table) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(t.Columns); err != nil {
		return err
	}
	if err := cw.WriteAll(t.Rows); err != nil {
		return err
	}
	return cw.Error()
}

func checkUTF8(fields []string) error {
	for _, f := range fields {
		if !utf8.ValidString(f) {
			return fmt.Errorf("invalid utf-8 in %q", f)
		}
	}
	return nil
}

// Ping reports whether the directory is readable.
func (s *CSVDir) Ping(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	info, err := os.Stat(s.Dir)
	if err != nil {
		return err
	}
	if !info.IsDir() {
		return fmt.Errorf("%s is not a directory", s.Dir)
	}
	return nil
}
