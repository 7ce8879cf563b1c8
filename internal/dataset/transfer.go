package dataset

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"oncostats/pkg/models"
)

// TableWriter stores a table under a locator.
type TableWriter interface {
	WriteTable(ctx context.Context, locator string, t *models.Table) error
}

// Transfer reports which locators were copied and which the source did not
// have.
type Transfer struct {
	Copied  []string `json:"copied"`
	Skipped []string `json:"skipped,omitempty"`
}

// Copy reads every locator from src and writes it, unchanged, to dst.
// Locators the source does not have are skipped; any other failure stops
// the copy.
func Copy(ctx context.Context, src TableSource, dst TableWriter, locators []string) (Transfer, error) {
	var tr Transfer
	for _, loc := range locators {
		t, err := src.ReadTable(ctx, loc)
		if errors.Is(err, ErrNotFound) {
			tr.Skipped = append(tr.Skipped, loc)
			continue
		}
		if err != nil {
			return tr, fmt.Errorf("read %s: %w", loc, err)
		}
		if err := dst.WriteTable(ctx, loc, t); err != nil {
			return tr, fmt.Errorf("write %s: %w", loc, err)
		}
		tr.Copied = append(tr.Copied, loc)
	}
	return tr, nil
}

// WriteTable writes t as <Dir>/<locator>, creating the directory.
func (s *CSVDir) WriteTable(ctx context.Context, locator string, t *models.Table) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	path, err := s.Path(locator)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}

	tmp, err := os.CreateTemp(filepath.Dir(path), ".export-*.csv")
	if err != nil {
		return err
	}
	defer os.Remove(tmp.Name())

	if err := WriteCSV(tmp, t); err != nil {
		_ = tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), path)
}
