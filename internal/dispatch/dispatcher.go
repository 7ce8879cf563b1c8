// Package dispatch resolves a category selection into a ready-to-render
// result: the normalized table, the category's charts and its text panels.
package dispatch

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"oncostats/internal/dataset"
	"oncostats/pkg/models"
)

// Catalog is the read-only view of the category registry the dispatcher needs.
type Catalog interface {
	Lookup(id string) (models.CategoryEntry, error)
	List() []string
}

// MissingColumnError names the first chart that references a column the
// normalized table lacks.
type MissingColumnError struct {
	Column     string
	ChartTitle string
}

func (e *MissingColumnError) Error() string {
	return fmt.Sprintf("chart %q: missing column %q", e.ChartTitle, e.Column)
}

// Result is everything a renderer needs for one category. The table belongs
// to the caller; nothing here is shared with other dispatches.
type Result struct {
	RequestID   string             `json:"request_id"`
	Category    string             `json:"category"`
	Description string             `json:"description,omitempty"`
	Source      string             `json:"source"`
	Table       *models.Table      `json:"table"`
	Charts      []models.ChartSpec `json:"charts"`
	Text        models.TextPayload `json:"text"`
}

type Dispatcher struct {
	Catalog     Catalog
	Source      dataset.TableSource
	LoadTimeout time.Duration // zero means no timeout
	Logger      *zap.Logger
}

func New(catalog Catalog, source dataset.TableSource, logger *zap.Logger) *Dispatcher {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Dispatcher{Catalog: catalog, Source: source, Logger: logger.Named("dispatch")}
}

// Categories lists the selectable ids in display order.
func (d *Dispatcher) Categories() []string {
	return d.Catalog.List()
}

// Dispatch loads and normalizes the dataset for id and checks it against the
// category's charts. Errors are returned unmodified to the caller:
// *registry.UnknownCategoryError, *dataset.SourceUnavailableError,
// *dataset.AmbiguousColumnAliasError or *MissingColumnError.
func (d *Dispatcher) Dispatch(ctx context.Context, id string) (*Result, error) {
	reqID := uuid.NewString()
	log := d.logger().With(zap.String("request_id", reqID), zap.String("category", id))
	start := time.Now()

	entry, err := d.Catalog.Lookup(id)
	if err != nil {
		log.Info("dispatch rejected", zap.Error(err))
		return nil, err
	}

	table, err := d.load(ctx, entry.Source)
	if err != nil {
		log.Warn("dataset load failed", zap.String("source", entry.Source), zap.Error(err))
		return nil, err
	}

	if err := dataset.Normalize(table); err != nil {
		log.Warn("dataset normalization failed", zap.String("source", entry.Source), zap.Error(err))
		return nil, err
	}

	if err := CheckColumns(table.Columns, entry.Charts); err != nil {
		log.Warn("chart validation failed", zap.Error(err))
		return nil, err
	}

	log.Debug("dispatched",
		zap.Int("rows", len(table.Rows)),
		zap.Int("charts", len(entry.Charts)),
		zap.Duration("took", time.Since(start)),
	)

	return &Result{
		RequestID:   reqID,
		Category:    entry.ID,
		Description: entry.Description,
		Source:      entry.Source,
		Table:       table,
		Charts:      entry.Charts,
		Text:        entry.Text,
	}, nil
}

func (d *Dispatcher) load(ctx context.Context, locator string) (*models.Table, error) {
	if d.LoadTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, d.LoadTimeout)
		defer cancel()
	}
	return dataset.Load(ctx, d.Source, locator)
}

func (d *Dispatcher) logger() *zap.Logger {
	if d.Logger == nil {
		return zap.NewNop()
	}
	return d.Logger
}

// CheckColumns fails on the first chart, in order, that reads a column not in
// columns. Charts with a melt step are checked in two stages: the melt inputs
// against columns, then the chart fields against the melted column set.
func CheckColumns(columns []string, charts []models.ChartSpec) error {
	have := make(map[string]struct{}, len(columns))
	for _, c := range columns {
		have[c] = struct{}{}
	}

	for _, chart := range charts {
		available := have
		if chart.Melt != nil {
			for _, c := range append(append([]string(nil), chart.Melt.IDVars...), chart.Melt.ValueVars...) {
				if _, ok := have[c]; !ok {
					return &MissingColumnError{Column: c, ChartTitle: chart.Title}
				}
			}
			available = make(map[string]struct{})
			for _, c := range models.MeltColumns(*chart.Melt, columns) {
				available[c] = struct{}{}
			}
		}
		for _, c := range chart.Columns() {
			if _, ok := available[c]; !ok {
				return &MissingColumnError{Column: c, ChartTitle: chart.Title}
			}
		}
	}
	return nil
}
