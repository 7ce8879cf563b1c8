package dispatch

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"oncostats/internal/dataset"
	"oncostats/internal/registry"
	"oncostats/pkg/models"
)

// memSource serves fixed tables by locator and counts reads.
type memSource struct {
	tables map[string]*models.Table
	reads  atomic.Int32
}

func (m *memSource) ReadTable(ctx context.Context, locator string) (*models.Table, error) {
	m.reads.Add(1)
	t, ok := m.tables[locator]
	if !ok {
		return nil, dataset.ErrNotFound
	}
	return t.Clone(), nil
}

// blockingSource waits for the context to end.
type blockingSource struct{}

func (blockingSource) ReadTable(ctx context.Context, _ string) (*models.Table, error) {
	<-ctx.Done()
	return nil, ctx.Err()
}

func newDispatcher(tables map[string]*models.Table) (*Dispatcher, *memSource) {
	src := &memSource{tables: tables}
	return New(registry.MustDefault(), src, nil), src
}

func esophagealRaw() *models.Table {
	return &models.Table{
		Columns: []string{"Age_Group", "Gender", "Survival_R", "Death_Rat", "Stage_of_Cancer"},
		Rows: [][]string{
			{"20-30", "Male", "82", "18", "I"},
			{"20-30", "Female", "85", "15", "I"},
			{"60-70", "Male", "40", "60", "IV"},
		},
	}
}

func TestDispatch_Esophageal(t *testing.T) {
	d, _ := newDispatcher(map[string]*models.Table{"esophageal.csv": esophagealRaw()})

	res, err := d.Dispatch(context.Background(), "Esophageal Cancer")
	require.NoError(t, err)

	assert.Equal(t, "Esophageal Cancer", res.Category)
	assert.NotEmpty(t, res.RequestID)
	assert.Equal(t, []string{"Age_Group", "Gender", "Survival_Rate", "Death_Rate", "Stage_of_Cancer"}, res.Table.Columns)
	assert.Equal(t, esophagealRaw().Rows, res.Table.Rows)

	require.Len(t, res.Charts, 2)
	bar, line := res.Charts[0], res.Charts[1]
	assert.Equal(t, models.KindBar, bar.Kind)
	assert.Equal(t, "group", bar.Options.BarMode)
	assert.Equal(t, "Age_Group", bar.Field(models.RoleX))
	assert.Equal(t, "Survival_Rate", bar.Field(models.RoleY))
	assert.Equal(t, "Gender", bar.Field(models.RoleColor))
	assert.Equal(t, models.KindLine, line.Kind)
	assert.Equal(t, "Death_Rate", line.Field(models.RoleY))
	assert.True(t, line.Options.Markers)

	for _, s := range models.Sections {
		assert.NotEmpty(t, res.Text[s])
	}
	assert.NotEmpty(t, res.Description)
}

func TestDispatch_UnknownTouchesNoSource(t *testing.T) {
	d, src := newDispatcher(nil)

	_, err := d.Dispatch(context.Background(), "Unicorn Cancer")

	var unknown *registry.UnknownCategoryError
	require.ErrorAs(t, err, &unknown)
	assert.Equal(t, "Unicorn Cancer", unknown.ID)
	assert.Zero(t, src.reads.Load())
}

func TestDispatch_SourceUnavailable(t *testing.T) {
	d, _ := newDispatcher(nil)

	_, err := d.Dispatch(context.Background(), "Liver Cancer")

	var su *dataset.SourceUnavailableError
	require.ErrorAs(t, err, &su)
	assert.Equal(t, "liver.csv", su.Locator)
	assert.True(t, errors.Is(err, dataset.ErrNotFound))
}

func TestDispatch_LoadTimeout(t *testing.T) {
	d := New(registry.MustDefault(), blockingSource{}, nil)
	d.LoadTimeout = 20 * time.Millisecond

	_, err := d.Dispatch(context.Background(), "Liver Cancer")

	var su *dataset.SourceUnavailableError
	require.ErrorAs(t, err, &su)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestDispatch_AmbiguousAlias(t *testing.T) {
	d, _ := newDispatcher(map[string]*models.Table{
		"pancreatic.csv": {
			Columns: []string{"Age_Group", "Gender", "Cure%", "Cure_Rate", "Survival_Rate", "Stage_of_Cancer"},
		},
	})

	_, err := d.Dispatch(context.Background(), "Pancreatic Cancer")

	var amb *dataset.AmbiguousColumnAliasError
	require.ErrorAs(t, err, &amb)
	assert.Equal(t, "%Cure", amb.Target)
	assert.Equal(t, []string{"Cure%", "Cure_Rate"}, amb.Aliases)
}

func TestDispatch_MissingCure(t *testing.T) {
	d, _ := newDispatcher(map[string]*models.Table{
		"pancreatic.csv": {
			Columns: []string{"Age_Group", "Gender", "Survival_Rate", "Stage_of_Cancer"},
		},
	})

	_, err := d.Dispatch(context.Background(), "Pancreatic Cancer")

	var missing *MissingColumnError
	require.ErrorAs(t, err, &missing)
	assert.Equal(t, "%Cure", missing.Column)
	assert.Equal(t, "📈 Pancreatic Cancer - Cure % Trend by Age Group", missing.ChartTitle)
}

func TestDispatch_MissingColumnReportsFirstChart(t *testing.T) {
	// Both Liver charts need something absent; the pie comes first.
	d, _ := newDispatcher(map[string]*models.Table{
		"liver.csv": {Columns: []string{"Age_Group", "Gender"}},
	})

	_, err := d.Dispatch(context.Background(), "Liver Cancer")

	var missing *MissingColumnError
	require.ErrorAs(t, err, &missing)
	assert.Equal(t, "Stage_of_Cancer", missing.Column)
	assert.Equal(t, "Liver Cancer - Death Rate Distribution by Stage", missing.ChartTitle)
}

func TestDispatch_MeltChart(t *testing.T) {
	d, _ := newDispatcher(map[string]*models.Table{
		"breast.csv": {
			Columns: []string{"Age_Group", "Gender", "Survival_R", "Death_Rat", "Cure_Rate", "Stage_of_Cancer"},
			Rows:    [][]string{{"30-40", "Female", "90", "10", "85", "I"}},
		},
	})

	res, err := d.Dispatch(context.Background(), "Breast Cancer")
	require.NoError(t, err)

	radar := res.Charts[1]
	require.NotNil(t, radar.Melt)
	long, err := res.Table.Melt(*radar.Melt)
	require.NoError(t, err)
	assert.Equal(t, []string{"Gender", "Metric", "Value"}, long.Columns)
	assert.Equal(t, [][]string{{"Female", "Survival_Rate", "90"}, {"Female", "Death_Rate", "10"}}, long.Rows)
}

func TestDispatch_ReloadsEveryCall(t *testing.T) {
	d, src := newDispatcher(map[string]*models.Table{"esophageal.csv": esophagealRaw()})
	ctx := context.Background()

	first, err := d.Dispatch(ctx, "Esophageal Cancer")
	require.NoError(t, err)
	src.tables["esophageal.csv"] = &models.Table{
		Columns: []string{"Age_Group", "Gender", "Survival_Rate", "Death_Rate"},
		Rows:    [][]string{{"70-80", "Male", "30", "70"}},
	}
	second, err := d.Dispatch(ctx, "Esophageal Cancer")
	require.NoError(t, err)

	assert.EqualValues(t, 2, src.reads.Load())
	assert.Len(t, first.Table.Rows, 3)
	assert.Len(t, second.Table.Rows, 1)
	assert.NotEqual(t, first.RequestID, second.RequestID)
}

func TestDispatch_ResultIsolatedFromRegistry(t *testing.T) {
	d, _ := newDispatcher(map[string]*models.Table{"esophageal.csv": esophagealRaw()})
	ctx := context.Background()

	res, err := d.Dispatch(ctx, "Esophageal Cancer")
	require.NoError(t, err)
	res.Charts[0].Title = "mutated"

	again, err := d.Dispatch(ctx, "Esophageal Cancer")
	require.NoError(t, err)
	assert.NotEqual(t, "mutated", again.Charts[0].Title)
}

func TestCheckColumns_MeltInputs(t *testing.T) {
	charts := []models.ChartSpec{{
		Kind:   models.KindLinePolar,
		Title:  "radar",
		Fields: map[models.Role][]string{models.RoleR: {"Value"}, models.RoleTheta: {"Metric"}},
		Melt:   &models.MeltSpec{IDVars: []string{"Gender"}, ValueVars: []string{"Survival_Rate"}, VarName: "Metric", ValueName: "Value"},
	}}

	err := CheckColumns([]string{"Gender"}, charts)
	var missing *MissingColumnError
	require.ErrorAs(t, err, &missing)
	assert.Equal(t, "Survival_Rate", missing.Column)

	assert.NoError(t, CheckColumns([]string{"Gender", "Survival_Rate"}, charts))
}

func TestCategories(t *testing.T) {
	d, _ := newDispatcher(nil)
	assert.Equal(t, registry.MustDefault().List(), d.Categories())
}

func TestErrorCode(t *testing.T) {
	assert.Equal(t, CodeUnknownCategory, ErrorCode(&registry.UnknownCategoryError{ID: "x"}))
	assert.Equal(t, CodeSourceUnavailable, ErrorCode(&dataset.SourceUnavailableError{Locator: "a.csv", Cause: dataset.ErrNotFound}))
	assert.Equal(t, CodeAmbiguousColumnAlias, ErrorCode(&dataset.AmbiguousColumnAliasError{Target: "%Cure"}))
	assert.Equal(t, CodeMissingColumn, ErrorCode(fmt.Errorf("wrapped: %w", &MissingColumnError{Column: "x"})))
	assert.Equal(t, CodeInternal, ErrorCode(errors.New("boom")))
}

func TestDispatch_SampleData(t *testing.T) {
	reg := registry.MustDefault()
	d := New(reg, dataset.NewCSVDir("../../data"), nil)

	for _, id := range reg.List() {
		res, err := d.Dispatch(context.Background(), id)
		require.NoError(t, err, id)
		assert.NotEmpty(t, res.Table.Rows, id)
		assert.Equal(t, -1, res.Table.Index("Survival_R"), id)
	}
}

func TestDispatch_SampleEsophagealLegacyHeaders(t *testing.T) {
	src := dataset.NewCSVDir("../../data")
	raw, err := src.ReadTable(context.Background(), "esophageal.csv")
	require.NoError(t, err)
	assert.True(t, raw.Has("Survival_R"))
	assert.True(t, raw.Has("Death_Rat"))

	res, err := New(registry.MustDefault(), src, nil).Dispatch(context.Background(), "Esophageal Cancer")
	require.NoError(t, err)
	assert.Equal(t, []string{"Gender", "Age_Group", "Stage_of_Cancer", "Survival_Rate", "Death_Rate", "%Cure"}, res.Table.Columns)
}
