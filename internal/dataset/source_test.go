package dataset

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"oncostats/pkg/database"
	"oncostats/pkg/models"
	"oncostats/pkg/utils"
)

func writeFile(t *testing.T, dir, name, body string) {
	t.Helper()
	require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(body), 0o644))
}

func TestCSVDir_ReadTable(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "esophageal.csv", "\ufeffAge_Group,Gender,Survival_R\n20-30,Male,80\n\n30-40,Female,70\n")

	tb, err := NewCSVDir(dir).ReadTable(context.Background(), "esophageal.csv")
	require.NoError(t, err)

	assert.Equal(t, []string{"Age_Group", "Gender", "Survival_R"}, tb.Columns)
	assert.Equal(t, [][]string{{"20-30", "Male", "80"}, {"30-40", "Female", "70"}}, tb.Rows)
}

func TestCSVDir_RereadsOnEveryCall(t *testing.T) {
	dir := t.TempDir()
	src := NewCSVDir(dir)
	writeFile(t, dir, "a.csv", "x\n1\n")

	first, err := src.ReadTable(context.Background(), "a.csv")
	require.NoError(t, err)
	writeFile(t, dir, "a.csv", "x\n1\n2\n")
	second, err := src.ReadTable(context.Background(), "a.csv")
	require.NoError(t, err)

	assert.Len(t, first.Rows, 1)
	assert.Len(t, second.Rows, 2)
}

func TestCSVDir_Failures(t *testing.T) {
	dir := t.TempDir()
	src := NewCSVDir(dir)
	ctx := context.Background()

	_, err := src.ReadTable(ctx, "missing.csv")
	assert.True(t, errors.Is(err, ErrNotFound))

	_, err = src.ReadTable(ctx, "../escape.csv")
	assert.ErrorContains(t, err, "not a local path")

	writeFile(t, dir, "empty.csv", "")
	_, err = src.ReadTable(ctx, "empty.csv")
	assert.ErrorContains(t, err, "no header")

	writeFile(t, dir, "bad.csv", "a,b\n\xff\xfe,1\n")
	_, err = src.ReadTable(ctx, "bad.csv")
	assert.ErrorContains(t, err, "invalid utf-8")

	cancelled, cancel := context.WithCancel(ctx)
	cancel()
	_, err = src.ReadTable(cancelled, "empty.csv")
	assert.ErrorIs(t, err, context.Canceled)
}

func TestLoad_WrapsAsSourceUnavailable(t *testing.T) {
	_, err := Load(context.Background(), NewCSVDir(t.TempDir()), "nope.csv")

	var su *SourceUnavailableError
	require.ErrorAs(t, err, &su)
	assert.Equal(t, "nope.csv", su.Locator)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestWriteCSV_RoundTrip(t *testing.T) {
	in := &models.Table{Columns: []string{"a", "b"}, Rows: [][]string{{"1", "x,y"}}}
	var sb strings.Builder
	require.NoError(t, WriteCSV(&sb, in))

	out, err := ReadCSV(context.Background(), strings.NewReader(sb.String()))
	require.NoError(t, err)
	assert.Equal(t, in, out)
}

func TestTableName(t *testing.T) {
	assert.Equal(t, "ds_2esophageal_cancer", TableName("2esophageal cancer.csv"))
	assert.Equal(t, "ds_bone_cancer_data", TableName("data/bone_cancer_data.csv"))
}

func openSQLite(t *testing.T) *SQLStore {
	t.Helper()
	db, err := database.Open(database.Config{Driver: database.DriverSQLite, Path: filepath.Join(t.TempDir(), "data.db")})
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	require.NoError(t, database.Migrate(db))
	return NewSQLStore(db, database.DriverSQLite)
}

func TestSQLStore_WriteThenRead(t *testing.T) {
	store := openSQLite(t)
	ctx := context.Background()
	in := &models.Table{
		Columns: []string{"Age_Group", "Cure%"},
		Rows:    [][]string{{"20-30", "55"}, {"30-40"}, {"40-50", "41"}},
	}

	require.NoError(t, store.WriteTable(ctx, "liver.csv", in))
	out, err := store.ReadTable(ctx, "liver.csv")
	require.NoError(t, err)

	assert.Equal(t, []string{"Age_Group", "Cure%"}, out.Columns)
	assert.Equal(t, [][]string{{"20-30", "55"}, {"30-40", ""}, {"40-50", "41"}}, out.Rows)

	// a second import replaces the first
	require.NoError(t, store.WriteTable(ctx, "liver.csv", &models.Table{Columns: []string{"x"}, Rows: [][]string{{"1"}}}))
	out, err = store.ReadTable(ctx, "liver.csv")
	require.NoError(t, err)
	assert.Equal(t, []string{"x"}, out.Columns)

	imports, err := store.Imports(ctx)
	require.NoError(t, err)
	require.Len(t, imports, 1)
	assert.Equal(t, "liver.csv", imports[0].Locator)
	assert.Equal(t, "ds_liver", imports[0].Table)
	assert.Equal(t, 1, imports[0].Rows)
}

func TestSQLStore_Missing(t *testing.T) {
	store := openSQLite(t)

	_, err := store.ReadTable(context.Background(), "nope.csv")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestSQLStore_ReservedColumn(t *testing.T) {
	store := openSQLite(t)

	err := store.WriteTable(context.Background(), "a.csv", &models.Table{Columns: []string{"_row"}})
	assert.ErrorContains(t, err, "reserved")
}

func TestOpen(t *testing.T) {
	dir := t.TempDir()
	cfg := utils.DefaultConfig()
	cfg.DataDir = dir

	src, closeFn, err := Open(cfg)
	require.NoError(t, err)
	defer closeFn()
	require.IsType(t, &CSVDir{}, src)
	assert.NoError(t, src.(Pinger).Ping(context.Background()))

	cfg.Source = utils.SourceSQLite
	cfg.DBPath = filepath.Join(dir, "db", "data.db")
	src, closeSQL, err := Open(cfg)
	require.NoError(t, err)
	defer closeSQL()
	store := src.(*SQLStore)
	assert.NoError(t, store.Ping(context.Background()))
	_, err = store.Imports(context.Background())
	assert.NoError(t, err)
}

func TestCSVDir_PingMissing(t *testing.T) {
	assert.Error(t, NewCSVDir(filepath.Join(t.TempDir(), "nope")).Ping(context.Background()))
}

func TestCopy_CSVToSQLAndBack(t *testing.T) {
	ctx := context.Background()
	in := t.TempDir()
	writeFile(t, in, "liver.csv", "Age_Group,Survival_R\n20-30,80\n30-40,\n")
	writeFile(t, in, "bone.csv", "Age_Group\n10-20\n")
	store := openSQLite(t)

	tr, err := Copy(ctx, NewCSVDir(in), store, []string{"liver.csv", "lung.csv", "bone.csv"})
	require.NoError(t, err)
	assert.Equal(t, []string{"liver.csv", "bone.csv"}, tr.Copied)
	assert.Equal(t, []string{"lung.csv"}, tr.Skipped)

	out := t.TempDir()
	tr, err = Copy(ctx, store, NewCSVDir(out), []string{"liver.csv", "bone.csv"})
	require.NoError(t, err)
	assert.Len(t, tr.Copied, 2)

	b, err := os.ReadFile(filepath.Join(out, "liver.csv"))
	require.NoError(t, err)
	assert.Equal(t, "Age_Group,Survival_R\n20-30,80\n30-40,\n", string(b))
}

func TestCopy_StopsOnWriteError(t *testing.T) {
	in := t.TempDir()
	writeFile(t, in, "a.csv", "_row\n1\n")

	_, err := Copy(context.Background(), NewCSVDir(in), openSQLite(t), []string{"a.csv"})
	assert.ErrorContains(t, err, "write a.csv")
}

func TestReadCSV_HeaderOnly(t *testing.T) {
	tb, err := ReadCSV(context.Background(), strings.NewReader("Age_Group,Survival_R\n"))
	require.NoError(t, err)
	require.NotNil(t, tb.Rows)
	assert.Empty(t, tb.Rows)

	b, err := json.Marshal(tb)
	require.NoError(t, err)
	assert.JSONEq(t, `{"columns":["Age_Group","Survival_R"],"rows":[]}`, string(b))
}

func TestSQLStore_EmptyTableRows(t *testing.T) {
	store := openSQLite(t)
	ctx := context.Background()

	require.NoError(t, store.WriteTable(ctx, "bone.csv", &models.Table{Columns: []string{"x"}}))
	out, err := store.ReadTable(ctx, "bone.csv")
	require.NoError(t, err)
	assert.NotNil(t, out.Rows)
	assert.Empty(t, out.Rows)
}

func TestCheckTableNames(t *testing.T) {
	assert.NoError(t, CheckTableNames([]string{"liver.csv", "bone.csv", "liver.csv"}))

	err := CheckTableNames([]string{"a b.csv", "bone.csv", "a_b.csv"})
	var collision *TableNameCollisionError
	require.ErrorAs(t, err, &collision)
	assert.Equal(t, "ds_a_b", collision.Table)
	assert.Equal(t, [2]string{"a b.csv", "a_b.csv"}, collision.Locators)
}

func TestSQLStore_TableNameCollision(t *testing.T) {
	store := openSQLite(t)
	ctx := context.Background()
	first := &models.Table{Columns: []string{"x"}, Rows: [][]string{{"1"}}}

	require.NoError(t, store.WriteTable(ctx, "a b.csv", first))
	err := store.WriteTable(ctx, "a_b.csv", &models.Table{Columns: []string{"y"}, Rows: [][]string{{"2"}}})
	var collision *TableNameCollisionError
	require.ErrorAs(t, err, &collision)

	out, err := store.ReadTable(ctx, "a b.csv")
	require.NoError(t, err)
	assert.Equal(t, first, out)

	// rewriting the owning locator is still fine
	assert.NoError(t, store.WriteTable(ctx, "a b.csv", first))
}
