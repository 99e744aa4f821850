package dataset_test

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"

	"github.com/Sumatoshi-tech/bugfeat/internal/ndjson"
	"github.com/Sumatoshi-tech/bugfeat/pkg/bugzilla"
	"github.com/Sumatoshi-tech/bugfeat/pkg/dataset"
	"github.com/Sumatoshi-tech/bugfeat/pkg/extraction"
	"github.com/Sumatoshi-tech/bugfeat/pkg/features"
)

func sampleFrame(t *testing.T) *extraction.Frame {
	t.Helper()

	first := bugzilla.NewTestBug(1, "ann@example.com")
	first.Keywords = []string{"crash"}
	first.Priority = "P1"

	second := bugzilla.NewTestBug(2, "bob@example.com")
	second.Keywords = []string{"crash", "regression"}

	extractor, err := extraction.New([]features.Extractor{features.Keywords(), features.Priority(), features.Product()}, nil)
	require.NoError(t, err)

	frame, err := extractor.Transform(context.Background(), extraction.Bugs(bugzilla.NewSliceSource(first, second)))
	require.NoError(t, err)

	return frame
}

func readLines(t *testing.T, path string) []map[string]any {
	t.Helper()

	reader, closer, err := ndjson.Open(path)
	require.NoError(t, err)

	defer closer.Close()

	var rows []map[string]any

	scanner := bufio.NewScanner(reader)
	for scanner.Scan() {
		var row map[string]any
		require.NoError(t, json.Unmarshal(scanner.Bytes(), &row))

		rows = append(rows, row)
	}

	require.NoError(t, scanner.Err())

	return rows
}

func TestParseFormat(t *testing.T) {
	t.Parallel()

	format, err := dataset.ParseFormat("JSONL")
	require.NoError(t, err)
	assert.Equal(t, dataset.FormatJSONL, format)

	_, err = dataset.ParseFormat("parquet")
	require.ErrorIs(t, err, dataset.ErrUnknownFormat)
}

func TestSaveJSONL(t *testing.T) {
	t.Parallel()

	frame := sampleFrame(t)
	dir := t.TempDir()

	for _, compress := range []bool{false, true} {
		path, err := dataset.Save(context.Background(), frame, dataset.Options{
			Format:   dataset.FormatJSONL,
			Path:     filepath.Join(dir, "rows.jsonl"),
			Compress: compress,
		})
		require.NoError(t, err)
		assert.Equal(t, compress, ndjson.Compressed(path))

		rows := readLines(t, path)
		require.Len(t, rows, 2)

		data, ok := rows[1][extraction.ColData].(map[string]any)
		require.True(t, ok)
		assert.Equal(t, true, data["regression in Keywords"])
		assert.Equal(t, "Firefox", data["Product"])
		assert.Equal(t, "Crash when opening the preferences", rows[0][extraction.ColTitle])
	}
}

func TestSaveToStdout(t *testing.T) {
	t.Parallel()

	var out bytes.Buffer

	path, err := dataset.Save(context.Background(), sampleFrame(t), dataset.Options{
		Format: dataset.FormatYAML,
		Stdout: &out,
	})
	require.NoError(t, err)
	assert.Empty(t, path)

	var rows []map[string]any
	require.NoError(t, yaml.Unmarshal(out.Bytes(), &rows))
	require.Len(t, rows, 2)
	assert.Equal(t, "Steps to reproduce: open the preferences.", rows[0][extraction.ColFirstComment])

	_, err = dataset.Save(context.Background(), sampleFrame(t), dataset.Options{
		Format: dataset.FormatSQLite,
	})
	require.ErrorIs(t, err, dataset.ErrPathRequired)
}

func TestWriteTable(t *testing.T) {
	t.Parallel()

	var out bytes.Buffer

	require.NoError(t, dataset.WriteTable(&out, sampleFrame(t), 1))

	rendered := out.String()
	assert.Contains(t, rendered, extraction.ColFirstComment)
	assert.Contains(t, rendered, "Priority=P1")
	assert.Contains(t, rendered, "1 of 2 rows")
	assert.NotContains(t, rendered, "regression in Keywords")
}

func TestTopFeaturesAndPlot(t *testing.T) {
	t.Parallel()

	frame := sampleFrame(t)

	assert.Equal(t, []dataset.FeatureCount{
		{Name: "Product", Rows: 2},
		{Name: "crash in Keywords", Rows: 2},
		{Name: "Priority", Rows: 1},
	}, dataset.TopFeatures(frame, 3))

	var out bytes.Buffer

	require.NoError(t, dataset.WritePlot(&out, frame))
	assert.Contains(t, out.String(), "Feature coverage")
	assert.Contains(t, out.String(), "regression in Keywords")
}

func TestStore(t *testing.T) {
	t.Parallel()

	frame := sampleFrame(t)
	path := filepath.Join(t.TempDir(), "runs.db")

	saved, err := dataset.Save(context.Background(), frame, dataset.Options{
		Format: dataset.FormatSQLite,
		Path:   path,
		Run:    dataset.RunInfo{Model: "accessibility", Rollback: "creation"},
	})
	require.NoError(t, err)
	assert.Equal(t, path, saved)

	_, err = os.Stat(path)
	require.NoError(t, err)

	store, err := dataset.OpenStore(path)
	require.NoError(t, err)

	defer store.Close()

	second, err := store.Save(context.Background(), frame, dataset.RunInfo{})
	require.NoError(t, err)

	runs, err := store.Runs(context.Background())
	require.NoError(t, err)
	require.Len(t, runs, 2)

	assert.Equal(t, second, runs[0].ID)
	assert.Equal(t, "accessibility", runs[1].Model)
	assert.Equal(t, "creation", runs[1].Rollback)
	assert.Equal(t, string(features.KindSingle), runs[1].Mode)
	assert.Equal(t, frame.Columns, runs[1].Columns)
	assert.Equal(t, 2, runs[1].Rows)

	rows, err := store.Rows(context.Background(), runs[1].ID)
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, "Crash when opening the preferences", rows[1][extraction.ColTitle])

	_, err = store.Rows(context.Background(), "missing")
	require.ErrorIs(t, err, dataset.ErrUnknownRun)
}
