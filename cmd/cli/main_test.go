package main

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"burstscan/adapters/table"
	"burstscan/internal/errors"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeEvents(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "events.tsv")
	content := "experiment\ttotal_time\tsite\ttime\n" +
		"E1\t100\tS1\t10\n" +
		"E1\t100\tS1\t12\n" +
		"E1\t100\tS1\t13\n" +
		"E1\t100\tS1\t90\n"
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	cmd := newRootCmd()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

func TestClustersCommand(t *testing.T) {
	outDir := filepath.Join(t.TempDir(), "results")
	out, err := execute(t, "clusters", "--input", writeEvents(t), "--out", outDir, "--max-gap", "5")
	require.NoError(t, err)
	assert.Contains(t, out, "1 clusters")

	data, err := os.ReadFile(filepath.Join(outDir, table.ClustersTable+".tsv"))
	require.NoError(t, err)
	assert.Contains(t, string(data), "10,12,13")
}

func TestAnalyzeCommandWritesWorkbook(t *testing.T) {
	dir := t.TempDir()
	workbook := filepath.Join(dir, "report.xlsx")
	out, err := execute(t, "analyze",
		"--input", writeEvents(t),
		"--out", filepath.Join(dir, "results"),
		"--xlsx", workbook,
		"--max-gap", "5",
		"--permutations", "200",
		"--workers", "2")
	require.NoError(t, err)
	assert.Contains(t, out, "site-significant")
	assert.Contains(t, out, "experiment-significant")

	_, err = os.Stat(workbook)
	assert.NoError(t, err)

	scores, err := os.ReadFile(filepath.Join(dir, "results", table.SiteScoresTable+".tsv"))
	require.NoError(t, err)
	assert.Equal(t, 2, len(strings.Split(strings.TrimSpace(string(scores)), "\n")))
}

func TestScoreCommandWithoutGap(t *testing.T) {
	_, err := execute(t, "score", "--input", writeEvents(t), "--out", t.TempDir())
	assert.NoError(t, err)
}

func TestCommandRejectsInvalidConfiguration(t *testing.T) {
	_, err := execute(t, "analyze", "--input", writeEvents(t), "--out", t.TempDir(), "--max-gap", "5", "--alpha", "1.5")
	require.Error(t, err)
	assert.Equal(t, errors.CodeConfigInvalid, errors.GetCode(err))

	_, err = execute(t, "clusters", "--out", t.TempDir(), "--max-gap", "5")
	require.Error(t, err)
	assert.Equal(t, errors.CodeInvalidInput, errors.GetCode(err))
}
