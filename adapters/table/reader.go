package table

import (
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"burstscan/domain/events"
	"burstscan/internal/errors"

	"github.com/xuri/excelize/v2"
	"go.uber.org/zap"
)

// Canonical column names of an event table.
const (
	ColumnExperiment = "experiment"
	ColumnTotalTime  = "total_time"
	ColumnSite       = "site"
	ColumnTime       = "time"
	ColumnX          = "x"
	ColumnY          = "y"
)

// columnAliases maps accepted header spellings to canonical column names.
var columnAliases = map[string]string{
	"experiment":      ColumnExperiment,
	"experiment_name": ColumnExperiment,
	"exp":             ColumnExperiment,
	"total_time":      ColumnTotalTime,
	"totaltime":       ColumnTotalTime,
	"duration":        ColumnTotalTime,
	"site":            ColumnSite,
	"site_id":         ColumnSite,
	"siteid":          ColumnSite,
	"time":            ColumnTime,
	"event_time":      ColumnTime,
	"timestamp":       ColumnTime,
	"t":               ColumnTime,
	"x":               ColumnX,
	"centroid_x":      ColumnX,
	"y":               ColumnY,
	"centroid_y":      ColumnY,
}

var requiredColumns = []string{ColumnExperiment, ColumnTotalTime, ColumnSite, ColumnTime}

// Reader reads event records from TSV, CSV or XLSX files
type Reader struct {
	filePath string
	fileType string // "tsv", "csv" or "xlsx"
	logger   *zap.Logger
}

// NewReader creates a reader whose format follows the file extension.
// .tsv and .txt are tab separated, .csv is comma separated, .xlsx is a workbook.
func NewReader(filePath string, logger *zap.Logger) *Reader {
	if logger == nil {
		logger = zap.NewNop()
	}
	fileType := "tsv"
	switch strings.ToLower(filepath.Ext(filePath)) {
	case ".csv":
		fileType = "csv"
	case ".xlsx":
		fileType = "xlsx"
	}
	return &Reader{filePath: filePath, fileType: fileType, logger: logger.Named("table_reader")}
}

// ReadRecords reads every data row of the file
func (r *Reader) ReadRecords(ctx context.Context) ([]events.Record, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	r.logger.Debug("reading event table", zap.String("path", r.filePath), zap.String("type", r.fileType))

	if _, err := os.Stat(r.filePath); err != nil {
		return nil, errors.IOError(fmt.Sprintf("open %s file %s", strings.ToUpper(r.fileType), r.filePath), err)
	}

	start := time.Now()
	var rows [][]string
	var err error
	switch r.fileType {
	case "xlsx":
		rows, err = r.readWorkbookRows()
	case "csv":
		rows, err = r.readDelimitedRows(',')
	default:
		rows, err = r.readDelimitedRows('\t')
	}
	if err != nil {
		return nil, err
	}

	records, err := parseRows(rows)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to parse %s", r.filePath)
	}

	r.logger.Info("event table read",
		zap.String("path", r.filePath),
		zap.Int("records", len(records)),
		zap.Duration("elapsed", time.Since(start)))
	return records, nil
}

// readWorkbookRows reads the first sheet of a workbook
func (r *Reader) readWorkbookRows() ([][]string, error) {
	f, err := excelize.OpenFile(r.filePath)
	if err != nil {
		return nil, errors.IOError("open workbook", err)
	}
	defer f.Close()

	sheets := f.GetSheetList()
	if len(sheets) == 0 {
		return nil, errors.InvalidInputf("workbook %s has no sheets", r.filePath)
	}
	rows, err := f.GetRows(sheets[0])
	if err != nil {
		return nil, errors.IOError(fmt.Sprintf("read sheet %s", sheets[0]), err)
	}
	return rows, nil
}

func (r *Reader) readDelimitedRows(comma rune) ([][]string, error) {
	file, err := os.Open(r.filePath)
	if err != nil {
		return nil, errors.IOError("open table", err)
	}
	defer file.Close()
	return readDelimited(file, comma)
}

func readDelimited(src io.Reader, comma rune) ([][]string, error) {
	reader := csv.NewReader(src)
	reader.Comma = comma
	reader.Comment = '#'
	reader.FieldsPerRecord = -1
	reader.LazyQuotes = true
	rows, err := reader.ReadAll()
	if err != nil {
		return nil, errors.Wrap(errors.InvalidInput(err.Error()), "failed to read delimited table")
	}
	return rows, nil
}

// parseRows maps a header row plus data rows to records. Row numbers in errors are
// 1-based and count the header, matching what a spreadsheet shows.
func parseRows(rows [][]string) ([]events.Record, error) {
	if len(rows) == 0 {
		return nil, errors.InvalidInput("table is empty: a header row is required")
	}

	index, err := headerIndex(rows[0])
	if err != nil {
		return nil, err
	}

	records := make([]events.Record, 0, len(rows)-1)
	for i := 1; i < len(rows); i++ {
		row := rows[i]
		if blankRow(row) {
			continue
		}
		rec, err := parseRecord(row, index, i+1)
		if err != nil {
			return nil, err
		}
		records = append(records, rec)
	}
	return records, nil
}

func headerIndex(header []string) (map[string]int, error) {
	index := make(map[string]int, len(header))
	for i, h := range header {
		name := strings.ToLower(strings.TrimSpace(h))
		name = strings.ReplaceAll(name, " ", "_")
		canonical, ok := columnAliases[name]
		if !ok {
			continue
		}
		if _, dup := index[canonical]; dup {
			return nil, errors.InvalidInputf("header has more than one %s column", canonical)
		}
		index[canonical] = i
	}

	var missing []string
	for _, col := range requiredColumns {
		if _, ok := index[col]; !ok {
			missing = append(missing, col)
		}
	}
	if len(missing) > 0 {
		return nil, errors.InvalidInputf("header is missing required columns: %s", strings.Join(missing, ", "))
	}
	return index, nil
}

func parseRecord(row []string, index map[string]int, rowNum int) (events.Record, error) {
	cell := func(col string) (string, bool) {
		i, ok := index[col]
		if !ok || i >= len(row) {
			return "", false
		}
		v := strings.TrimSpace(row[i])
		return v, v != ""
	}
	number := func(col string, required bool) (float64, error) {
		v, ok := cell(col)
		if !ok {
			if required {
				return 0, errors.InvalidInputf("row %d: %s is empty", rowNum, col)
			}
			return 0, nil
		}
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return 0, errors.InvalidInputf("row %d: %s %q is not a number", rowNum, col, v)
		}
		return f, nil
	}

	var rec events.Record
	var ok bool
	if rec.ExperimentName, ok = cell(ColumnExperiment); !ok {
		return rec, errors.InvalidInputf("row %d: %s is empty", rowNum, ColumnExperiment)
	}
	if rec.SiteID, ok = cell(ColumnSite); !ok {
		return rec, errors.InvalidInputf("row %d: %s is empty", rowNum, ColumnSite)
	}

	var err error
	if rec.TotalTime, err = number(ColumnTotalTime, true); err != nil {
		return rec, err
	}
	if rec.Time, err = number(ColumnTime, true); err != nil {
		return rec, err
	}
	if rec.CentroidX, err = number(ColumnX, false); err != nil {
		return rec, err
	}
	if rec.CentroidY, err = number(ColumnY, false); err != nil {
		return rec, err
	}
	return rec, nil
}

func blankRow(row []string) bool {
	for _, c := range row {
		if strings.TrimSpace(c) != "" {
			return false
		}
	}
	return true
}
