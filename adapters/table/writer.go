package table

import (
	"context"
	"encoding/csv"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"burstscan/domain/burst"
	"burstscan/internal/errors"

	"github.com/xuri/excelize/v2"
	"go.uber.org/zap"
)

// File and sheet names of the report tables.
const (
	ClustersTable    = "clusters"
	SignificantTable = "significant_clusters"
	SiteScoresTable  = "site_scores"
	SkippedTable     = "skipped_sites"
)

// NotAvailable is written for undefined values such as the score of a site whose
// p-value underflowed.
const NotAvailable = "NA"

// Sheet is one rectangular output table.
type Sheet struct {
	Name    string
	Headers []string
	Rows    [][]interface{}
}

// ReportSheets lays a report out as tables in a fixed order.
func ReportSheets(report *burst.Report) []Sheet {
	return []Sheet{
		clusterSheet(report.Clusters),
		significantSheet(report),
		siteScoreSheet(report.SiteScores),
		skippedSheet(report.Skipped),
	}
}

func clusterSheet(clusters []burst.EventCluster) Sheet {
	s := Sheet{
		Name:    ClustersTable,
		Headers: []string{"experiment", "site", "start", "end", "size", "first_time", "last_time", "span", "score", "max_inter_event_time", "times"},
	}
	for _, c := range clusters {
		s.Rows = append(s.Rows, []interface{}{
			c.Experiment.String(), c.Site.String(), c.Start, c.End, c.Size(),
			firstTime(c), lastTime(c), c.Span(), c.Score(), c.MaxInterEventTime(), joinTimes(c),
		})
	}
	return s
}

func significantSheet(report *burst.Report) Sheet {
	s := Sheet{
		Name:    SignificantTable,
		Headers: []string{"scope", "experiment", "site", "start", "end", "size", "first_time", "last_time", "score", "cutoff", "times"},
	}
	for _, scope := range reportScopes(report) {
		for _, sc := range report.Significant[scope] {
			c := sc.Cluster
			s.Rows = append(s.Rows, []interface{}{
				string(sc.Scope), c.Experiment.String(), c.Site.String(), c.Start, c.End, c.Size(),
				firstTime(c), lastTime(c), c.Score(), sc.Cutoff, joinTimes(c),
			})
		}
	}
	return s
}

func siteScoreSheet(scores []burst.SiteScore) Sheet {
	s := Sheet{
		Name:    SiteScoresTable,
		Headers: []string{"experiment", "site", "event_count", "average_time_per_event", "observed_mean_gap", "chi_squared", "degrees_of_freedom", "p_value", "score"},
	}
	for _, sc := range scores {
		var score interface{} = NotAvailable
		if sc.Defined {
			score = sc.Score
		}
		s.Rows = append(s.Rows, []interface{}{
			sc.Experiment.String(), sc.Site.String(), sc.EventCount, sc.AverageTimePerEvent,
			sc.ObservedMeanGap, sc.ChiSquared, sc.DegreesOfFreedom, sc.PValue, score,
		})
	}
	return s
}

func skippedSheet(skipped []burst.SkippedSite) Sheet {
	s := Sheet{
		Name:    SkippedTable,
		Headers: []string{"experiment", "site", "stage", "reason"},
	}
	for _, sk := range skipped {
		s.Rows = append(s.Rows, []interface{}{sk.Experiment.String(), sk.Site.String(), sk.Stage, sk.Reason})
	}
	return s
}

// reportScopes lists scopes in the order the run requested them, then any others.
func reportScopes(report *burst.Report) []burst.Scope {
	seen := make(map[burst.Scope]bool)
	var scopes []burst.Scope
	for _, s := range report.Parameters.Scopes {
		if !seen[s] {
			seen[s] = true
			scopes = append(scopes, s)
		}
	}
	var rest []burst.Scope
	for s := range report.Significant {
		if !seen[s] {
			rest = append(rest, s)
		}
	}
	sort.Slice(rest, func(i, j int) bool { return rest[i] < rest[j] })
	return append(scopes, rest...)
}

func firstTime(c burst.EventCluster) float64 {
	if len(c.Events) == 0 {
		return math.NaN()
	}
	return c.Events[0].Time
}

func lastTime(c burst.EventCluster) float64 {
	if len(c.Events) == 0 {
		return math.NaN()
	}
	return c.Events[len(c.Events)-1].Time
}

func joinTimes(c burst.EventCluster) string {
	parts := make([]string, len(c.Events))
	for i, e := range c.Events {
		parts[i] = formatFloat(e.Time)
	}
	return strings.Join(parts, ",")
}

func formatFloat(x float64) string {
	switch {
	case math.IsNaN(x):
		return NotAvailable
	case math.IsInf(x, 1):
		return "Inf"
	case math.IsInf(x, -1):
		return "-Inf"
	}
	return strconv.FormatFloat(x, 'g', -1, 64)
}

// cellValue keeps finite numbers numeric and renders everything else as text.
func cellValue(v interface{}) interface{} {
	if f, ok := v.(float64); ok && (math.IsNaN(f) || math.IsInf(f, 0)) {
		return formatFloat(f)
	}
	return v
}

func cellText(v interface{}) string {
	switch x := v.(type) {
	case string:
		return x
	case float64:
		return formatFloat(x)
	case int:
		return strconv.Itoa(x)
	default:
		return fmt.Sprint(x)
	}
}

// TSVWriter writes one tab-separated file per report table into a directory
type TSVWriter struct {
	dir    string
	logger *zap.Logger
}

// NewTSVWriter creates a writer rooted at dir. The directory is created on write.
func NewTSVWriter(dir string, logger *zap.Logger) *TSVWriter {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &TSVWriter{dir: dir, logger: logger.Named("tsv_writer")}
}

// Path returns where the named table is written.
func (w *TSVWriter) Path(table string) string {
	return filepath.Join(w.dir, table+".tsv")
}

// WriteReport writes every report table
func (w *TSVWriter) WriteReport(ctx context.Context, report *burst.Report) error {
	if err := os.MkdirAll(w.dir, 0o755); err != nil {
		return errors.IOError("create output directory", err)
	}
	for _, sheet := range ReportSheets(report) {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := w.writeSheet(sheet); err != nil {
			return err
		}
		w.logger.Debug("table written", zap.String("path", w.Path(sheet.Name)), zap.Int("rows", len(sheet.Rows)))
	}
	return nil
}

func (w *TSVWriter) writeSheet(sheet Sheet) (err error) {
	path := w.Path(sheet.Name)
	f, err := os.Create(path)
	if err != nil {
		return errors.IOError("create "+path, err)
	}
	defer func() {
		if cerr := f.Close(); cerr != nil && err == nil {
			err = errors.IOError("close "+path, cerr)
		}
	}()

	out := csv.NewWriter(f)
	out.Comma = '\t'
	if err := out.Write(sheet.Headers); err != nil {
		return errors.IOError("write "+path, err)
	}
	record := make([]string, len(sheet.Headers))
	for _, row := range sheet.Rows {
		for i, v := range row {
			record[i] = cellText(v)
		}
		if err := out.Write(record); err != nil {
			return errors.IOError("write "+path, err)
		}
	}
	out.Flush()
	if err := out.Error(); err != nil {
		return errors.IOError("flush "+path, err)
	}
	return nil
}

// XLSXWriter writes all report tables into one workbook, one sheet per table
type XLSXWriter struct {
	path   string
	logger *zap.Logger
}

// NewXLSXWriter creates a workbook writer for path.
func NewXLSXWriter(path string, logger *zap.Logger) *XLSXWriter {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &XLSXWriter{path: path, logger: logger.Named("xlsx_writer")}
}

// WriteReport writes the workbook
func (w *XLSXWriter) WriteReport(ctx context.Context, report *burst.Report) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	f := excelize.NewFile()
	defer f.Close()

	sheets := ReportSheets(report)
	for i, sheet := range sheets {
		if i == 0 {
			// Rename the default sheet so the first table is the active one.
			if err := f.SetSheetName(f.GetSheetName(0), sheet.Name); err != nil {
				return errors.IOError("name sheet "+sheet.Name, err)
			}
		} else if _, err := f.NewSheet(sheet.Name); err != nil {
			return errors.IOError("create sheet "+sheet.Name, err)
		}
		if err := writeWorksheet(f, sheet); err != nil {
			return err
		}
	}
	f.SetActiveSheet(0)

	if dir := filepath.Dir(w.path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return errors.IOError("create output directory", err)
		}
	}
	if err := f.SaveAs(w.path); err != nil {
		return errors.IOError("save workbook "+w.path, err)
	}
	w.logger.Debug("workbook written", zap.String("path", w.path), zap.Int("sheets", len(sheets)))
	return nil
}

func writeWorksheet(f *excelize.File, sheet Sheet) error {
	for i, h := range sheet.Headers {
		cell, _ := excelize.CoordinatesToCellName(i+1, 1)
		if err := f.SetCellValue(sheet.Name, cell, h); err != nil {
			return errors.IOError("write header of "+sheet.Name, err)
		}
	}
	for r, row := range sheet.Rows {
		for c, v := range row {
			cell, _ := excelize.CoordinatesToCellName(c+1, r+2)
			if err := f.SetCellValue(sheet.Name, cell, cellValue(v)); err != nil {
				return errors.IOError("write "+sheet.Name, err)
			}
		}
	}
	return nil
}
