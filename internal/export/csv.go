// Package export writes per-category and combined CSV exports of job records.
package export

import (
	"bytes"
	"encoding/csv"
	"errors"
	"fmt"
	"path/filepath"
	"strings"

	"go.uber.org/zap"

	"github.com/JakeFAU/jobkb-crawler/internal/crawler"
	"github.com/JakeFAU/jobkb-crawler/internal/storage/local"
)

// CombinedFileName is the name of the cross-category export.
const CombinedFileName = "all_jobs_combined.csv"

// TagSeparator joins a record's tags into one CSV cell.
const TagSeparator = "|"

// Header lists the CSV columns in output order.
var Header = []string{
	"job_title",
	"organization",
	"salary",
	"experience",
	"qualification",
	"location",
	"tags",
	"age_limit",
	"vacancies",
	"category",
}

// CSVExporter implements crawler.Exporter on the local filesystem.
type CSVExporter struct {
	dir    string
	logger *zap.Logger
}

// NewCSVExporter returns an exporter writing below dir.
func NewCSVExporter(dir string, logger *zap.Logger) (*CSVExporter, error) {
	if strings.TrimSpace(dir) == "" {
		return nil, fmt.Errorf("output directory is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &CSVExporter{dir: dir, logger: logger}, nil
}

// CategoryFileName returns the export file name for category.
func CategoryFileName(category string) string {
	return category + "_jobs.csv"
}

// ErrInvalidCategory is returned for category names that would leave the
// output directory.
var ErrInvalidCategory = errors.New("invalid category name")

// WriteCategory writes <category>_jobs.csv.
func (e *CSVExporter) WriteCategory(category string, records []crawler.JobRecord) error {
	if !crawler.ValidCategoryName(category) {
		return fmt.Errorf("%w: %q", ErrInvalidCategory, category)
	}
	return e.write(CategoryFileName(category), records)
}

// WriteCombined writes all_jobs_combined.csv.
func (e *CSVExporter) WriteCombined(records []crawler.JobRecord) error {
	return e.write(CombinedFileName, records)
}

func (e *CSVExporter) write(name string, records []crawler.JobRecord) error {
	data, err := Encode(records)
	if err != nil {
		return err
	}
	path := filepath.Join(e.dir, name)
	if err := local.WriteFileAtomic(path, data, 0o644); err != nil {
		return fmt.Errorf("write %s: %w", name, err)
	}
	e.logger.Info("csv export written", zap.String("path", path), zap.Int("records", len(records)))
	return nil
}

// Encode renders records as CSV with a header row.
func Encode(records []crawler.JobRecord) ([]byte, error) {
	var buf bytes.Buffer
	w := csv.NewWriter(&buf)
	if err := w.Write(Header); err != nil {
		return nil, fmt.Errorf("write csv header: %w", err)
	}
	for _, rec := range records {
		row := []string{
			rec.JobTitle,
			rec.Organization,
			rec.Salary,
			rec.Experience,
			rec.Qualification,
			rec.Location,
			strings.Join(rec.Tags, TagSeparator),
			rec.AgeLimit,
			rec.Vacancies,
			rec.Category,
		}
		if err := w.Write(row); err != nil {
			return nil, fmt.Errorf("write csv row: %w", err)
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return nil, fmt.Errorf("flush csv: %w", err)
	}
	return buf.Bytes(), nil
}
