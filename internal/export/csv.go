package export

import (
	"bufio"
	"context"
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"

	"github.com/nexconsult/precatorios/internal/models"
	"github.com/sirupsen/logrus"
)

const utf8BOM = "\ufeff"

// CSVExporter writes records as a semicolon separated file that pt-BR
// spreadsheet tools open without an import wizard
type CSVExporter struct {
	dir    string
	logger *logrus.Logger
}

// NewCSVExporter creates an exporter writing into dir
func NewCSVExporter(dir string, logger *logrus.Logger) *CSVExporter {
	return &CSVExporter{dir: dir, logger: logger}
}

// Name returns the export format
func (e *CSVExporter) Name() string { return "csv" }

// Export writes result.Records and returns the file path
func (e *CSVExporter) Export(ctx context.Context, result *models.RunResult) (string, error) {
	if err := os.MkdirAll(e.dir, 0o755); err != nil {
		return "", fmt.Errorf("create output dir: %w", err)
	}

	path := filepath.Join(e.dir, fileName(result, "csv"))
	file, err := os.Create(path)
	if err != nil {
		return "", fmt.Errorf("create csv: %w", err)
	}
	defer file.Close()

	buf := bufio.NewWriter(file)
	if _, err := buf.WriteString(utf8BOM); err != nil {
		return "", fmt.Errorf("write csv: %w", err)
	}

	w := csv.NewWriter(buf)
	w.Comma = ';'
	if err := w.Write(headers()); err != nil {
		return "", fmt.Errorf("write csv header: %w", err)
	}

	row := make([]string, len(columns))
	for i := range result.Records {
		if i%1000 == 0 && ctx.Err() != nil {
			return "", ctx.Err()
		}
		for c, col := range columns {
			row[c] = col.value(&result.Records[i])
		}
		if err := w.Write(row); err != nil {
			return "", fmt.Errorf("write csv row %d: %w", i, err)
		}
	}

	w.Flush()
	if err := w.Error(); err != nil {
		return "", fmt.Errorf("flush csv: %w", err)
	}
	if err := buf.Flush(); err != nil {
		return "", fmt.Errorf("flush csv: %w", err)
	}
	if err := file.Close(); err != nil {
		return "", fmt.Errorf("close csv: %w", err)
	}

	e.logger.WithFields(logrus.Fields{
		"path":    path,
		"records": len(result.Records),
	}).Info("CSV written")

	return path, nil
}
