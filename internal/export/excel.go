package export

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/nexconsult/precatorios/internal/models"
	"github.com/sirupsen/logrus"
	"github.com/xuri/excelize/v2"
)

const sheetName = "Precatórios"

// ExcelExporter writes records to an xlsx workbook
type ExcelExporter struct {
	dir    string
	logger *logrus.Logger
}

// NewExcelExporter creates an exporter writing into dir
func NewExcelExporter(dir string, logger *logrus.Logger) *ExcelExporter {
	return &ExcelExporter{dir: dir, logger: logger}
}

// Name returns the export format
func (e *ExcelExporter) Name() string { return "excel" }

// Export writes result.Records and returns the workbook path
func (e *ExcelExporter) Export(ctx context.Context, result *models.RunResult) (string, error) {
	if err := os.MkdirAll(e.dir, 0o755); err != nil {
		return "", fmt.Errorf("create output dir: %w", err)
	}

	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName(f.GetSheetName(0), sheetName); err != nil {
		return "", fmt.Errorf("name sheet: %w", err)
	}

	sw, err := f.NewStreamWriter(sheetName)
	if err != nil {
		return "", fmt.Errorf("open sheet writer: %w", err)
	}

	bold, err := f.NewStyle(&excelize.Style{Font: &excelize.Font{Bold: true}})
	if err != nil {
		return "", fmt.Errorf("create header style: %w", err)
	}

	header := make([]interface{}, len(columns))
	for i, c := range columns {
		header[i] = excelize.Cell{StyleID: bold, Value: c.header}
	}
	if err := sw.SetRow("A1", header); err != nil {
		return "", fmt.Errorf("write header: %w", err)
	}

	for i := range result.Records {
		if i%1000 == 0 && ctx.Err() != nil {
			return "", ctx.Err()
		}
		if err := sw.SetRow(cellName(1, i+2), excelRow(&result.Records[i])); err != nil {
			return "", fmt.Errorf("write row %d: %w", i, err)
		}
	}
	if err := sw.Flush(); err != nil {
		return "", fmt.Errorf("flush sheet: %w", err)
	}

	lastCell := cellName(len(columns), len(result.Records)+1)
	if err := f.AutoFilter(sheetName, "A1:"+lastCell, nil); err != nil {
		return "", fmt.Errorf("set autofilter: %w", err)
	}

	path := filepath.Join(e.dir, fileName(result, "xlsx"))
	if err := f.SaveAs(path); err != nil {
		return "", fmt.Errorf("save workbook: %w", err)
	}

	e.logger.WithFields(logrus.Fields{
		"path":    path,
		"records": len(result.Records),
	}).Info("Workbook written")

	return path, nil
}

// excelRow keeps numbers numeric so the sheet can sum them
func excelRow(r *models.Record) []interface{} {
	row := make([]interface{}, len(columns))
	for i, c := range columns {
		switch c.header {
		case "ordem":
			row[i] = r.OrderNum
		case "id_entidade_grupo":
			row[i] = r.PartitionID
		case "pagina":
			row[i] = r.SourcePage
		case "valor_historico":
			row[i] = r.HistoricalValue.InexactFloat64()
		case "saldo_atualizado":
			row[i] = r.UpdatedBalance.InexactFloat64()
		default:
			row[i] = c.value(r)
		}
	}
	return row
}

func cellName(col, row int) string {
	name, err := excelize.CoordinatesToCellName(col, row)
	if err != nil {
		return "A1"
	}
	return name
}
