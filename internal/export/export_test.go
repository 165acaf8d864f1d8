package export

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/nexconsult/precatorios/internal/config"
	"github.com/nexconsult/precatorios/internal/logger"
	"github.com/nexconsult/precatorios/internal/models"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"
)

func testResult() *models.RunResult {
	at := time.Date(2025, 3, 14, 9, 30, 0, 0, time.UTC)
	return &models.RunResult{
		RunID:      "run-1",
		Regime:     models.RegimeGeral,
		FinishedAt: at,
		Records: []models.Record{
			{
				PartitionID:     1,
				PartitionName:   "Estado do Rio de Janeiro",
				Regime:          models.RegimeGeral,
				Number:          "2019.00001-0",
				Order:           "1º",
				OrderNum:        1,
				Debtor:          "Secretaria de Fazenda; RJ",
				Status:          "Pendente",
				Nature:          "Alimentar",
				Budget:          "2020",
				HistoricalValue: decimal.RequireFromString("1234.5"),
				UpdatedBalance:  decimal.RequireFromString("98765.43"),
				SourcePage:      1,
				ExtractedAt:     at,
			},
			{
				PartitionID:     1,
				PartitionName:   "Estado do Rio de Janeiro",
				Regime:          models.RegimeGeral,
				Number:          "2019.00002-0",
				OrderNum:        2,
				HistoricalValue: decimal.Zero,
				UpdatedBalance:  decimal.Zero,
				SourcePage:      1,
				Position:        1,
				ExtractedAt:     at,
			},
		},
	}
}

func TestCSVExporter(t *testing.T) {
	dir := t.TempDir()
	exporter := NewCSVExporter(dir, logger.Discard())

	path, err := exporter.Export(context.Background(), testResult())
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "precatorios_geral_20250314_093000.csv"), path)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	content := string(data)

	require.True(t, strings.HasPrefix(content, "\ufeff"), "missing BOM")
	lines := strings.Split(strings.TrimSpace(strings.TrimPrefix(content, "\ufeff")), "\n")
	require.Len(t, lines, 3)

	assert.True(t, strings.HasPrefix(lines[0], "ordem;id_entidade_grupo;entidade_grupo;"))
	assert.Contains(t, lines[1], `"Secretaria de Fazenda; RJ"`)
	assert.Contains(t, lines[1], ";1234,50;98765,43;")
	assert.Contains(t, lines[2], ";0,00;0,00;")
}

func TestCSVExporterCreatesOutputDir(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "nested", "out")
	path, err := NewCSVExporter(dir, logger.Discard()).Export(context.Background(), &models.RunResult{Regime: models.RegimeEspecial})
	require.NoError(t, err)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, 1, strings.Count(string(data), "\n"), "header only")
}

func TestExcelExporter(t *testing.T) {
	dir := t.TempDir()
	path, err := NewExcelExporter(dir, logger.Discard()).Export(context.Background(), testResult())
	require.NoError(t, err)
	assert.True(t, strings.HasSuffix(path, ".xlsx"))

	f, err := excelize.OpenFile(path)
	require.NoError(t, err)
	defer f.Close()

	rows, err := f.GetRows(sheetName)
	require.NoError(t, err)
	require.Len(t, rows, 3)
	assert.Equal(t, "numero_precatorio", rows[0][4])
	assert.Equal(t, "2019.00001-0", rows[1][4])

	balance, err := f.GetCellValue(sheetName, "J2")
	require.NoError(t, err)
	assert.Equal(t, "98765.43", balance)
}

func TestNew(t *testing.T) {
	exporters, err := New(config.ExportConfig{
		OutputDir:   t.TempDir(),
		Formats:     []string{"csv", "excel", "postgres"},
		PostgresDSN: "postgres://localhost/precatorios",
	}, logger.Discard())
	require.NoError(t, err)

	var names []string
	for _, e := range exporters {
		names = append(names, e.Name())
	}
	assert.Equal(t, []string{"csv", "excel", "postgres"}, names)

	_, err = New(config.ExportConfig{Formats: []string{"parquet"}}, logger.Discard())
	assert.Error(t, err)
}

func TestPostgresExporterRejectsBadTable(t *testing.T) {
	exporter := NewPostgresExporter("postgres://localhost/x", "precatorios; DROP TABLE x", 0, logger.Discard())
	_, err := exporter.Export(context.Background(), testResult())
	assert.ErrorContains(t, err, "invalid table name")
}
