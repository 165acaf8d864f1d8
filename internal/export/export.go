package export

import (
	"fmt"
	"strconv"
	"time"

	"github.com/nexconsult/precatorios/internal/config"
	"github.com/nexconsult/precatorios/internal/models"
	"github.com/nexconsult/precatorios/internal/pipeline"
	"github.com/nexconsult/precatorios/internal/utils"
	"github.com/sirupsen/logrus"
)

// New builds the exporters named in cfg.Formats
func New(cfg config.ExportConfig, logger *logrus.Logger) ([]pipeline.Exporter, error) {
	exporters := make([]pipeline.Exporter, 0, len(cfg.Formats))
	for _, format := range cfg.Formats {
		switch format {
		case "csv":
			exporters = append(exporters, NewCSVExporter(cfg.OutputDir, logger))
		case "excel":
			exporters = append(exporters, NewExcelExporter(cfg.OutputDir, logger))
		case "postgres":
			exporters = append(exporters, NewPostgresExporter(cfg.PostgresDSN, cfg.PostgresTable, cfg.PostgresBatch, logger))
		default:
			return nil, fmt.Errorf("unknown export format %q", format)
		}
	}
	return exporters, nil
}

// column is one output column shared by the file exporters
type column struct {
	header string
	value  func(r *models.Record) string
}

var columns = []column{
	{"ordem", func(r *models.Record) string { return strconv.Itoa(r.OrderNum) }},
	{"id_entidade_grupo", func(r *models.Record) string { return strconv.Itoa(r.PartitionID) }},
	{"entidade_grupo", func(r *models.Record) string { return r.PartitionName }},
	{"entidade_devedora", func(r *models.Record) string { return r.Debtor }},
	{"numero_precatorio", func(r *models.Record) string { return r.Number }},
	{"situacao", func(r *models.Record) string { return r.Status }},
	{"natureza", func(r *models.Record) string { return r.Nature }},
	{"orcamento", func(r *models.Record) string { return r.Budget }},
	{"valor_historico", func(r *models.Record) string { return utils.FormatBRL(r.HistoricalValue) }},
	{"saldo_atualizado", func(r *models.Record) string { return utils.FormatBRL(r.UpdatedBalance) }},
	{"classe", func(r *models.Record) string { return r.Class }},
	{"localizacao", func(r *models.Record) string { return r.Location }},
	{"peticoes_a_juntar", func(r *models.Record) string { return r.PendingPetitions }},
	{"ultima_fase", func(r *models.Record) string { return r.LastPhase }},
	{"possui_herdeiros", func(r *models.Record) string { return r.HasHeirs }},
	{"possui_cessao", func(r *models.Record) string { return r.HasAssignment }},
	{"possui_retificador", func(r *models.Record) string { return r.HasRectifier }},
	{"regime", func(r *models.Record) string { return string(r.Regime) }},
	{"pagina", func(r *models.Record) string { return strconv.Itoa(r.SourcePage) }},
	{"timestamp_extracao", func(r *models.Record) string { return r.ExtractedAt.Format(time.RFC3339) }},
}

func headers() []string {
	out := make([]string, len(columns))
	for i, c := range columns {
		out[i] = c.header
	}
	return out
}

func fileName(result *models.RunResult, ext string) string {
	ts := result.FinishedAt
	if ts.IsZero() {
		ts = time.Now()
	}
	return fmt.Sprintf("precatorios_%s_%s.%s", result.Regime, ts.Format("20060102_150405"), ext)
}
