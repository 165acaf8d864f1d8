package export

import (
	"context"
	"fmt"
	"regexp"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/nexconsult/precatorios/internal/models"
	"github.com/sirupsen/logrus"
)

var tableName = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_]*$`)

// PostgresExporter upserts records into a table keyed by run, entity and
// precatório number
type PostgresExporter struct {
	dsn    string
	table  string
	batch  int
	logger *logrus.Logger
}

// NewPostgresExporter creates an exporter for dsn. The pool is opened per export.
func NewPostgresExporter(dsn, table string, batch int, logger *logrus.Logger) *PostgresExporter {
	if batch <= 0 {
		batch = 500
	}
	return &PostgresExporter{dsn: dsn, table: table, batch: batch, logger: logger}
}

// Name returns the export format
func (e *PostgresExporter) Name() string { return "postgres" }

// Export writes result.Records and returns the table name
func (e *PostgresExporter) Export(ctx context.Context, result *models.RunResult) (string, error) {
	if !tableName.MatchString(e.table) {
		return "", fmt.Errorf("invalid table name %q", e.table)
	}

	cfg, err := pgxpool.ParseConfig(e.dsn)
	if err != nil {
		return "", fmt.Errorf("parse postgres dsn: %w", err)
	}
	cfg.MaxConns = 2

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return "", fmt.Errorf("connect to postgres: %w", err)
	}
	defer pool.Close()

	if _, err := pool.Exec(ctx, e.createTableSQL()); err != nil {
		return "", fmt.Errorf("create table %s: %w", e.table, err)
	}

	written, err := e.upsert(ctx, pool, result)
	if err != nil {
		return "", err
	}

	e.logger.WithFields(logrus.Fields{
		"table":   e.table,
		"run_id":  result.RunID,
		"records": written,
	}).Info("Records upserted")

	return e.table, nil
}

func (e *PostgresExporter) createTableSQL() string {
	return fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
		run_id              text        NOT NULL,
		id_entidade         integer     NOT NULL,
		numero_precatorio   text        NOT NULL,
		entidade_grupo      text        NOT NULL,
		regime              text        NOT NULL,
		ordem               integer     NOT NULL,
		entidade_devedora   text,
		situacao            text,
		natureza            text,
		orcamento           text,
		valor_historico     numeric(18,2) NOT NULL,
		saldo_atualizado    numeric(18,2) NOT NULL,
		classe              text,
		localizacao         text,
		peticoes_a_juntar   text,
		ultima_fase         text,
		possui_herdeiros    text,
		possui_cessao       text,
		possui_retificador  text,
		pagina              integer     NOT NULL,
		timestamp_extracao  timestamptz NOT NULL,
		PRIMARY KEY (run_id, id_entidade, numero_precatorio)
	)`, e.table)
}

func (e *PostgresExporter) upsertSQL() string {
	return fmt.Sprintf(`INSERT INTO %s
		(run_id, id_entidade, numero_precatorio, entidade_grupo, regime, ordem,
		 entidade_devedora, situacao, natureza, orcamento, valor_historico, saldo_atualizado,
		 classe, localizacao, peticoes_a_juntar, ultima_fase, possui_herdeiros, possui_cessao,
		 possui_retificador, pagina, timestamp_extracao)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11::text::numeric,$12::text::numeric,
		        $13,$14,$15,$16,$17,$18,$19,$20,$21)
		ON CONFLICT (run_id, id_entidade, numero_precatorio) DO UPDATE SET
			ordem = EXCLUDED.ordem,
			situacao = EXCLUDED.situacao,
			saldo_atualizado = EXCLUDED.saldo_atualizado,
			ultima_fase = EXCLUDED.ultima_fase,
			pagina = EXCLUDED.pagina,
			timestamp_extracao = EXCLUDED.timestamp_extracao`, e.table)
}

func (e *PostgresExporter) upsert(ctx context.Context, pool *pgxpool.Pool, result *models.RunResult) (int, error) {
	query := e.upsertSQL()
	total := 0

	for i := 0; i < len(result.Records); i += e.batch {
		j := min(i+e.batch, len(result.Records))

		b := &pgx.Batch{}
		for _, r := range result.Records[i:j] {
			b.Queue(query,
				result.RunID, r.PartitionID, r.Number, r.PartitionName, string(r.Regime), r.OrderNum,
				r.Debtor, r.Status, r.Nature, r.Budget, r.HistoricalValue.StringFixed(2), r.UpdatedBalance.StringFixed(2),
				r.Class, r.Location, r.PendingPetitions, r.LastPhase, r.HasHeirs, r.HasAssignment,
				r.HasRectifier, r.SourcePage, r.ExtractedAt,
			)
		}

		br := pool.SendBatch(ctx, b)
		for k := i; k < j; k++ {
			if _, err := br.Exec(); err != nil {
				_ = br.Close()
				return total, fmt.Errorf("upsert record %s: %w", result.Records[k].Number, err)
			}
			total++
		}
		if err := br.Close(); err != nil {
			return total, fmt.Errorf("close batch: %w", err)
		}
	}
	return total, nil
}
