package models

import (
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// FieldSet selects which columns are extracted from a listing page
type FieldSet string

const (
	// FieldSetMinimal reads only the visible table columns
	FieldSetMinimal FieldSet = "minimal"
	// FieldSetFull also expands each row and reads its detail panel
	FieldSetFull FieldSet = "full"
)

// ParseFieldSet normalizes a field set name
func ParseFieldSet(s string) (FieldSet, error) {
	switch FieldSet(strings.ToLower(strings.TrimSpace(s))) {
	case FieldSetMinimal, "":
		return FieldSetMinimal, nil
	case FieldSetFull:
		return FieldSetFull, nil
	default:
		return "", fmt.Errorf("unknown field set %q (expected minimal or full)", s)
	}
}

// RawRow is one table row as returned by a page renderer
type RawRow struct {
	Cells   []string          `json:"cells"`
	Details map[string]string `json:"details,omitempty"`
}

// RecordKey is the de-duplication key of a record
type RecordKey struct {
	PartitionID int
	Number      string
}

// Record is one extracted precatório
type Record struct {
	PartitionID   int    `json:"id_entidade_grupo"`
	PartitionName string `json:"entidade_grupo"`
	Regime        Regime `json:"regime"`

	Number          string          `json:"numero_precatorio"`
	Order           string          `json:"ordem"`
	OrderNum        int             `json:"ordem_num"`
	Debtor          string          `json:"entidade_devedora"`
	Status          string          `json:"situacao"`
	Nature          string          `json:"natureza"`
	Budget          string          `json:"orcamento"`
	HistoricalValue decimal.Decimal `json:"valor_historico"`
	UpdatedBalance  decimal.Decimal `json:"saldo_atualizado"`

	// Only populated with FieldSetFull
	Class            string `json:"classe,omitempty"`
	Location         string `json:"localizacao,omitempty"`
	PendingPetitions string `json:"peticoes_a_juntar,omitempty"`
	LastPhase        string `json:"ultima_fase,omitempty"`
	HasHeirs         string `json:"possui_herdeiros,omitempty"`
	HasAssignment    string `json:"possui_cessao,omitempty"`
	HasRectifier     string `json:"possui_retificador,omitempty"`

	SourcePage  int       `json:"source_page"`
	Position    int       `json:"position"`
	ExtractedAt time.Time `json:"timestamp_extracao"`
}

// Key returns the record's de-duplication key
func (r Record) Key() RecordKey {
	return RecordKey{PartitionID: r.PartitionID, Number: r.Number}
}
