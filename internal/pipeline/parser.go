package pipeline

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/nexconsult/precatorios/internal/models"
	"github.com/nexconsult/precatorios/internal/utils"
)

// Column layout of the chronological order table
const (
	colOrder           = 2
	colDebtor          = 6
	colNumber          = 7
	colStatus          = 8
	colNature          = 9
	colBudget          = 10
	colHistoricalValue = 12
	colUpdatedBalance  = 14

	minCells = 15
)

// Labels of the expanded detail panel
const (
	detailClass            = "Classe"
	detailLocation         = "Localização"
	detailPendingPetitions = "Petições a Juntar"
	detailLastPhase        = "Última fase"
	detailHasHeirs         = "Possui Herdeiros"
	detailHasAssignment    = "Possui Cessão"
	detailHasRectifier     = "Possui Retificador"
)

// ErrMalformedRow marks rows that cannot become a record
var ErrMalformedRow = errors.New("malformed row")

// RowParser turns raw table rows into records for one field set
type RowParser struct {
	fieldSet models.FieldSet
}

// NewRowParser creates a parser for the given field set
func NewRowParser(fieldSet models.FieldSet) *RowParser {
	return &RowParser{fieldSet: fieldSet}
}

// FieldSet returns the parser's field set
func (p *RowParser) FieldSet() models.FieldSet {
	return p.fieldSet
}

// Parse builds a record from one raw row. Errors wrap ErrMalformedRow.
func (p *RowParser) Parse(row models.RawRow, partition models.Partition, page, position int, extractedAt time.Time) (models.Record, error) {
	if len(row.Cells) < minCells {
		return models.Record{}, fmt.Errorf("%w: %d cells, need %d", ErrMalformedRow, len(row.Cells), minCells)
	}

	cell := func(i int) string { return strings.TrimSpace(row.Cells[i]) }

	number := cell(colNumber)
	if number == "" {
		return models.Record{}, fmt.Errorf("%w: empty precatório number", ErrMalformedRow)
	}

	historical, err := utils.ParseBRL(cell(colHistoricalValue))
	if err != nil {
		return models.Record{}, fmt.Errorf("%w: valor histórico: %v", ErrMalformedRow, err)
	}

	balance := historical
	if raw := cell(colUpdatedBalance); raw != "" {
		balance, err = utils.ParseBRL(raw)
		if err != nil {
			return models.Record{}, fmt.Errorf("%w: saldo atualizado: %v", ErrMalformedRow, err)
		}
	}

	// Unparseable order labels keep the raw text and sort first
	orderNum, _ := utils.ParseOrdinal(cell(colOrder))

	record := models.Record{
		PartitionID:     partition.ID,
		PartitionName:   partition.Name,
		Regime:          partition.Regime,
		Number:          number,
		Order:           cell(colOrder),
		OrderNum:        orderNum,
		Debtor:          cell(colDebtor),
		Status:          cell(colStatus),
		Nature:          cell(colNature),
		Budget:          cell(colBudget),
		HistoricalValue: historical,
		UpdatedBalance:  balance,
		SourcePage:      page,
		Position:        position,
		ExtractedAt:     extractedAt,
	}

	if p.fieldSet == models.FieldSetFull && row.Details != nil {
		record.Class = row.Details[detailClass]
		record.Location = row.Details[detailLocation]
		record.PendingPetitions = row.Details[detailPendingPetitions]
		record.LastPhase = row.Details[detailLastPhase]
		record.HasHeirs = row.Details[detailHasHeirs]
		record.HasAssignment = row.Details[detailHasAssignment]
		record.HasRectifier = row.Details[detailHasRectifier]
	}

	return record, nil
}
