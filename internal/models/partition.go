package models

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

// Regime is the payment regime an entity belongs to
type Regime string

const (
	RegimeGeral    Regime = "geral"
	RegimeEspecial Regime = "especial"
)

// ParseRegime normalizes a regime name
func ParseRegime(s string) (Regime, error) {
	switch Regime(strings.ToLower(strings.TrimSpace(s))) {
	case RegimeGeral:
		return RegimeGeral, nil
	case RegimeEspecial:
		return RegimeEspecial, nil
	default:
		return "", fmt.Errorf("unknown regime %q (expected geral or especial)", s)
	}
}

// Partition is one debtor entity ("entidade devedora"), the unit of extraction
type Partition struct {
	ID   int    `json:"id_entidade" yaml:"id"`
	Name string `json:"nome_entidade" yaml:"name"`
	// ExpectedRecords is the pending count advertised by the portal. Advisory only.
	ExpectedRecords int             `json:"precatorios_pendentes" yaml:"expected_records"`
	Regime          Regime          `json:"regime" yaml:"regime"`
	PaidCount       int             `json:"precatorios_pagos" yaml:"paid_count"`
	PriorityValue   decimal.Decimal `json:"valor_prioridade" yaml:"-"`
	RPVValue        decimal.Decimal `json:"valor_rpv" yaml:"-"`
}

// PageRange is an inclusive span of pages assigned to one worker
type PageRange struct {
	Start int `json:"start"`
	End   int `json:"end"`
}

// Pages returns the number of pages in the range
func (r PageRange) Pages() int {
	if r.End < r.Start {
		return 0
	}
	return r.End - r.Start + 1
}

func (r PageRange) String() string {
	return fmt.Sprintf("[%d,%d]", r.Start, r.End)
}
