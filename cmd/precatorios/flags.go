package main

import (
	"fmt"
	"strings"
	"time"

	"github.com/nexconsult/precatorios/internal/config"
	"github.com/nexconsult/precatorios/internal/models"
	"github.com/spf13/cobra"
)

// runFlags are shared by the commands that start or inspect a run
type runFlags struct {
	regime          string
	entityID        int
	workers         int
	recoveryWorkers int
	pageTimeout     time.Duration
	maxRetries      int
	threshold       float64
	fieldSet        string
	noRecovery      bool
	outputDir       string
	formats         []string
	partitionsFile  string
}

var flags runFlags

func addRegimeFlag(cmd *cobra.Command) {
	cmd.Flags().StringVar(&flags.regime, "regime", "", "geral or especial (default from TJRJ_REGIME)")
}

func addRunFlags(cmd *cobra.Command) {
	addRegimeFlag(cmd)
	f := cmd.Flags()
	f.IntVar(&flags.entityID, "entity-id", 0, "extract a single debtor entity")
	f.IntVar(&flags.workers, "workers", 0, "primary pass workers")
	f.IntVar(&flags.recoveryWorkers, "recovery-workers", 0, "recovery pass workers")
	f.DurationVar(&flags.pageTimeout, "page-timeout", 0, "per page timeout")
	f.IntVar(&flags.maxRetries, "max-retries", 0, "attempts per page")
	f.Float64Var(&flags.threshold, "threshold", 0, "completeness threshold in [0,1], 0 disables under-count flagging")
	f.StringVar(&flags.fieldSet, "field-set", "", "minimal or full")
	f.BoolVar(&flags.noRecovery, "no-recovery", false, "skip the recovery pass")
	f.StringVar(&flags.outputDir, "output-dir", "", "directory for csv and excel exports")
	f.StringSliceVar(&flags.formats, "formats", nil, "export formats: csv, excel, postgres")
}

func addListingFlags(cmd *cobra.Command) {
	cmd.Flags().StringVar(&flags.partitionsFile, "partitions-file", "", "read partitions from a YAML file instead of the portal")
}

// applyFlags overrides cfg with the flags set on cmd
func applyFlags(cmd *cobra.Command, cfg *config.Config) error {
	changed := func(name string) bool {
		f := cmd.Flags().Lookup(name)
		return f != nil && f.Changed
	}

	if changed("regime") {
		regime, err := models.ParseRegime(flags.regime)
		if err != nil {
			return err
		}
		cfg.Extraction.Regime = regime
	}
	if changed("field-set") {
		fieldSet, err := models.ParseFieldSet(flags.fieldSet)
		if err != nil {
			return err
		}
		cfg.Extraction.FieldSet = fieldSet
	}
	if changed("workers") {
		cfg.Extraction.Workers = flags.workers
		if cfg.Browser.MaxBrowsers < flags.workers+1 {
			cfg.Browser.MaxBrowsers = flags.workers + 1
		}
	}
	if changed("recovery-workers") {
		cfg.Extraction.RecoveryWorkers = flags.recoveryWorkers
	}
	if changed("page-timeout") {
		cfg.Extraction.PageTimeout = flags.pageTimeout
	}
	if changed("max-retries") {
		cfg.Extraction.MaxRetries = flags.maxRetries
	}
	if changed("threshold") {
		cfg.Extraction.CompletenessThreshold = flags.threshold
	}
	if changed("no-recovery") {
		cfg.Extraction.RecoveryEnabled = !flags.noRecovery
	}
	if changed("output-dir") {
		cfg.Export.OutputDir = flags.outputDir
	}
	if changed("formats") {
		formats := make([]string, 0, len(flags.formats))
		for _, format := range flags.formats {
			if format = strings.ToLower(strings.TrimSpace(format)); format != "" {
				formats = append(formats, format)
			}
		}
		if len(formats) == 0 {
			return fmt.Errorf("--formats needs at least one format")
		}
		cfg.Export.Formats = formats
	}
	if changed("partitions-file") {
		cfg.Extraction.PartitionsFile = flags.partitionsFile
	}
	return nil
}
