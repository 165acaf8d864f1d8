package main

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"text/tabwriter"

	"github.com/nexconsult/precatorios/internal/models"
	"github.com/nexconsult/precatorios/internal/services"
	"github.com/spf13/cobra"
)

var gapsEntityID int

var gapsCmd = &cobra.Command{
	Use:   "gaps <run-id>",
	Short: "Detect gaps in the journaled outcomes of a run",
	Long: `Gaps reads the outcomes journaled by a run, including an interrupted one, and
reports every partition that would need recovery. Partitions without any
journaled outcome are reported as not_attempted.`,
	Args: cobra.ExactArgs(1),
	RunE: detectGaps,
}

func init() {
	addRegimeFlag(gapsCmd)
	addListingFlags(gapsCmd)
	gapsCmd.Flags().IntVar(&gapsEntityID, "entity-id", 0, "restrict detection to one debtor entity")
	gapsCmd.Flags().Float64Var(&flags.threshold, "threshold", 0, "completeness threshold in [0,1]")
}

func detectGaps(cmd *cobra.Command, args []string) error {
	cfg, log, closer, err := setup(cmd)
	if err != nil {
		return err
	}
	defer closer.Close()

	container, err := services.NewContainer(cfg, log)
	if err != nil {
		return err
	}
	defer container.Close()

	ctx := cmd.Context()
	partitions, err := container.Lister.ListPartitions(ctx, cfg.Extraction.Regime)
	if err != nil {
		return fmt.Errorf("failed to list partitions: %w", err)
	}
	if gapsEntityID > 0 {
		partitions = onlyEntity(partitions, gapsEntityID)
	}

	gaps, err := container.Runner.Detector().DetectFromJournal(ctx, container.Journal, args[0], partitions)
	if err != nil {
		return err
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tENTIDADE\tSTATUS\tEXTRAIDOS\tESPERADOS\tPAGINAS FALHAS\tPAGINAS")
	for _, gap := range gaps {
		extracted, failed := "-", "-"
		if gap.Outcome != nil {
			extracted = fmt.Sprint(gap.Outcome.RecordsExtracted)
			failed = fmt.Sprint(gap.Outcome.PagesFailed)
		}
		fmt.Fprintf(w, "%d\t%s\t%s\t%s\t%d\t%s\t%s\n", gap.Partition.ID, gap.Partition.Name, gap.Status, extracted, gap.Partition.ExpectedRecords, failed, formatPages(gap.MissingPages))
	}
	if err := w.Flush(); err != nil {
		return err
	}

	log.WithField("run_id", args[0]).Infof("%d of %d partitions flagged", len(gaps), len(partitions))
	return nil
}

// formatPages renders ascending page numbers compactly, folding runs into
// ranges: 1,2,3,7 becomes 1-3,7
func formatPages(pages []int) string {
	if len(pages) == 0 {
		return "-"
	}
	var parts []string
	for i := 0; i < len(pages); {
		j := i
		for j+1 < len(pages) && pages[j+1] == pages[j]+1 {
			j++
		}
		if j == i {
			parts = append(parts, strconv.Itoa(pages[i]))
		} else {
			parts = append(parts, fmt.Sprintf("%d-%d", pages[i], pages[j]))
		}
		i = j + 1
	}
	return strings.Join(parts, ",")
}

func onlyEntity(partitions []models.Partition, id int) []models.Partition {
	var out []models.Partition
	for _, p := range partitions {
		if p.ID == id {
			out = append(out, p)
		}
	}
	return out
}
