package main

import (
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/nexconsult/precatorios/internal/services"
	"github.com/spf13/cobra"
)

var partitionsJSON bool

var partitionsCmd = &cobra.Command{
	Use:   "partitions",
	Short: "List the debtor entities of a regime",
	RunE:  listPartitions,
}

func init() {
	addRegimeFlag(partitionsCmd)
	addListingFlags(partitionsCmd)
	partitionsCmd.Flags().BoolVar(&partitionsJSON, "json", false, "print JSON instead of a table")
}

func listPartitions(cmd *cobra.Command, args []string) error {
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

	partitions, err := container.Lister.ListPartitions(cmd.Context(), cfg.Extraction.Regime)
	if err != nil {
		return fmt.Errorf("failed to list partitions: %w", err)
	}

	if partitionsJSON {
		return printJSON(partitions)
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tENTIDADE\tPRECATORIOS")
	total := 0
	for _, p := range partitions {
		fmt.Fprintf(w, "%d\t%s\t%d\n", p.ID, p.Name, p.ExpectedRecords)
		total += p.ExpectedRecords
	}
	fmt.Fprintf(w, "\t%d entidades\t%d\n", len(partitions), total)
	return w.Flush()
}
