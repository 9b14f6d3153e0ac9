package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"sort"

	"dietinsights/internal/engine"
	"dietinsights/internal/export"
	"dietinsights/internal/source"

	"github.com/spf13/cobra"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "dietstats",
		Short:         "Offline analysis of the diet recipe dataset",
		SilenceUsage:  true,
		SilenceErrors: false,
	}
	root.AddCommand(newAnalyzeCmd(), newExportCmd(), newValidateCmd())
	return root
}

func load(ctx context.Context, path string) (*engine.Snapshot, error) {
	return engine.NewStore(nil).Reload(ctx, source.File{Path: path})
}

func newAnalyzeCmd() *cobra.Command {
	var csvPath, outDir string
	var topN int
	cmd := &cobra.Command{
		Use:   "analyze",
		Short: "Parse the dataset and write every summary output",
		RunE: func(cmd *cobra.Command, args []string) error {
			snap, err := load(cmd.Context(), csvPath)
			if err != nil {
				return err
			}
			paths, err := export.WriteAll(outDir, snap, topN)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "records: %d accepted, %d rejected\n", snap.Len(), len(snap.Rejected))
			for _, avg := range snap.MacroAverages() {
				fmt.Fprintf(out, "  %-16s protein %.2f  carbs %.2f  fat %.2f\n", avg.DietType, avg.ProteinG, avg.CarbsG, avg.FatG)
			}
			for _, p := range paths {
				fmt.Fprintln(out, "wrote", p)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&csvPath, "csv", "All_Diets.csv", "dataset CSV path")
	cmd.Flags().StringVar(&outDir, "out", "outputs", "output directory")
	cmd.Flags().IntVar(&topN, "topn", 5, "recipes per diet in the top protein output")
	return cmd
}

func newExportCmd() *cobra.Command {
	var csvPath, format string
	cmd := &cobra.Command{
		Use:   "export",
		Short: "Write the cleaned dataset to stdout as csv, arrow or averages json",
		RunE: func(cmd *cobra.Command, args []string) error {
			snap, err := load(cmd.Context(), csvPath)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			switch format {
			case "csv":
				return export.WriteCleanCSV(out, snap)
			case "arrow":
				return export.WriteArrow(out, snap)
			case "json":
				return export.WriteAverages(out, snap)
			}
			return fmt.Errorf("unknown format %q (want csv, arrow or json)", format)
		},
	}
	cmd.Flags().StringVar(&csvPath, "csv", "All_Diets.csv", "dataset CSV path")
	cmd.Flags().StringVar(&format, "format", "csv", "csv, arrow or json")
	return cmd
}

func newValidateCmd() *cobra.Command {
	var csvPath string
	var limit int
	cmd := &cobra.Command{
		Use:   "validate",
		Short: "Report rows the parser rejects",
		RunE: func(cmd *cobra.Command, args []string) error {
			f, err := os.Open(csvPath)
			if err != nil {
				return err
			}
			defer f.Close()
			return validate(cmd.OutOrStdout(), f, limit)
		},
	}
	cmd.Flags().StringVar(&csvPath, "csv", "All_Diets.csv", "dataset CSV path")
	cmd.Flags().IntVar(&limit, "limit", 20, "rejections to list")
	return cmd
}

var errNoValidRows = errors.New("no valid rows")

func validate(w io.Writer, r io.Reader, limit int) error {
	rows, err := engine.ReadRows(r)
	if err != nil {
		return err
	}
	res := engine.Parse(rows)
	fmt.Fprintf(w, "rows: %d accepted, %d rejected\n", len(res.Records), len(res.Rejected))

	reasons := res.Reasons()
	codes := make([]string, 0, len(reasons))
	for code := range reasons {
		codes = append(codes, string(code))
	}
	sort.Strings(codes)
	for _, code := range codes {
		fmt.Fprintf(w, "  %-14s %d\n", code, reasons[engine.ReasonCode(code)])
	}
	for i, rej := range res.Rejected {
		if i == limit {
			fmt.Fprintf(w, "  ... %d more\n", len(res.Rejected)-limit)
			break
		}
		fmt.Fprintf(w, "  row %d: %s %s=%q\n", rej.Row.Line, rej.Reason, rej.Field, rej.Value)
	}
	if len(res.Records) == 0 {
		return errNoValidRows
	}
	return nil
}
