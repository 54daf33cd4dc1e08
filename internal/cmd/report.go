package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"voice-diary-go/internal/report"
	"voice-diary-go/internal/types"
)

func newRankingCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "ranking <user> <month>",
		Short: "Show the month's most frequent keywords",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			if _, err := types.ParseMonth(args[1]); err != nil {
				return err
			}
			a, err := opts.open(cmd)
			if err != nil {
				return err
			}
			defer a.Close()

			records, err := a.Store.ListByUser(cmd.Context(), args[0], args[1])
			if err != nil {
				return err
			}
			r := report.KeywordRanking(records, args[1])
			out := cmd.OutOrStdout()
			for _, cat := range []struct {
				title string
				items []report.RankedKeyword
			}{
				{"👤 자주 만난 사람들", r.Who},
				{"📍 자주 간 장소들", r.Where},
				{"📝 자주 한 활동들", r.What},
			} {
				fmt.Fprintln(out, cat.title)
				if len(cat.items) == 0 {
					fmt.Fprintln(out, "  데이터 없음")
				}
				for i, k := range cat.items {
					fmt.Fprintf(out, "  %d. %s (%d회)\n", i+1, k.Word, k.Count)
				}
			}
			return nil
		},
	}
}

func newExportCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "export <user> <month> <out.xlsx>",
		Short: "Export a month of diaries and its keyword ranking to xlsx",
		Args:  cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			if _, err := types.ParseMonth(args[1]); err != nil {
				return err
			}
			a, err := opts.open(cmd)
			if err != nil {
				return err
			}
			defer a.Close()

			records, err := a.Store.ListByUser(cmd.Context(), args[0], args[1])
			if err != nil {
				return err
			}
			f, err := os.Create(args[2])
			if err != nil {
				return fmt.Errorf("create %s: %w", args[2], err)
			}
			if err := report.WriteWorkbook(f, records, report.KeywordRanking(records, args[1])); err != nil {
				f.Close()
				return err
			}
			if err := f.Close(); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "exported %d diaries to %s\n", len(records), args[2])
			return nil
		},
	}
}

func newImportCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "import <user> <in.xlsx>",
		Short: "Import diary rows from a spreadsheet",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := opts.open(cmd)
			if err != nil {
				return err
			}
			defer a.Close()

			records, err := report.LoadWorkbook(args[1], args[0], a.Log)
			if err != nil {
				return err
			}
			for _, rec := range records {
				if _, err := a.Store.Save(cmd.Context(), rec); err != nil {
					return err
				}
			}
			fmt.Fprintf(cmd.OutOrStdout(), "imported %d diaries\n", len(records))
			return nil
		},
	}
}
