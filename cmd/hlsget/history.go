package main

import (
	"fmt"
	"strconv"

	"github.com/dustin/go-humanize"
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"
	"github.com/spf13/cobra"

	"github.com/datallboy/hlsget/internal/domain"
	"github.com/datallboy/hlsget/internal/store"
)

func newHistoryCommand(ctx *commandContext) *cobra.Command {
	var limit int

	cmd := &cobra.Command{
		Use:   "history",
		Short: "List recorded downloads",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}

			st, err := store.Open(cfg.Store)
			if err != nil {
				return fmt.Errorf("open job store: %w", err)
			}
			if st == nil {
				return errHistoryDisabled
			}
			defer st.Close()

			jobs, err := st.ListJobs(cmd.Context(), limit)
			if err != nil {
				return err
			}
			if len(jobs) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "No downloads recorded")
				return nil
			}

			fmt.Fprintln(cmd.OutOrStdout(), renderHistory(jobs))
			return nil
		},
	}

	cmd.Flags().IntVarP(&limit, "limit", "n", 20, "Maximum number of jobs to show (0 for all)")

	return cmd
}

func renderHistory(jobs []*domain.Job) string {
	tw := table.NewWriter()
	tw.SetStyle(table.StyleRounded)
	tw.AppendHeader(table.Row{"ID", "Name", "Status", "Segments", "Size", "Created", "Output / Error"})

	for _, job := range jobs {
		v := job.View()

		segs := strconv.FormatInt(v.CompletedSegments, 10) + "/" + strconv.FormatInt(v.TotalSegments, 10)
		if v.FailedSegments > 0 {
			segs += fmt.Sprintf(" (%d failed)", v.FailedSegments)
		}

		detail := v.OutputPath
		if v.Error != "" {
			detail = text.Trim(v.Error, 60)
		}

		tw.AppendRow(table.Row{
			v.ID,
			v.OutputName,
			string(v.Status),
			segs,
			humanize.IBytes(v.Bytes),
			humanize.Time(v.CreatedAt),
			detail,
		})
	}

	tw.SetColumnConfigs([]table.ColumnConfig{
		{Number: 4, Align: text.AlignRight, AlignHeader: text.AlignLeft},
		{Number: 5, Align: text.AlignRight, AlignHeader: text.AlignLeft},
	})

	return tw.Render()
}
