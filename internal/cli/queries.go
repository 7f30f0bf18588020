package cli

import (
	"fmt"
	"io"
	"strconv"

	"github.com/olekukonko/tablewriter"
	"github.com/olekukonko/tablewriter/tw"
	"github.com/spf13/cobra"

	"github.com/FranksOps/jobdigest/internal/profile"
	"github.com/FranksOps/jobdigest/internal/query"
	"github.com/FranksOps/jobdigest/internal/record"
)

func newQueriesCmd(deps Deps) *cobra.Command {
	var profilePath string

	cmd := &cobra.Command{
		Use:   "queries",
		Short: "Print the query plan without searching",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if profilePath == "" {
				profilePath = envProfilePath()
			}
			p, err := profile.Load(profilePath)
			if err != nil {
				return exitWith(ExitConfig, err)
			}

			queries := query.FromProfile(p)
			rows := make([][]string, 0, len(queries))
			for i, q := range queries {
				rows = append(rows, []string{strconv.Itoa(i + 1), q.Role, q.Location, q.Text})
			}
			if err := renderTable(cmd.OutOrStdout(), []string{"#", "Role", "Location", "Query"}, rows); err != nil {
				return exitWith(ExitRuntime, err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "\n%d queries\n", len(queries))
			return nil
		},
	}
	cmd.Flags().StringVar(&profilePath, "profile", "", "search profile YAML (default: PROFILE_PATH or built-in)")
	return cmd
}

func newTable(w io.Writer) *tablewriter.Table {
	return tablewriter.NewTable(w,
		tablewriter.WithConfig(tablewriter.Config{
			Row: tw.CellConfig{
				Formatting: tw.CellFormatting{
					AutoWrap: tw.WrapNone,
				},
				Alignment: tw.CellAlignment{
					Global: tw.AlignLeft,
				},
			},
			Header: tw.CellConfig{
				Formatting: tw.CellFormatting{
					AutoFormat: tw.On,
				},
				Alignment: tw.CellAlignment{
					Global: tw.AlignLeft,
				},
			},
		}),
		tablewriter.WithRendition(tw.Rendition{
			Borders: tw.BorderNone,
			Settings: tw.Settings{
				Separators: tw.Separators{
					ShowHeader: tw.Off,
				},
			},
		}),
	)
}

func renderTable(w io.Writer, header []string, rows [][]string) error {
	table := newTable(w)
	table.Header(header)
	if err := table.Bulk(rows); err != nil {
		return err
	}
	return table.Render()
}

// renderRecords lists records the way a dry run shows them.
func renderRecords(w io.Writer, records []record.JobRecord) error {
	rows := make([][]string, 0, len(records))
	for _, r := range records {
		kind := "job link"
		if r.OfficialSite {
			kind = "official"
		}
		entry := ""
		if r.ExperienceMatch {
			entry = "yes"
		}
		rows = append(rows, []string{clip(r.Title, 60), r.Role, r.Location, kind, entry, r.Link})
	}
	return renderTable(w, []string{"Title", "Role", "Location", "Type", "Entry", "Link"}, rows)
}

func clip(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-1]) + "…"
}
