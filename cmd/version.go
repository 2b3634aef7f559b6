package cmd

import (
	"encoding/json"
	"fmt"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"

	"github.com/smazurov/protoframe/internal/version"
)

// CreateVersionCmd creates the version command.
func CreateVersionCmd() *cobra.Command {
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "version",
		Short: "Print build information",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			info := version.Get()
			out := cmd.OutOrStdout()

			if asJSON {
				enc := json.NewEncoder(out)
				enc.SetIndent("", "  ")
				return enc.Encode(info)
			}

			tw := table.NewWriter()
			tw.SetStyle(table.StyleRounded)
			tw.AppendRows([]table.Row{
				{"Version", info.Version},
				{"Commit", info.GitCommit},
				{"Built", info.BuildDate},
				{"Go", info.GoVersion},
				{"Platform", info.Platform},
			})
			_, err := fmt.Fprintln(out, tw.Render())
			return err
		},
	}

	cmd.Flags().BoolVar(&asJSON, "json", false, "Print as JSON")
	return cmd
}
