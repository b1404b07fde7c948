package commands

import (
	"os"

	"github.com/dustin/go-humanize"
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"

	"demolens/index"
)

func newIndexCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "index <dir>...",
		Short: "List demo files in directories and whether they are analysed",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := openCache()
			if err != nil {
				return err
			}

			demos, err := index.Scan(cmd.Context(), args)
			if err != nil {
				return err
			}

			t := table.NewWriter()
			t.SetOutputMirror(os.Stdout)
			t.SetStyle(table.StyleLight)
			t.AppendHeader(table.Row{"Demo", "Size", "Created", "Analysed"})
			for _, d := range demos {
				analysed := ""
				if store.Exists(d.Key) {
					analysed = "yes"
				}
				t.AppendRow(table.Row{
					d.Name,
					humanize.Bytes(uint64(d.Size)),
					humanize.Time(d.Created),
					analysed,
				})
			}
			t.Render()

			return nil
		},
	}
}
