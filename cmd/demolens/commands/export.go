package commands

import (
	"errors"
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"demolens/analyser"
	"demolens/cache"
	"demolens/model"
	"demolens/output"
)

func newExportCommand() *cobra.Command {
	var (
		credentialsPath string
		sheetURL        string
		sheetName       string
	)

	cmd := &cobra.Command{
		Use:   "export <file.dem>...",
		Short: "Analyse demos and upload aggregated player stats to a Google Sheet",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := openCache()
			if err != nil {
				return err
			}

			credentials, err := os.ReadFile(credentialsPath)
			if err != nil {
				return fmt.Errorf("read credentials: %w", err)
			}

			client, err := output.NewSheetsClient(cmd.Context(), credentials, sheetURL, sheetName)
			if err != nil {
				return err
			}

			demos := make([]*model.AnalysedDemo, 0, len(args))
			for _, path := range args {
				demo, err := analyseOrLoad(store, path)
				if err != nil {
					return fmt.Errorf("analyse %s: %w", path, err)
				}
				demos = append(demos, demo)
			}

			if err := client.UploadPlayerStats(cmd.Context(), demos); err != nil {
				return err
			}
			fmt.Printf("Uploaded stats for %d demos\n", len(demos))
			return nil
		},
	}

	cmd.Flags().StringVar(&credentialsPath, "credentials", "", "service account credentials JSON file")
	cmd.Flags().StringVar(&sheetURL, "sheet-url", "", "Google Sheets URL")
	cmd.Flags().StringVar(&sheetName, "sheet-name", "Stats", "sheet tab name")
	_ = cmd.MarkFlagRequired("credentials")
	_ = cmd.MarkFlagRequired("sheet-url")

	return cmd
}

// analyseOrLoad serves the summary from cache when possible and
// analyses (and caches) on a miss.
func analyseOrLoad(store *cache.Cache, path string) (*model.AnalysedDemo, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	info, err := os.Stat(path)
	if err != nil {
		return nil, err
	}
	key := analyser.HashDemo(b, info.ModTime())

	if demo, err := store.Load(key); err == nil {
		return demo, nil
	} else if !errors.Is(err, cache.ErrNotFound) {
		slog.Error("failed to load cached demo", "key", key.Hex(), "error", err)
	}

	demo, err := analyser.Analyse(b, nil)
	if err != nil {
		return nil, err
	}
	if err := store.Store(key, demo); err != nil {
		slog.Error("failed to cache analysed demo", "key", key.Hex(), "error", err)
	}
	return demo, nil
}
