package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"mkettler/groceryworker/config"
	"mkettler/groceryworker/internal/sink"
)

var exportSite string

var exportCmd = &cobra.Command{
	Use:   "export",
	Short: "Export a site's accumulated JSONL log to CSV",
	RunE: func(cmd *cobra.Command, args []string) error {
		site, err := config.LoadSite(configDir, exportSite)
		if err != nil {
			return err
		}

		data, err := sink.NewDataManager(site, app.DataDir)
		if err != nil {
			return err
		}

		csvPath, err := data.ExportCSV()
		if err != nil {
			return err
		}
		fmt.Println(csvPath)
		return nil
	},
}

func init() {
	exportCmd.Flags().StringVar(&exportSite, "site", "", "site slug to export (required)")
	_ = exportCmd.MarkFlagRequired("site")

	rootCmd.AddCommand(exportCmd)
}
