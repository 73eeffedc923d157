package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/tourplanner/tp/internal/transfer"
	"github.com/tourplanner/tp/internal/ui"
)

var exportCmd = &cobra.Command{
	Use:     "export <file>",
	GroupID: "data",
	Short:   "Export all tours with their logs",
	Long: `Write every tour with its logs to a file. The format follows the file
extension (.json, .yaml, .yml, .jsonl) unless --format is given. JSON Lines
files hold one tour per line.`,
	Args: cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		ctx, cancel := signalContext()
		defer cancel()

		format := formatFlag(cmd, args[0])

		a := mustOpenApp()
		defer a.Close()

		tours, err := a.planner.ExportTours(ctx)
		if err != nil {
			fatalf("%v", err)
		}
		doc, err := transfer.ExportFile(args[0], tours, format)
		if err != nil {
			fatalf("%v", err)
		}
		fmt.Printf("%s Exported %d tours to %s %s\n", ui.RenderPass("✓"), len(doc.Tours), args[0],
			ui.RenderMuted("("+doc.FormatVersion+")"))
	},
}

var importCmd = &cobra.Command{
	Use:     "import <file>",
	GroupID: "data",
	Short:   "Import tours from an export file",
	Long: `Import tours and their logs as new tours. Ids in the file are ignored.
Routes missing from the file are looked up unless --no-sync is given.
Nothing is imported if any tour in the file is invalid.`,
	Args: cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		ctx, cancel := signalContext()
		defer cancel()

		format := formatFlag(cmd, args[0])
		noSync, _ := cmd.Flags().GetBool("no-sync")

		tours, err := transfer.ImportFile(args[0], format)
		if err != nil {
			fatalf("%v", err)
		}
		if len(tours) == 0 {
			fmt.Println(ui.RenderMuted("Nothing to import."))
			return
		}
		if !noSync {
			warnNoAPIKey()
		}

		a := mustOpenApp()
		defer a.Close()

		res, err := a.planner.ImportTours(ctx, tours, !noSync)
		if err != nil {
			fatalf("%v", err)
		}
		fmt.Printf("%s Imported %d tours", ui.RenderPass("✓"), res.Imported)
		if !noSync {
			fmt.Printf(" (%d routes looked up)", res.Synced)
		}
		fmt.Println()
	},
}

func formatFlag(cmd *cobra.Command, path string) transfer.Format {
	raw, _ := cmd.Flags().GetString("format")
	if raw == "" {
		return transfer.FormatFromPath(path)
	}
	f, err := transfer.ParseFormat(raw)
	if err != nil {
		fatalf("%v", err)
	}
	return f
}

func init() {
	exportCmd.Flags().String("format", "", "File format: json, yaml or jsonl (default: by extension)")
	importCmd.Flags().String("format", "", "File format: json, yaml or jsonl (default: by extension)")
	importCmd.Flags().Bool("no-sync", false, "Do not look up missing routes")

	rootCmd.AddCommand(exportCmd, importCmd)
}
