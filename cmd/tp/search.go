package main

import (
	"errors"
	"strings"

	"github.com/spf13/cobra"

	"github.com/tourplanner/tp/internal/search"
)

var searchCmd = &cobra.Command{
	Use:     "search [text...]",
	GroupID: "tours",
	Short:   "Find tours by text",
	Long: `Find tours whose fields, or whose logs, contain the given text.
Matching ignores case. Without text every tour is listed.

Scopes:
  all   - tours matching by their own fields or by a log (default)
  tours - tours matching by name, locations, transport type or description
  logs  - tours with a log whose comment or difficulty matches`,
	Run: func(cmd *cobra.Command, args []string) {
		ctx, cancel := signalContext()
		defer cancel()

		rawScope, _ := cmd.Flags().GetString("scope")
		scope, err := search.ParseScope(rawScope)
		if err != nil {
			fatalf("%v", err)
		}

		a := mustOpenApp()
		defer a.Close()

		tours, err := a.planner.Search(ctx, strings.Join(args, " "), scope)
		if err != nil {
			if errors.Is(err, search.ErrUnknownScope) {
				fatalf("%v", err)
			}
			fatalf("search failed: %v", err)
		}
		printTours(tours)
	},
}

func init() {
	searchCmd.Flags().StringP("scope", "s", "all", "Search scope: all, tours or logs")
	rootCmd.AddCommand(searchCmd)
}
