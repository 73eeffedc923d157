package main

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/tourplanner/tp/internal/planner"
	"github.com/tourplanner/tp/internal/schema"
	"github.com/tourplanner/tp/internal/ui"
)

var logCmd = &cobra.Command{
	Use:     "log",
	GroupID: "logs",
	Short:   "Record how a tour went",
}

var logAddCmd = &cobra.Command{
	Use:   "add <tour-id>",
	Short: "Add a log to a tour",
	Long: `Add a log entry to a tour.

--when accepts dates like "2024-05-01 08:30", "01.05.2024" or natural
language such as "yesterday 9am" and "last saturday". It defaults to now.

Example:
  tp log add 3 --when "yesterday 7am" --rating 4 --distance 42.5 --time 180 \
    --difficulty moderate --comment "Headwind after Melk"`,
	Args: cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		ctx, cancel := signalContext()
		defer cancel()

		whenText, _ := cmd.Flags().GetString("when")
		at, err := parseWhen(whenText, time.Now())
		if err != nil {
			fatalf("%v", err)
		}

		l := &schema.TourLog{
			TourID:   parseID(args[0], "tour"),
			DateTime: at,
		}
		l.Comment, _ = cmd.Flags().GetString("comment")
		l.Difficulty, _ = cmd.Flags().GetString("difficulty")
		l.TotalDistanceKm, _ = cmd.Flags().GetFloat64("distance")
		l.TotalTimeMinutes, _ = cmd.Flags().GetInt("time")
		l.Rating, _ = cmd.Flags().GetInt("rating")

		a := mustOpenApp()
		defer a.Close()

		if err := a.planner.AddLog(ctx, l); err != nil {
			fatalf("%v", err)
		}
		fmt.Printf("%s Added log %d to tour %d\n", ui.RenderPass("✓"), l.ID, l.TourID)
	},
}

var logListCmd = &cobra.Command{
	Use:   "list <tour-id>",
	Short: "List the logs of a tour",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		ctx, cancel := signalContext()
		defer cancel()

		a := mustOpenApp()
		defer a.Close()

		logs, err := a.planner.Logs(ctx, parseID(args[0], "tour"))
		if err != nil {
			fatalf("%v", err)
		}
		printLogs(logs)
	},
}

var logEditCmd = &cobra.Command{
	Use:   "edit <log-id>",
	Short: "Change fields of a log",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		ctx, cancel := signalContext()
		defer cancel()

		var u planner.LogUpdate
		flags := cmd.Flags()
		if flags.Changed("comment") {
			s, _ := flags.GetString("comment")
			u.Comment = &s
		}
		if flags.Changed("difficulty") {
			s, _ := flags.GetString("difficulty")
			u.Difficulty = &s
		}
		if flags.Changed("distance") {
			f, _ := flags.GetFloat64("distance")
			u.TotalDistanceKm = &f
		}
		if flags.Changed("time") {
			n, _ := flags.GetInt("time")
			u.TotalTimeMinutes = &n
		}
		if flags.Changed("rating") {
			n, _ := flags.GetInt("rating")
			u.Rating = &n
		}

		a := mustOpenApp()
		defer a.Close()

		l, err := a.planner.UpdateLog(ctx, parseID(args[0], "log"), u)
		if err != nil {
			fatalf("%v", err)
		}
		fmt.Printf("%s Updated log %d\n", ui.RenderPass("✓"), l.ID)
	},
}

var logDeleteCmd = &cobra.Command{
	Use:   "delete <log-id>",
	Short: "Delete a log",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		ctx, cancel := signalContext()
		defer cancel()

		a := mustOpenApp()
		defer a.Close()

		id := parseID(args[0], "log")
		if err := a.planner.DeleteLog(ctx, id); err != nil {
			fatalf("%v", err)
		}
		fmt.Printf("%s Deleted log %d\n", ui.RenderPass("✓"), id)
	},
}

var logSearchCmd = &cobra.Command{
	Use:   "search <text>",
	Short: "Find logs whose comment or difficulty contains text",
	Args:  cobra.MinimumNArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		ctx, cancel := signalContext()
		defer cancel()

		a := mustOpenApp()
		defer a.Close()

		logs, err := a.planner.SearchLogs(ctx, strings.Join(args, " "))
		if err != nil {
			fatalf("%v", err)
		}
		printLogs(logs)
	},
}

func init() {
	for _, c := range []*cobra.Command{logAddCmd, logEditCmd} {
		c.Flags().String("comment", "", "Comment")
		c.Flags().String("difficulty", "", "Difficulty, e.g. easy, moderate, hard")
		c.Flags().Float64("distance", 0, "Distance actually covered in km")
		c.Flags().Int("time", 0, "Time actually taken in minutes")
		c.Flags().Int("rating", 3, "Rating from 1 to 5")
	}
	logAddCmd.Flags().String("when", "", "Date and time of the tour (default: now)")

	logCmd.AddCommand(logAddCmd, logListCmd, logEditCmd, logDeleteCmd, logSearchCmd)
	rootCmd.AddCommand(logCmd)
}
