package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strconv"

	"github.com/charmbracelet/huh"
	"github.com/spf13/cobra"

	"github.com/tourplanner/tp/internal/planner"
	"github.com/tourplanner/tp/internal/routesync"
	"github.com/tourplanner/tp/internal/schema"
	"github.com/tourplanner/tp/internal/ui"
)

var tourCmd = &cobra.Command{
	Use:     "tour",
	GroupID: "tours",
	Short:   "Create, list, edit and delete tours",
}

var tourCreateCmd = &cobra.Command{
	Use:   "create",
	Short: "Create a new empty tour",
	Long: `Create a tour named "New Tour N" with no start or destination.

Use 'tp tour edit' to fill it in; the route is looked up once both ends
are set.

With --file the tour (and any logs it carries) is read from a single JSON
document instead, and its route is looked up right away.`,
	Args: cobra.NoArgs,
	Run: func(cmd *cobra.Command, args []string) {
		ctx, cancel := signalContext()
		defer cancel()

		file, _ := cmd.Flags().GetString("file")
		if file != "" {
			tour, err := schema.ReadTourFile(file)
			if err != nil {
				fatalf("%v", err)
			}

			a := mustOpenApp()
			defer a.Close()

			res, err := a.planner.ImportTours(ctx, []*schema.Tour{tour}, true)
			if err != nil {
				fatalf("%v", err)
			}
			fmt.Printf("%s Created tour %d: %s\n", ui.RenderPass("✓"), tour.ID, tour.Name)
			if res.Synced == 0 && tour.IsRoutable() && !tour.IsSynced() {
				fmt.Println(ui.RenderWarn("Route not available yet; retry with 'tp tour refresh'"))
			}
			return
		}

		a := mustOpenApp()
		defer a.Close()

		tour, err := a.planner.CreateTour(ctx)
		if err != nil {
			fatalf("%v", err)
		}
		fmt.Printf("%s Created tour %d: %s\n", ui.RenderPass("✓"), tour.ID, tour.Name)
	},
}

var tourListCmd = &cobra.Command{
	Use:   "list",
	Short: "List all tours",
	Args:  cobra.NoArgs,
	Run: func(cmd *cobra.Command, args []string) {
		ctx, cancel := signalContext()
		defer cancel()

		a := mustOpenApp()
		defer a.Close()

		tours, err := a.planner.ListTours(ctx)
		if err != nil {
			fatalf("%v", err)
		}
		printTours(tours)
	},
}

var tourShowCmd = &cobra.Command{
	Use:   "show <tour-id>",
	Short: "Show a tour with its logs",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		ctx, cancel := signalContext()
		defer cancel()

		a := mustOpenApp()
		defer a.Close()

		tour, err := a.planner.GetTour(ctx, parseID(args[0], "tour"))
		if err != nil {
			fatalf("%v", err)
		}

		fmt.Println(ui.KeyValues([][2]string{
			{"ID", strconv.FormatInt(tour.ID, 10)},
			{"Name", tour.Name},
			{"From", orDash(tour.From)},
			{"To", orDash(tour.To)},
			{"Transport", orDash(tour.TransportType)},
			{"Description", orDash(tour.Description)},
			{"Distance", formatDistance(tour)},
			{"Est. time", formatDuration(tour)},
		}))
		if len(tour.Logs) > 0 {
			fmt.Println()
			printLogs(tour.Logs)
		}
	},
}

var tourEditCmd = &cobra.Command{
	Use:   "edit <tour-id>",
	Short: "Edit a tour and update its route",
	Long: `Edit the fields of a tour.

Only the flags you pass are changed. With --interactive a form is shown
instead. When the start, destination or transport type changes, the route
is looked up before the command returns. A failed lookup keeps your edit
and the previous route.

Examples:
  tp tour edit 3 --from "Vienna" --to "Graz" --transport biking
  tp tour edit 3 --description "Along the Mur"
  tp tour edit 3 -i`,
	Args: cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		ctx, cancel := signalContext()
		defer cancel()

		a := mustOpenApp()
		defer a.Close()

		id := parseID(args[0], "tour")
		interactive, _ := cmd.Flags().GetBool("interactive")

		var update planner.TourUpdate
		if interactive {
			update = editInteractively(ctx, a, id)
		} else {
			update = tourUpdateFromFlags(cmd)
		}
		if update.Empty() {
			fatalf("nothing to change (pass --name, --from, --to, --transport, --description or -i)")
		}

		p, err := a.planner.UpdateTour(ctx, id, update)
		if err != nil {
			fatalf("%v", err)
		}
		if update.From != nil || update.To != nil || update.TransportType != nil {
			warnNoAPIKey()
		}
		reportOutcome(p)
	},
}

var tourRefreshCmd = &cobra.Command{
	Use:   "refresh <tour-id>",
	Short: "Look up a tour's route again",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		ctx, cancel := signalContext()
		defer cancel()

		a := mustOpenApp()
		defer a.Close()

		warnNoAPIKey()
		p, err := a.planner.RefreshTour(ctx, parseID(args[0], "tour"))
		if err != nil {
			fatalf("%v", err)
		}
		reportOutcome(p)
	},
}

var tourDeleteCmd = &cobra.Command{
	Use:   "delete <tour-id>",
	Short: "Delete a tour and its logs",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		ctx, cancel := signalContext()
		defer cancel()

		a := mustOpenApp()
		defer a.Close()

		id := parseID(args[0], "tour")
		yes, _ := cmd.Flags().GetBool("yes")
		if !yes && ui.IsInteractive() {
			tour, err := a.planner.GetTour(ctx, id)
			if err != nil {
				fatalf("%v", err)
			}
			confirmed := false
			err = huh.NewConfirm().
				Title(fmt.Sprintf("Delete %q and its %d logs?", tour.Name, len(tour.Logs))).
				Value(&confirmed).
				Run()
			if err != nil || !confirmed {
				fmt.Println("Aborted.")
				return
			}
		}

		if err := a.planner.DeleteTour(ctx, id); err != nil {
			fatalf("%v", err)
		}
		fmt.Printf("%s Deleted tour %d\n", ui.RenderPass("✓"), id)
	},
}

func init() {
	tourCreateCmd.Flags().StringP("file", "f", "", "Read the tour from a JSON file")

	tourEditCmd.Flags().String("name", "", "Tour name")
	tourEditCmd.Flags().String("from", "", "Start location")
	tourEditCmd.Flags().String("to", "", "Destination")
	tourEditCmd.Flags().String("transport", "", "Transport type (walking, running, biking, hiking, car)")
	tourEditCmd.Flags().String("description", "", "Description")
	tourEditCmd.Flags().BoolP("interactive", "i", false, "Edit in a form")

	tourDeleteCmd.Flags().BoolP("yes", "y", false, "Do not ask for confirmation")

	tourCmd.AddCommand(tourCreateCmd, tourListCmd, tourShowCmd, tourEditCmd, tourRefreshCmd, tourDeleteCmd)
	rootCmd.AddCommand(tourCmd)
}

func tourUpdateFromFlags(cmd *cobra.Command) planner.TourUpdate {
	var u planner.TourUpdate
	set := func(flag string, dst **string) {
		if cmd.Flags().Changed(flag) {
			s, _ := cmd.Flags().GetString(flag)
			*dst = &s
		}
	}
	set("name", &u.Name)
	set("from", &u.From)
	set("to", &u.To)
	set("transport", &u.TransportType)
	set("description", &u.Description)
	return u
}

func editInteractively(ctx context.Context, a *app, id int64) planner.TourUpdate {
	if !ui.IsInteractive() {
		fatalf("--interactive needs a terminal")
	}
	tour, err := a.planner.GetTour(ctx, id)
	if err != nil {
		fatalf("%v", err)
	}
	f := ui.TourFields{
		Name:          tour.Name,
		From:          tour.From,
		To:            tour.To,
		TransportType: tour.TransportType,
		Description:   tour.Description,
	}
	if err := ui.EditTourForm(&f, schema.TransportTypes, schema.MaxTourNameLen, schema.MaxTourDescriptionLen); err != nil {
		if errors.Is(err, ui.ErrAborted) {
			fmt.Println("Aborted.")
			os.Exit(0)
		}
		fatalf("%v", err)
	}
	return planner.TourUpdate{
		Name:          &f.Name,
		From:          &f.From,
		To:            &f.To,
		TransportType: &f.TransportType,
		Description:   &f.Description,
	}
}

// reportOutcome waits for a save and prints what happened to the route.
// The wait is not bounded by the signal context: an interrupted lookup
// still saves the edit.
func reportOutcome(p *routesync.Pending) {
	o, err := p.Wait(context.Background())
	if err != nil {
		fatalf("%v", err)
	}

	name := fmt.Sprintf("tour %d", o.TourID)
	if o.Tour != nil {
		name = fmt.Sprintf("%q", o.Tour.Name)
	}
	switch o.Status {
	case routesync.StatusSynced:
		fmt.Printf("%s Saved %s, route %s, %s\n", ui.RenderPass("✓"), name,
			formatDistance(o.Tour), formatDuration(o.Tour))
	case routesync.StatusFailed:
		fmt.Printf("%s Saved %s\n", ui.RenderPass("✓"), name)
		fmt.Fprintf(os.Stderr, "%s route lookup failed: %v\n", ui.RenderFail("✗"), o.Err)
		fmt.Fprintln(os.Stderr, ui.RenderMuted("  The previous route was kept. Run 'tp tour refresh' to try again."))
	default:
		fmt.Printf("%s Saved %s %s\n", ui.RenderPass("✓"), name, ui.RenderMuted("("+o.Reason+")"))
	}
}
