package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/hamed0406/uptimewatch/cmd/uptimectl/style"
)

func init() {
	rootCmd.AddCommand(statsCmd)
	rootCmd.AddCommand(flushCmd)
}

var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show scheduler statistics",
	RunE: func(cmd *cobra.Command, args []string) error {
		s, err := client.Stats()
		if err != nil {
			return fmt.Errorf("failed to fetch stats: %w", err)
		}

		fmt.Println(style.Title.Render("scheduler"))
		state := style.Up.Render("running")
		if !s.Running {
			state = style.Down.Render("stopped")
		}
		fmt.Printf("  %s %s\n", style.Key.Render("state"), state)
		fmt.Printf("  %s %d\n", style.Key.Render("monitors"), s.ActiveMonitors)
		fmt.Printf("  %s %d in flight, %d queued\n", style.Key.Render("checks"), s.InFlight, s.Queued)
		fmt.Printf("  %s %d (last %.1fms)\n", style.Key.Render("ticks"), s.TicksSinceStart, s.LastTickDurationMS)
		fmt.Printf("  %s %d dispatched, %d deferred\n", style.Key.Render("totals"), s.Dispatched, s.Deferred)
		return nil
	},
}

var flushCmd = &cobra.Command{
	Use:   "flush",
	Short: "Check every due monitor now",
	RunE: func(cmd *cobra.Command, args []string) error {
		ids, err := client.Flush()
		if err != nil {
			return fmt.Errorf("flush failed: %w", err)
		}
		if len(ids) == 0 {
			fmt.Println(style.DimText.Render("nothing due"))
			return nil
		}
		fmt.Println(style.SuccessBox.Render(fmt.Sprintf("dispatched %d check(s)", len(ids))))
		for _, id := range ids {
			fmt.Println("  " + id)
		}
		return nil
	},
}
