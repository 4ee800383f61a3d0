package cmd

import (
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/hamed0406/uptimewatch/cmd/uptimectl/api"
	"github.com/hamed0406/uptimewatch/cmd/uptimectl/style"
	"github.com/hamed0406/uptimewatch/internal/domain"
)

var (
	ownerFlag    string
	nameFlag     string
	freqFlag     int
	inactiveFlag bool
)

func init() {
	monitorsCmd.Flags().StringVar(&ownerFlag, "owner", "", "only this owner's monitors (includes inactive)")

	putCmd.Flags().StringVar(&ownerFlag, "owner", "", "owner id")
	putCmd.Flags().StringVar(&nameFlag, "name", "", "display name")
	putCmd.Flags().IntVar(&freqFlag, "every", 60, "check frequency in seconds")
	putCmd.Flags().BoolVar(&inactiveFlag, "inactive", false, "save without scheduling")

	rootCmd.AddCommand(monitorsCmd, putCmd, activateCmd, deactivateCmd, deleteCmd)
}

var monitorsCmd = &cobra.Command{
	Use:     "monitors",
	Aliases: []string{"ls"},
	Short:   "List monitors",
	RunE: func(cmd *cobra.Command, args []string) error {
		ms, err := client.ListMonitors(ownerFlag)
		if err != nil {
			return fmt.Errorf("failed to list monitors: %w", err)
		}
		if len(ms) == 0 {
			fmt.Println(style.DimText.Render("no monitors"))
			return nil
		}
		printMonitors(ms)
		return nil
	},
}

var putCmd = &cobra.Command{
	Use:   "put <id> <url>",
	Short: "Create or update a monitor",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		active := !inactiveFlag
		m, err := client.PutMonitor(args[0], api.MonitorInput{
			OwnerID:          ownerFlag,
			Name:             nameFlag,
			URL:              args[1],
			FrequencySeconds: freqFlag,
			IsActive:         &active,
		})
		if err != nil {
			return fmt.Errorf("failed to save monitor: %w", err)
		}
		fmt.Println(style.SuccessBox.Render("saved " + m.ID))
		printMonitors([]domain.Monitor{*m})
		return nil
	},
}

var activateCmd = &cobra.Command{
	Use:   "activate <id>",
	Short: "Resume checking a monitor",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return setActive(args[0], true)
	},
}

var deactivateCmd = &cobra.Command{
	Use:   "deactivate <id>",
	Short: "Stop checking a monitor, keeping its history",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return setActive(args[0], false)
	},
}

var deleteCmd = &cobra.Command{
	Use:   "delete <id>",
	Short: "Delete a monitor and its check history",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := client.DeleteMonitor(args[0]); err != nil {
			return fmt.Errorf("failed to delete monitor: %w", err)
		}
		fmt.Println(style.SuccessBox.Render("deleted " + args[0]))
		return nil
	},
}

func setActive(id string, active bool) error {
	m, err := client.SetActive(id, active)
	if err != nil {
		return err
	}
	printMonitors([]domain.Monitor{*m})
	return nil
}

func printMonitors(ms []domain.Monitor) {
	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "  "+
		style.TableHeader.Render("ID")+"\t"+
		style.TableHeader.Render("STATUS")+"\t"+
		style.TableHeader.Render("EVERY")+"\t"+
		style.TableHeader.Render("LAST CHECK")+"\t"+
		style.TableHeader.Render("URL"))
	for _, m := range ms {
		status := string(m.Status)
		if !m.IsActive {
			status = "PAUSED"
		}
		fmt.Fprintf(w, "  %s\t%s\t%s\t%s\t%s\n",
			m.ID, style.Status(status), m.Frequency(), style.When(m.LastCheck), m.URL)
	}
	w.Flush()
}
