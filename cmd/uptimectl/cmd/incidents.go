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
	filter      api.IncidentFilter
	monitorFlag string
)

func init() {
	incidentsCmd.Flags().StringVar(&monitorFlag, "monitor", "", "show a single monitor's incidents instead of an owner's")
	incidentsCmd.Flags().StringVarP(&filter.Text, "query", "q", "", "match name, url or error text")
	incidentsCmd.Flags().StringVar(&filter.Status, "status", "", "ONGOING or RESOLVED")
	incidentsCmd.Flags().StringVar(&filter.Sort, "sort", "recent", "recent, duration, monitor or checks")
	incidentsCmd.Flags().StringVar(&filter.Order, "order", "desc", "asc or desc")

	rootCmd.AddCommand(incidentsCmd, summaryCmd)
}

var incidentsCmd = &cobra.Command{
	Use:   "incidents [owner]",
	Short: "List incidents derived from check history",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		var (
			incs []domain.Incident
			err  error
		)
		switch {
		case monitorFlag != "":
			incs, err = client.MonitorIncidents(monitorFlag)
		case len(args) == 1:
			incs, err = client.UserIncidents(args[0], filter)
		default:
			return fmt.Errorf("pass an owner id or --monitor")
		}
		if err != nil {
			return fmt.Errorf("failed to fetch incidents: %w", err)
		}
		if len(incs) == 0 {
			fmt.Println(style.Up.Render("no incidents"))
			return nil
		}

		w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
		fmt.Fprintln(w, "  "+
			style.TableHeader.Render("MONITOR")+"\t"+
			style.TableHeader.Render("STATUS")+"\t"+
			style.TableHeader.Render("STARTED")+"\t"+
			style.TableHeader.Render("DURATION")+"\t"+
			style.TableHeader.Render("CHECKS")+"\t"+
			style.TableHeader.Render("LAST ERROR"))
		for _, inc := range incs {
			name := inc.MonitorName
			if name == "" {
				name = inc.MonitorID
			}
			start := inc.StartTime
			fmt.Fprintf(w, "  %s\t%s\t%s\t%s\t%d\t%s\n",
				name, style.Status(string(inc.Status)), style.When(&start),
				style.Duration(inc.DurationMS), inc.AffectedChecks, inc.LastError)
		}
		w.Flush()
		return nil
	},
}

var summaryCmd = &cobra.Command{
	Use:   "summary <owner>",
	Short: "Summarize an owner's incidents per monitor",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		s, err := client.UserSummary(args[0])
		if err != nil {
			return fmt.Errorf("failed to fetch summary: %w", err)
		}

		fmt.Println(style.Title.Render("incidents for " + s.OwnerID))
		fmt.Printf("  %s %d\n", style.Key.Render("monitors"), s.Monitors)
		fmt.Printf("  %s %d (%d ongoing)\n", style.Key.Render("incidents"), s.Incidents, s.Ongoing)
		fmt.Printf("  %s %s\n", style.Key.Render("downtime"), style.Duration(s.TotalDowntimeMS))
		if s.HasOngoing {
			fmt.Println(style.Warning.Render("  at least one monitor is down right now"))
		}
		fmt.Println()

		w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
		fmt.Fprintln(w, "  "+
			style.TableHeader.Render("MONITOR")+"\t"+
			style.TableHeader.Render("STATUS")+"\t"+
			style.TableHeader.Render("INCIDENTS")+"\t"+
			style.TableHeader.Render("DOWNTIME")+"\t"+
			style.TableHeader.Render("LAST INCIDENT"))
		for _, m := range s.ByMonitor {
			name := m.MonitorName
			if name == "" {
				name = m.MonitorID
			}
			fmt.Fprintf(w, "  %s\t%s\t%d\t%s\t%s\n",
				name, style.Status(m.Status), m.Incidents, style.Duration(m.TotalDowntimeMS), style.When(m.LastIncidentAt))
		}
		w.Flush()
		return nil
	},
}
