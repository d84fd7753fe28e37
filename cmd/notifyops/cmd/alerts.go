package cmd

import (
	"fmt"
	"net/url"
	"os"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/SubarnaPy/pharmacy-final-sub001/internal/domain"
)

var alertsCmd = &cobra.Command{
	Use:   "alerts",
	Short: "Inspect and act on escalation alerts",
}

var listAlertsCmd = &cobra.Command{
	Use:   "list",
	Short: "List active alerts",
	Run: func(cmd *cobra.Command, args []string) {
		var resp struct {
			Alerts []*domain.Alert `json:"alerts"`
		}
		exitOnError(apiCall(cmd, "GET", "/api/v1/alerts", nil, &resp))

		if len(resp.Alerts) == 0 {
			fmt.Println("No active alerts.")
			return
		}
		w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
		fmt.Fprintln(w, "ID\tTYPE\tSEVERITY\tLEVEL\tOCCURRENCES\tAGE\tACKED")
		for _, a := range resp.Alerts {
			fmt.Fprintf(w, "%s\t%s\t%s\t%d\t%d\t%s\t%v\n",
				a.ID, a.Type, a.Severity, a.EscalationLevel, a.Occurrences,
				time.Since(a.CreatedAt).Round(time.Second), a.Acknowledged)
		}
		w.Flush()
	},
}

var historyAlertsCmd = &cobra.Command{
	Use:   "history",
	Short: "Show resolved alert history",
	Run: func(cmd *cobra.Command, args []string) {
		limit, _ := cmd.Flags().GetInt("limit")
		var resp struct {
			Alerts []*domain.Alert `json:"alerts"`
		}
		path := fmt.Sprintf("/api/v1/alerts/history?limit=%d", limit)
		exitOnError(apiCall(cmd, "GET", path, nil, &resp))
		printJSON(resp.Alerts)
	},
}

var ackAlertCmd = &cobra.Command{
	Use:   "ack <alert-id>",
	Short: "Acknowledge an alert and stop further escalation",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		by, _ := cmd.Flags().GetString("by")
		notes, _ := cmd.Flags().GetString("notes")
		var alert domain.Alert
		body := map[string]string{"by": by, "notes": notes}
		path := "/api/v1/alerts/" + url.PathEscape(args[0]) + "/acknowledge"
		exitOnError(apiCall(cmd, "POST", path, body, &alert))
		fmt.Printf("Acknowledged %s (%s)\n", alert.ID, alert.Type)
	},
}

var resolveAlertCmd = &cobra.Command{
	Use:   "resolve <alert-id>",
	Short: "Resolve an alert and start its cooldown",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		by, _ := cmd.Flags().GetString("by")
		notes, _ := cmd.Flags().GetString("notes")
		var alert domain.Alert
		body := map[string]string{"by": by, "notes": notes}
		path := "/api/v1/alerts/" + url.PathEscape(args[0]) + "/resolve"
		exitOnError(apiCall(cmd, "POST", path, body, &alert))
		fmt.Printf("Resolved %s (%s)\n", alert.ID, alert.Type)
	},
}

var alertStatsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show alert engine statistics",
	Run: func(cmd *cobra.Command, args []string) {
		var stats map[string]any
		exitOnError(apiCall(cmd, "GET", "/api/v1/alerts/stats", nil, &stats))
		printJSON(stats)
	},
}

func init() {
	rootCmd.AddCommand(alertsCmd)
	alertsCmd.AddCommand(listAlertsCmd, historyAlertsCmd, ackAlertCmd, resolveAlertCmd, alertStatsCmd)

	historyAlertsCmd.Flags().Int("limit", 50, "maximum entries to return")
	for _, c := range []*cobra.Command{ackAlertCmd, resolveAlertCmd} {
		c.Flags().String("by", os.Getenv("USER"), "operator name")
		c.Flags().String("notes", "", "free-form notes")
	}
}
