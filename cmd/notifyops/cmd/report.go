package cmd

import (
	"fmt"
	"net/url"
	"os"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/SubarnaPy/pharmacy-final-sub001/internal/store"
)

var reportCmd = &cobra.Command{
	Use:   "report",
	Short: "Pull a delivery report",
	Run: func(cmd *cobra.Command, args []string) {
		hours, _ := cmd.Flags().GetInt("hours")
		to := time.Now().UTC()
		from := to.Add(-time.Duration(hours) * time.Hour)

		var resp struct {
			Window *store.WindowStats `json:"window"`
			Trend  []store.TrendPoint `json:"trend"`
		}
		path := fmt.Sprintf("/api/v1/reports/delivery?from=%s&to=%s",
			url.QueryEscape(from.Format(time.RFC3339)),
			url.QueryEscape(to.Format(time.RFC3339)))
		exitOnError(apiCall(cmd, "GET", path, nil, &resp))

		w := resp.Window
		fmt.Printf("Delivery report %s to %s\n\n", from.Format(time.RFC3339), to.Format(time.RFC3339))
		fmt.Printf("  Sent:          %d\n", w.Overall.Sent)
		fmt.Printf("  Delivered:     %d (%.1f%%)\n", w.Overall.Delivered, w.Overall.DeliveryRate()*100)
		fmt.Printf("  Failed:        %d (%.1f%%)\n", w.Overall.Failed, w.Overall.FailureRate()*100)
		fmt.Printf("  Avg latency:   %.0fms\n\n", w.Overall.AvgLatencyMs())

		if len(w.PerChannel) > 0 {
			tw := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "CHANNEL\tSENT\tDELIVERED\tFAILED\tRATE")
			for ch, cs := range w.PerChannel {
				fmt.Fprintf(tw, "%s\t%d\t%d\t%d\t%.1f%%\n", ch, cs.Sent, cs.Delivered, cs.Failed, cs.DeliveryRate()*100)
			}
			tw.Flush()
		}

		if trend, _ := cmd.Flags().GetBool("trend"); trend && len(resp.Trend) > 0 {
			fmt.Println()
			tw := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "HOUR\tSENT\tDELIVERED\tFAILED")
			for _, p := range resp.Trend {
				fmt.Fprintf(tw, "%s\t%d\t%d\t%d\n", p.Bucket.Format("2006-01-02 15:00"), p.Sent, p.Delivered, p.Failed)
			}
			tw.Flush()
		}
	},
}

func init() {
	rootCmd.AddCommand(reportCmd)
	reportCmd.Flags().Int("hours", 24, "trailing window in hours")
	reportCmd.Flags().Bool("trend", false, "include the hourly breakdown")
}
