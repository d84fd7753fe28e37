package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show delivery monitor status",
	Run: func(cmd *cobra.Command, args []string) {
		var status map[string]any
		exitOnError(apiCall(cmd, "GET", "/api/v1/monitoring/status", nil, &status))
		printJSON(status)
	},
}

var thresholdsCmd = &cobra.Command{
	Use:   "thresholds",
	Short: "Show monitor thresholds",
	Run: func(cmd *cobra.Command, args []string) {
		var th map[string]any
		exitOnError(apiCall(cmd, "GET", "/api/v1/monitoring/thresholds", nil, &th))
		printJSON(th)
	},
}

var rulesCmd = &cobra.Command{
	Use:   "rules",
	Short: "Show escalation rules",
	Run: func(cmd *cobra.Command, args []string) {
		var rules map[string]any
		exitOnError(apiCall(cmd, "GET", "/api/v1/escalation/rules", nil, &rules))
		printJSON(rules)
	},
}

var healthCmd = &cobra.Command{
	Use:   "health",
	Short: "Check that the service is up",
	Run: func(cmd *cobra.Command, args []string) {
		exitOnError(apiCall(cmd, "GET", "/healthz", nil, nil))
		fmt.Println("ok")
	},
}

func init() {
	rootCmd.AddCommand(statusCmd, thresholdsCmd, rulesCmd, healthCmd)
}
