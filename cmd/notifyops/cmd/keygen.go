package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/SubarnaPy/pharmacy-final-sub001/internal/security"
)

var keygenCmd = &cobra.Command{
	Use:   "keygen",
	Short: "Generate an API key and its hash for the server config",
	Run: func(cmd *cobra.Command, args []string) {
		key, err := security.GenerateKey()
		exitOnError(err)
		fmt.Printf("key:  %s\nhash: %s\n", key, security.HashKey(key))
	},
}

func init() {
	rootCmd.AddCommand(keygenCmd)
}
