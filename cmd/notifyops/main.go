package main

import (
	"os"

	"github.com/SubarnaPy/pharmacy-final-sub001/cmd/notifyops/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
