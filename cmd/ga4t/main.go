package main

import (
	"os"

	"github.com/webextended/ga4-tracking/internal/cli"
)

func main() {
	if err := cli.Execute(); err != nil {
		os.Exit(1)
	}
}
