// Package main is the entry point for the retroscale application.
package main

import (
	"os"

	"github.com/retroscale/retroscale/cmd/retroscale/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
