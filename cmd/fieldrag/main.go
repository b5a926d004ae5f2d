// Package main provides the entry point for the fieldrag CLI.
package main

import (
	"os"

	"github.com/Aman-CERP/fieldrag/cmd/fieldrag/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
