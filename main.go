// Package main is the entry point for the sqlna trace analyzer.
package main

import (
	"fmt"
	"os"

	"sqltrace.xyz/sqlna/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
