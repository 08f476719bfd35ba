// Command journal is the NEPSE trading journal CLI.
package main

import (
	"fmt"
	"os"
	_ "time/tzdata"

	"nepse-journal/internal/cli"
)

func main() {
	if err := cli.NewRootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
