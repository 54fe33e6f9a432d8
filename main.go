package main

import (
	"fmt"
	"os"

	_ "time/tzdata" // reference zones resolve without a host zoneinfo

	"github.com/jonesrussell/north-cloud/listings/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
