// Command pump-settings reads and changes the pulse and pause durations
// stored in the pump-controller settings database.
package main

import (
	"fmt"
	"os"
)

func main() {
	if err := NewRootCommand().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "pump-settings: %v\n", err)
		os.Exit(1)
	}
}
