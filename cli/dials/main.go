package main

import (
	"fmt"
	"os"

	dialscmder "github.com/papercomputeco/dials/cmd/dials"
)

func main() {
	cmd := dialscmder.NewDialsCmd()

	cmd.PersistentFlags().BoolP("debug", "d", false, "Enable debug logging")

	err := cmd.Execute()
	if err != nil {
		fmt.Printf("Error executing root command: %v\n", err)
		os.Exit(1)
	}
}
