package main

import (
	"os"

	_ "time/tzdata"

	"option-desk-go/cmd/desk/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
