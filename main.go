package main

import (
	"os"

	"github.com/gridtwin/gridtwin/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
