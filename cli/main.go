package main

import (
	"os"

	"github.com/lottoworks/drawstack/cli/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
