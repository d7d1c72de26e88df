package main

import (
	"os"

	"github.com/supaquiz/server/internal/cli"
)

func main() {
	if err := cli.Execute(); err != nil {
		os.Exit(1)
	}
}
