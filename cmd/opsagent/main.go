package main

import (
	"os"

	"github.com/wicaksono/opsagent/internal/cli"
)

func main() {
	if err := cli.Execute(); err != nil {
		os.Exit(1)
	}
}
