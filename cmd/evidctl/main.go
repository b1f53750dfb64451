package main

import (
	"os"

	"github.com/evidlab-io/evidctl/internal/cli"
)

func main() {
	if err := cli.Execute(); err != nil {
		os.Exit(1)
	}
}
