package main

import (
	"os"

	"github.com/dukerupert/niramay/internal/cli"
)

func main() {
	os.Exit(cli.GetExitCode(cli.NewRootCommand().Execute()))
}
