package main

import (
	"os"

	"github.com/adamwoolhether/koatap/internal/cli"
)

func main() {
	os.Exit(cli.Execute())
}
