package main

import (
	"os"

	"chemviz/internal/cli"
)

func main() {
	os.Exit(cli.Run())
}
