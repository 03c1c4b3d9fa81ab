package main

import (
	"os"

	"github.com/labdigest/labdigest/internal/cli"
)

func main() {
	os.Exit(cli.Execute())
}
