package main

import (
	"os"

	"github.com/maruyamamtk/keiba-prediction/internal/cli"
)

func main() {
	os.Exit(cli.Execute())
}
