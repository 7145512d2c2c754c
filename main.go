package main

import (
	"os"

	"github.com/mijorus/collector/cli"
)

func main() {
	os.Exit(cli.Execute())
}
