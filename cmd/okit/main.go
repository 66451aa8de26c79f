package main

import (
	"errors"
	"os"

	"github.com/okit-dev/okit/cli"
	_ "github.com/okit-dev/okit/tools"
)

// Set via ldflags at build time.
var version = "dev"

func main() {
	root := cli.NewRootCmd(cli.Options{Version: version})
	if err := root.Execute(); err != nil {
		var exitErr *cli.ExitError
		if errors.As(err, &exitErr) {
			os.Exit(exitErr.Code)
		}
		os.Exit(cli.ExitFailure)
	}
}
