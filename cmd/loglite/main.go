// Command loglite runs the log collection and query service.
package main

import (
	"context"
	"os"

	"github.com/Dicklesworthstone/loglite/internal/cli"
	"github.com/Dicklesworthstone/loglite/internal/logging"
)

func main() {
	root := cli.NewRoot()
	if err := root.ExecuteContext(context.Background()); err != nil {
		logging.Default.Error("loglite exited with error", "err", err)
		os.Exit(1)
	}
}
