// Package main provides the procshift command: an HTTP API for migrating
// running process instances between definition versions, and offline plan
// validation and execution commands.
package main

import (
	"context"
	"fmt"
	"os"

	cli "github.com/urfave/cli/v3"
)

const defaultPort = 9091

func main() {
	cmd := &cli.Command{
		Name:                  "procshift",
		Usage:                 "Migrate running process instances between process definition versions",
		EnableShellCompletion: true,
		Commands: []*cli.Command{
			ServeCommand(),
			PlanCommand(),
		},
	}

	if err := cmd.Run(context.Background(), os.Args); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
