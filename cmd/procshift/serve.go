package main

import (
	"context"

	cli "github.com/urfave/cli/v3"

	"github.com/dukex/procshift/pkg/log"
)

func ServeCommand() *cli.Command {
	return &cli.Command{
		Name:    "serve",
		Aliases: []string{"s"},
		Usage:   "Start the HTTP API",
		Flags: append([]cli.Flag{
			&cli.IntFlag{
				Name:    "port",
				Aliases: []string{"p"},
				Usage:   "Port to run the API server on",
				Value:   defaultPort,
				Sources: cli.EnvVars("PORT"),
			},
		}, commonFlags()...),
		Action: func(ctx context.Context, command *cli.Command) error {
			log.Setup(command.String("log-level"))

			logger := log.WithModule("api")

			logger.InfoContext(ctx, "Initializing procshift API")

			c, err := newComponents(ctx, logger, command)
			if err != nil {
				return err
			}

			defer func() {
				if err := c.Close(ctx); err != nil {
					logger.ErrorContext(ctx, "Failed to close resources", "error", err)
				}
			}()

			api := NewAPI(logger, c.registry, c.migrationService(), c.instancesService())

			return api.Start(command.Int("port"))
		},
	}
}
