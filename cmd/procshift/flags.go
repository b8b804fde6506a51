package main

import (
	cli "github.com/urfave/cli/v3"

	"github.com/dukex/procshift/pkg/migration"
)

func commonFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:    "database-url",
			Usage:   "Persistence URL: memory://, file://<dir>, bolt://<file> or postgres://...",
			Value:   "memory://",
			Sources: cli.EnvVars("DATABASE_URL"),
		},
		&cli.StringFlag{
			Name:    "definitions-path",
			Usage:   "Directory containing process definition documents (.yaml, .yml, .json)",
			Sources: cli.EnvVars("DEFINITIONS_PATH"),
		},
		&cli.StringFlag{
			Name:    "lock-provider",
			Usage:   "Instance lock provider (local, redis)",
			Value:   "local",
			Sources: cli.EnvVars("LOCK_PROVIDER"),
		},
		&cli.StringFlag{
			Name:    "redis-url",
			Usage:   "Redis URL for the redis lock provider",
			Sources: cli.EnvVars("REDIS_URL"),
		},
		&cli.StringFlag{
			Name:    "event-bus",
			Usage:   "Event bus type (gochannel, kafka)",
			Value:   "gochannel",
			Sources: cli.EnvVars("EVENT_BUS_TYPE"),
		},
		&cli.StringFlag{
			Name:    "kafka-brokers",
			Usage:   "Comma separated Kafka brokers for the kafka event bus",
			Value:   "localhost:9092",
			Sources: cli.EnvVars("KAFKA_BROKERS"),
		},
		&cli.IntFlag{
			Name:    "workers",
			Usage:   "Number of process instances migrated in parallel",
			Value:   migration.DefaultWorkers,
			Sources: cli.EnvVars("WORKERS"),
		},
		&cli.IntFlag{
			Name:    "max-retries",
			Usage:   "Retries per instance after a concurrent modification",
			Value:   migration.DefaultMaxRetries,
			Sources: cli.EnvVars("MAX_RETRIES"),
		},
		&cli.BoolFlag{
			Name:    "tracing",
			Usage:   "Export traces over OTLP/HTTP",
			Sources: cli.EnvVars("TRACING_ENABLED"),
		},
		&cli.StringFlag{
			Name:    "log-level",
			Usage:   "Log level (debug, info, warn, error)",
			Value:   "info",
			Sources: cli.EnvVars("LOG_LEVEL"),
		},
	}
}
