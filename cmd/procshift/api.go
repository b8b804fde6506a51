package main

import (
	"log/slog"
	"strconv"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v3"
	"github.com/gofiber/fiber/v3/middleware/cors"
	"github.com/gofiber/fiber/v3/middleware/healthcheck"
	"github.com/gofiber/fiber/v3/middleware/logger"

	"github.com/dukex/procshift/pkg/definition"
	"github.com/dukex/procshift/pkg/services"
	"github.com/dukex/procshift/pkg/web"
)

type API struct {
	logger           *slog.Logger
	registry         *definition.Registry
	migrationService *services.Migration
	instancesService *services.Instances
	validate         *validator.Validate
}

func NewAPI(
	logger *slog.Logger,
	registry *definition.Registry,
	migrationService *services.Migration,
	instancesService *services.Instances,
) *API {
	return &API{
		logger:           logger,
		registry:         registry,
		migrationService: migrationService,
		instancesService: instancesService,
		validate:         validator.New(validator.WithRequiredStructEnabled()),
	}
}

func (a *API) App() *fiber.App {
	handlers := web.NewAPIHandlers(a.migrationService, a.instancesService, a.validate, a.registry)

	app := fiber.New()
	app.Use(cors.New())
	app.Use(logger.New(logger.Config{
		DisableColors: true,
	}))

	app.Get(healthcheck.DefaultLivenessEndpoint, healthcheck.NewHealthChecker())
	app.Get(healthcheck.DefaultReadinessEndpoint, healthcheck.NewHealthChecker())

	app.Get("/", func(c fiber.Ctx) error {
		return c.SendString("procshift API")
	})

	handlers.Register(app)

	return app
}

func (a *API) Start(port int) error {
	app := a.App()

	a.logger.Info("Starting procshift API", "port", port)

	return app.Listen(":" + strconv.Itoa(port))
}
