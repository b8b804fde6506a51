package web

import (
	"net/http"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v3"

	"github.com/dukex/procshift/pkg/definition"
	"github.com/dukex/procshift/pkg/services"
)

type APIHandlers struct {
	migrationService *services.Migration
	instancesService *services.Instances
	validator        *validator.Validate
	registry         *definition.Registry
}

func NewAPIHandlers(
	migrationService *services.Migration,
	instancesService *services.Instances,
	validator *validator.Validate,
	registry *definition.Registry,
) *APIHandlers {
	return &APIHandlers{
		migrationService: migrationService,
		instancesService: instancesService,
		validator:        validator,
		registry:         registry,
	}
}

// Register mounts every route on app.
func (h *APIHandlers) Register(app *fiber.App) {
	plans := app.Group("/migration-plans")
	plans.Post("/", h.CreateMigrationPlan)
	plans.Get("/:id", h.GetMigrationPlan)
	plans.Post("/:id/executions", h.ExecuteMigrationPlan)

	app.Get("/process-definitions", h.GetProcessDefinitions)

	instances := app.Group("/process-instances")
	instances.Post("/", h.StartProcessInstance)
	instances.Get("/:id/tree", h.GetProcessInstanceTree)
	instances.Post("/:id/activity-instances/:activityInstanceId/complete", h.CompleteActivityInstance)
	instances.Post("/:id/messages", h.CorrelateMessage)
	instances.Post("/:id/signals", h.SendSignal)
	instances.Post("/:id/jobs/:jobId/execute", h.ExecuteJob)

	app.Get("/health", h.HealthCheck)
}

func (h *APIHandlers) CreateMigrationPlan(c fiber.Ctx) error {
	var req CreateMigrationPlanRequest
	if err := c.Bind().JSON(&req); err != nil {
		return badRequest(c, errInvalidJSON.Error())
	}

	if err := h.validator.Struct(req); err != nil {
		return badRequest(c, err.Error())
	}

	plan, err := h.migrationService.BuildMigrationPlan(c.Context(), req.SourceDefinitionID, req.TargetDefinitionID, req.Instructions)
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.Status(fiber.StatusCreated).JSON(plan)
}

func (h *APIHandlers) GetMigrationPlan(c fiber.Ctx) error {
	plan, err := h.migrationService.GetPlan(c.Context(), c.Params("id"))
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.JSON(plan)
}

func (h *APIHandlers) ExecuteMigrationPlan(c fiber.Ctx) error {
	var req ExecuteMigrationPlanRequest

	if len(c.Body()) > 0 {
		if err := c.Bind().JSON(&req); err != nil {
			return badRequest(c, errInvalidJSON.Error())
		}
	}

	if err := h.validator.Struct(req); err != nil {
		return badRequest(c, err.Error())
	}

	report, err := h.migrationService.ExecuteMigrationPlan(c.Context(), c.Params("id"), req.ProcessInstanceIDs)
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.JSON(report)
}

func (h *APIHandlers) GetProcessInstanceTree(c fiber.Ctx) error {
	view, err := h.migrationService.GetInstanceTree(c.Context(), c.Params("id"))
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.JSON(view)
}

func (h *APIHandlers) GetProcessDefinitions(c fiber.Ctx) error {
	defs := h.registry.Definitions()

	out := make([]fiber.Map, 0, len(defs))
	for _, def := range defs {
		out = append(out, fiber.Map{
			"id":      def.ID(),
			"key":     def.Key(),
			"version": def.Version(),
		})
	}

	return c.JSON(fiber.Map{"process_definitions": out})
}

func (h *APIHandlers) HealthCheck(c fiber.Ctx) error {
	repositoryCheck, repOk := h.migrationService.HealthCheck(c.Context())

	status := "unhealthy"
	message := "procshift API is unhealthy"
	httpStatus := http.StatusInternalServerError

	if repOk {
		status = "healthy"
		message = "procshift API is healthy"
		httpStatus = http.StatusOK
	}

	return c.Status(httpStatus).JSON(fiber.Map{
		"status":  status,
		"message": message,
		"checkers": fiber.Map{
			"repository":  repositoryCheck,
			"definitions": len(h.registry.Definitions()),
		},
		"timestamp": time.Now().UTC(),
	})
}
