package web

import (
	"errors"
	"strings"

	"github.com/gofiber/fiber/v3"
	"github.com/moogar0880/problems"

	"github.com/dukex/procshift/pkg/migration"
	"github.com/dukex/procshift/pkg/services"
)

var errInvalidJSON = errors.New("invalid JSON format")

// planProblem carries the violations of a rejected plan next to the problem
// fields.
type planProblem struct {
	*problems.Problem

	Violations []migration.Violation `json:"violations"`
}

func badRequest(c fiber.Ctx, detail string) error {
	problem := problems.NewStatusProblem(400).
		WithInstance(c.Path()).
		WithType("validation_error").
		WithDetail(detail)

	return c.Status(fiber.StatusBadRequest).JSON(problem)
}

// handleServiceError provides typed error handling for service layer errors.
func handleServiceError(c fiber.Ctx, err error) error {
	var verr *migration.ValidationError

	switch {
	case errors.As(err, &verr):
		problem := problems.NewStatusProblem(400).
			WithInstance(c.Path()).
			WithType("invalid_migration_plan").
			WithDetail(verr.Error())

		return c.Status(fiber.StatusBadRequest).JSON(planProblem{
			Problem:    problem,
			Violations: verr.Violations,
		})

	case services.IsValidationError(err):
		problem := problems.NewStatusProblem(400).
			WithInstance(c.Path()).
			WithType(validationType(err)).
			WithDetail(err.Error())

		return c.Status(fiber.StatusBadRequest).JSON(problem)

	case services.IsNotFoundError(err):
		problem := problems.NewStatusProblem(404).
			WithInstance(c.Path()).
			WithType(notFoundType(err)).
			WithDetail(err.Error())

		return c.Status(fiber.StatusNotFound).JSON(problem)

	case services.IsConflictError(err):
		problem := problems.NewStatusProblem(409).
			WithInstance(c.Path()).
			WithType("conflict").
			WithDetail(err.Error())

		return c.Status(fiber.StatusConflict).JSON(problem)

	default:
		problem := problems.NewStatusProblem(500).
			WithInstance(c.Path()).
			WithType("internal_error").
			WithError(err)

		return c.Status(fiber.StatusInternalServerError).JSON(problem)
	}
}

// validationType names the problem after the service error code when there is
// one.
func validationType(err error) string {
	var serr *services.ServiceError
	if errors.As(err, &serr) && serr.Code != "" {
		return strings.ToLower(serr.Code)
	}

	return "validation_error"
}

func notFoundType(err error) string {
	switch {
	case errors.Is(err, services.ErrPlanNotFound):
		return "migration_plan_not_found"
	case errors.Is(err, services.ErrDefinitionNotFound):
		return "process_definition_not_found"
	case errors.Is(err, services.ErrInstanceNotFound):
		return "process_instance_not_found"
	default:
		return "not_found"
	}
}
