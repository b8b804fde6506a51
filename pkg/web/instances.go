package web

import (
	"github.com/gofiber/fiber/v3"
)

func (h *APIHandlers) StartProcessInstance(c fiber.Ctx) error {
	var req StartProcessInstanceRequest
	if err := c.Bind().JSON(&req); err != nil {
		return badRequest(c, errInvalidJSON.Error())
	}

	if err := h.validator.Struct(req); err != nil {
		return badRequest(c, err.Error())
	}

	view, err := h.instancesService.Start(c.Context(), req.DefinitionID, req.StartActivityIDs, req.Variables)
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.Status(fiber.StatusCreated).JSON(view)
}

func (h *APIHandlers) CompleteActivityInstance(c fiber.Ctx) error {
	view, err := h.instancesService.Complete(c.Context(), c.Params("id"), c.Params("activityInstanceId"))
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.JSON(view)
}

func (h *APIHandlers) CorrelateMessage(c fiber.Ctx) error {
	req, err := h.bindEvent(c)
	if err != nil {
		return badRequest(c, err.Error())
	}

	view, err := h.instancesService.CorrelateMessage(c.Context(), c.Params("id"), req.Name)
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.JSON(view)
}

func (h *APIHandlers) SendSignal(c fiber.Ctx) error {
	req, err := h.bindEvent(c)
	if err != nil {
		return badRequest(c, err.Error())
	}

	view, err := h.instancesService.SendSignal(c.Context(), c.Params("id"), req.Name)
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.JSON(view)
}

func (h *APIHandlers) ExecuteJob(c fiber.Ctx) error {
	view, err := h.instancesService.ExecuteJob(c.Context(), c.Params("id"), c.Params("jobId"))
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.JSON(view)
}

func (h *APIHandlers) bindEvent(c fiber.Ctx) (EventRequest, error) {
	var req EventRequest
	if err := c.Bind().JSON(&req); err != nil {
		return req, errInvalidJSON
	}

	if err := h.validator.Struct(req); err != nil {
		return req, err
	}

	return req, nil
}
