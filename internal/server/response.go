package server

import (
	"errors"

	fiber "github.com/gofiber/fiber/v3"

	perrors "github.com/xtxerr/prodstats/internal/errors"
	"github.com/xtxerr/prodstats/internal/logging"
)

// Response is the envelope used by informational routes and all errors.
type Response struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
	Data    any    `json:"data,omitempty"`
	Error   string `json:"error,omitempty"`
	Kind    string `json:"kind,omitempty"`
}

func ok(c fiber.Ctx, message string, data any) error {
	return c.JSON(Response{Success: true, Message: message, Data: data})
}

// errorHandler renders every handler error as an envelope with the status
// derived from its class.
func (s *Server) errorHandler(c fiber.Ctx, err error) error {
	status := perrors.HTTPStatus(err)
	message := messageFor(status)
	kind := perrors.Kind(err)

	var fe *fiber.Error
	if errors.As(err, &fe) {
		status = fe.Code
		message = fe.Message
		kind = ""
	}

	log := logging.WithContext(c.Context()).With("component", "server")
	if status >= fiber.StatusInternalServerError {
		log.Error("request failed",
			"method", c.Method(),
			"path", c.Path(),
			"status", status,
			"error", err)
	} else {
		log.Debug("request rejected",
			"method", c.Method(),
			"path", c.Path(),
			"status", status,
			"error", err)
	}

	return c.Status(status).JSON(Response{
		Success: false,
		Message: message,
		Error:   err.Error(),
		Kind:    kind,
	})
}

func messageFor(status int) string {
	switch status {
	case fiber.StatusBadRequest:
		return "Invalid request parameter"
	case fiber.StatusUnprocessableEntity:
		return "Dataset failed validation"
	case fiber.StatusServiceUnavailable:
		return "Dataset unavailable"
	default:
		return "Internal server error"
	}
}
