package services

import (
	"errors"
	"fmt"

	"github.com/gofiber/fiber/v2"

	"pvp-room-system/utils/logger"
)

// Error codes returned to clients alongside the human message. Clients branch
// on the code, not the message.
const (
	CodeInvalidInput        = "invalid_input"
	CodeForbidden           = "forbidden"
	CodeNotFound            = "not_found"
	CodeConflict            = "conflict"
	CodeRoomFull            = "room_full"
	CodeRoomNotJoinable     = "room_not_joinable"
	CodeNotEnoughPlayers    = "not_enough_players"
	CodePlayersNotReady     = "players_not_ready"
	CodeInvalidOperation    = "invalid_operation"
	CodeInsufficientBalance = "insufficient_balance"
	CodeInternalError       = "internal_error"
)

// ErrConflict marks a losing concurrent writer. Callers re-fetch and retry.
var ErrConflict = &APIError{Status: fiber.StatusConflict, Code: CodeConflict, Message: "concurrent update, please retry"}

// APIError is a user-visible failure with a stable machine-readable code.
type APIError struct {
	Status  int
	Code    string
	Message string
}

func (e *APIError) Error() string { return e.Message }

func apiErr(status int, code, format string, args ...interface{}) *APIError {
	return &APIError{Status: status, Code: code, Message: fmt.Sprintf(format, args...)}
}

func errInvalidInput(format string, args ...interface{}) *APIError {
	return apiErr(fiber.StatusBadRequest, CodeInvalidInput, format, args...)
}

func errForbidden(format string, args ...interface{}) *APIError {
	return apiErr(fiber.StatusForbidden, CodeForbidden, format, args...)
}

func errNotFound(format string, args ...interface{}) *APIError {
	return apiErr(fiber.StatusNotFound, CodeNotFound, format, args...)
}

// respondError writes the taxonomy response for err. Unexpected errors are
// logged with context and surfaced as a bare internal_error.
func respondError(c *fiber.Ctx, err error) error {
	var apiError *APIError
	if errors.As(err, &apiError) {
		return c.Status(apiError.Status).JSON(fiber.Map{
			"error": apiError.Message,
			"code":  apiError.Code,
		})
	}
	logger.Errorf("[pvp] %s %s failed: %v", c.Method(), c.Path(), err)
	return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
		"error": "internal error",
		"code":  CodeInternalError,
	})
}
