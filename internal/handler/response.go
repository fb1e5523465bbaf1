package handler

import (
	"errors"

	apperrors "go-pos-sync/pkg/errors"
	"go-pos-sync/pkg/logger"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
)

type apiError struct {
	Code      string `json:"code"`
	Message   string `json:"message"`
	Retryable bool   `json:"retryable"`
	Details   any    `json:"details,omitempty"`
}

// ErrorHandler renders every error returned by a handler as
// {"error": {"code", "message", "retryable", "details"}}.
func ErrorHandler(logg *logger.Logger) fiber.ErrorHandler {
	if logg == nil {
		logg = logger.Nop()
	}
	return func(c *fiber.Ctx, err error) error {
		var fe *fiber.Error
		if errors.As(err, &fe) && apperrors.As(err) == nil {
			return c.Status(fe.Code).JSON(fiber.Map{"error": apiError{
				Code:    codeForStatus(fe.Code),
				Message: fe.Message,
			}})
		}

		typed := apperrors.As(err)
		if typed == nil {
			typed = apperrors.Wrap(apperrors.CodeInternal, err, "unexpected error")
		}
		meta := apperrors.MetadataFor(typed.Code())

		msg := meta.PublicMessage
		if meta.HTTPStatus < fiber.StatusInternalServerError || typed.Code() == apperrors.CodePartialWrite {
			if m := typed.Message(); m != "" {
				msg = m
			}
		}
		if meta.HTTPStatus >= fiber.StatusInternalServerError {
			logg.Error(c.UserContext(), "request failed", err)
		}

		body := apiError{Code: string(typed.Code()), Message: msg, Retryable: meta.Retryable}
		if meta.DetailsAllowed {
			body.Details = typed.Details()
		}
		return c.Status(meta.HTTPStatus).JSON(fiber.Map{"error": body})
	}
}

func codeForStatus(status int) string {
	switch status {
	case fiber.StatusBadRequest:
		return string(apperrors.CodeValidation)
	case fiber.StatusUnauthorized:
		return string(apperrors.CodeUnauthorized)
	case fiber.StatusForbidden:
		return string(apperrors.CodeForbidden)
	case fiber.StatusNotFound:
		return string(apperrors.CodeNotFound)
	case fiber.StatusConflict:
		return string(apperrors.CodeConflict)
	default:
		return string(apperrors.CodeInternal)
	}
}

// parseUUID reads a uuid route parameter.
func parseUUID(c *fiber.Ctx, name string) (uuid.UUID, error) {
	id, err := uuid.Parse(c.Params(name))
	if err != nil {
		return uuid.Nil, apperrors.Newf(apperrors.CodeValidation, "invalid %s", name)
	}
	return id, nil
}

func parseBody(c *fiber.Ctx, out interface{}) error {
	if err := c.BodyParser(out); err != nil {
		return apperrors.New(apperrors.CodeValidation, "invalid JSON")
	}
	return nil
}
