package serverutils

import (
	"errors"

	"ai-docchat/internal/pkg/logger"
	"ai-docchat/internal/service"
	"ai-docchat/pkg/docservice"
	"ai-docchat/pkg/store"
	"ai-docchat/pkg/utils"

	"github.com/gofiber/fiber/v2"
)

// ForwardBearer passes the caller's Authorization token through to the document service.
func ForwardBearer(ctx *fiber.Ctx) error {
	authHeader := ctx.Get("Authorization")
	if len(authHeader) > 7 && authHeader[:7] == "Bearer " {
		ctx.SetUserContext(docservice.WithBearerToken(ctx.UserContext(), authHeader[7:]))
	}
	return ctx.Next()
}

// ErrorHandlerMiddleware turns errors returned by handlers into JSON error responses.
func ErrorHandlerMiddleware(log logger.ILogger) fiber.Handler {
	return func(ctx *fiber.Ctx) error {
		err := ctx.Next()
		if err == nil {
			return nil
		}

		code, res := MapError(err)
		if code >= fiber.StatusInternalServerError {
			log.Error("HTTP", "Request failed", map[string]interface{}{
				"method": ctx.Method(),
				"path":   ctx.Path(),
				"status": code,
				"error":  err,
			})
		}
		return ctx.Status(code).JSON(res)
	}
}

// MapError picks the HTTP status and body for an error.
func MapError(err error) (int, *Response[any]) {
	var (
		fiberErr *fiber.Error
		valErr   *ValidationError
		svcErr   *docservice.Error
	)

	switch {
	case errors.As(err, &fiberErr):
		return fiberErr.Code, ErrorResponse(fiberErr.Code, fiberErr.Message)

	case errors.As(err, &valErr):
		res := ErrorResponse(fiber.StatusBadRequest, "Invalid request")
		res.Errors = valErr.Fields
		return fiber.StatusBadRequest, res

	case errors.Is(err, store.ErrEmptyQuestion):
		return fiber.StatusBadRequest, ErrorResponse(fiber.StatusBadRequest, err.Error())

	case errors.Is(err, store.ErrQuestionPending):
		return fiber.StatusConflict, ErrorResponse(fiber.StatusConflict, err.Error())

	case errors.Is(err, service.ErrSessionNotFound), errors.Is(err, store.ErrSessionClosed):
		return fiber.StatusNotFound, ErrorResponse(fiber.StatusNotFound, "Chat session not found or closed")

	case errors.Is(err, utils.ErrFileTooLarge):
		return fiber.StatusRequestEntityTooLarge, ErrorResponse(fiber.StatusRequestEntityTooLarge, err.Error())

	case errors.Is(err, utils.ErrUnsupportedFileType):
		return fiber.StatusUnsupportedMediaType, ErrorResponse(fiber.StatusUnsupportedMediaType, err.Error())

	case errors.Is(err, ErrInvalidViewToken):
		return fiber.StatusUnauthorized, ErrorResponse(fiber.StatusUnauthorized, err.Error())

	case docservice.IsNotFound(err):
		return fiber.StatusNotFound, ErrorResponse(fiber.StatusNotFound, "Document not found")

	case errors.As(err, &svcErr):
		if svcErr.Kind == docservice.KindHTTPStatus && svcErr.Status >= 400 && svcErr.Status < 500 {
			return svcErr.Status, ErrorResponse(svcErr.Status, svcErr.Message)
		}
		if svcErr.Kind == docservice.KindTimeout {
			return fiber.StatusGatewayTimeout, ErrorResponse(fiber.StatusGatewayTimeout, "Document service timed out")
		}
		return fiber.StatusBadGateway, ErrorResponse(fiber.StatusBadGateway, "Document service unavailable")

	default:
		return fiber.StatusInternalServerError, ErrorResponse(fiber.StatusInternalServerError, "Internal server error")
	}
}
