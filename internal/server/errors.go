package server

import (
	"context"
	"errors"
	"fmt"
	"net"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v3"
	"github.com/sirupsen/logrus"

	"github.com/jordane95/wqb-hub/internal/checker"
	"github.com/jordane95/wqb-hub/internal/correlation"
	"github.com/jordane95/wqb-hub/internal/platform"
)

// errBadRequest 标记请求体或查询参数无法解析。
var errBadRequest = errors.New("invalid request")

func badRequest(err error) error {
	return fmt.Errorf("%w: %w", errBadRequest, err)
}

// classifyError 将错误映射为 HTTP 状态码与错误码：输入错误 400，平台错误 502，其余 500。
func classifyError(err error) (int, string) {
	var (
		validationErrs validator.ValidationErrors
		statusErr      *platform.StatusError
		fiberErr       *fiber.Error
		netErr         net.Error
	)
	switch {
	case errors.As(err, &validationErrs), errors.Is(err, errBadRequest), errors.Is(err, checker.ErrNoCandidates):
		return fiber.StatusBadRequest, "invalid_request"
	case errors.Is(err, correlation.ErrUnsupportedType):
		return fiber.StatusBadRequest, "unsupported_check_type"
	case errors.Is(err, platform.ErrNotFound):
		return fiber.StatusNotFound, "not_found"
	case errors.As(err, &statusErr),
		errors.Is(err, platform.ErrUnauthorized),
		errors.Is(err, platform.ErrRateLimited),
		errors.Is(err, platform.ErrChallengeRequired),
		errors.Is(err, platform.ErrNoCredentials),
		errors.Is(err, context.DeadlineExceeded),
		errors.As(err, &netErr):
		return fiber.StatusBadGateway, "upstream_error"
	case errors.As(err, &fiberErr):
		return fiberErr.Code, codeForStatus(fiberErr.Code)
	}
	return fiber.StatusInternalServerError, "internal_error"
}

func codeForStatus(status int) string {
	switch status {
	case fiber.StatusNotFound:
		return "not_found"
	case fiber.StatusMethodNotAllowed:
		return "method_not_allowed"
	}
	if status < fiber.StatusInternalServerError {
		return "invalid_request"
	}
	return "internal_error"
}

// errorHandler 以 {"error": code, "message": ...} 渲染所有未处理的错误。
func errorHandler(logger *logrus.Logger) fiber.ErrorHandler {
	return func(c fiber.Ctx, err error) error {
		status, code := classifyError(err)
		if status >= fiber.StatusInternalServerError {
			logger.WithFields(logrus.Fields{
				"action":     "tool_error",
				"request_id": RequestID(c),
				"route":      c.Path(),
			}).WithError(err).Error("request error")
		}
		return c.Status(status).JSON(fiber.Map{
			"error":   code,
			"message": err.Error(),
		})
	}
}
