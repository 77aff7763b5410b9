package server

import (
	"errors"
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v3"
	"github.com/gofiber/fiber/v3/middleware/recover"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/jordane95/wqb-hub/internal/logging"
)

// AppOptions controls how the Fiber application is assembled.
type AppOptions struct {
	Logger     *logrus.Logger
	Checker    Checker
	Catalog    Catalog
	ListenPort int
	// Threshold/Years 覆盖请求未携带时的默认值，零值沿用 0.7 与 4 年。
	Threshold  float64
	Years      int
}

const contextKeyRequestID = "_wqbhub_request_id"

// NewApp builds a Fiber application with request ID, access log and
// structured error handling, and registers the tool routes.
func NewApp(opts AppOptions) (*fiber.App, error) {
	if opts.Logger == nil {
		return nil, errors.New("logger is required")
	}
	if opts.Checker == nil {
		return nil, errors.New("checker is required")
	}
	if opts.Catalog == nil {
		return nil, errors.New("catalog is required")
	}
	if opts.ListenPort <= 0 {
		return nil, fmt.Errorf("invalid listen port: %d", opts.ListenPort)
	}

	app := fiber.New(fiber.Config{
		CaseSensitive:   true,
		StructValidator: &structValidator{validate: validator.New()},
		ErrorHandler:    errorHandler(opts.Logger),
	})

	app.Use(requestContextMiddleware())
	app.Use(accessLogMiddleware(opts.Logger))
	app.Use(recover.New())

	registerToolRoutes(app, opts)
	return app, nil
}

// structValidator 让 c.Bind() 在解码后执行 validate 标签校验。
type structValidator struct {
	validate *validator.Validate
}

func (v *structValidator) Validate(out any) error {
	return v.validate.Struct(out)
}

// requestContextMiddleware 负责生成请求 ID，并写回 X-Request-ID 响应头。
func requestContextMiddleware() fiber.Handler {
	return func(c fiber.Ctx) error {
		reqID := c.Get("X-Request-ID")
		if reqID == "" {
			reqID = uuid.NewString()
		}
		c.Locals(contextKeyRequestID, reqID)
		c.Set("X-Request-ID", reqID)
		return c.Next()
	}
}

// accessLogMiddleware 在请求结束后记录一行访问日志；错误由 ErrorHandler 渲染，这里只推算最终状态码。
func accessLogMiddleware(logger *logrus.Logger) fiber.Handler {
	return func(c fiber.Ctx) error {
		started := time.Now()
		err := c.Next()

		status := c.Response().StatusCode()
		if err != nil {
			status, _ = classifyError(err)
		}
		fields := logging.RequestFields(RequestID(c), c.Method(), c.Path(), status)
		fields["duration_ms"] = time.Since(started).Milliseconds()
		entry := logger.WithFields(fields)
		if status >= fiber.StatusInternalServerError {
			entry.WithError(err).Warn("request failed")
		} else {
			entry.Info("request")
		}
		return err
	}
}

// RequestID returns the request identifier stored by the router middleware.
func RequestID(c fiber.Ctx) string {
	if value := c.Locals(contextKeyRequestID); value != nil {
		if reqID, ok := value.(string); ok {
			return reqID
		}
	}
	return ""
}
