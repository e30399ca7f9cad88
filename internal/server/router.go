package server

import (
	"errors"
	"fmt"
	"strings"

	"github.com/gofiber/fiber/v3"
	"github.com/gofiber/fiber/v3/middleware/recover"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

// AppOptions controls how the Fiber diagnostics application should behave.
type AppOptions struct {
	Logger     *logrus.Logger
	Registry   *StoreRegistry
	ListenPort int
}

const contextKeyRequestID = "_diskcache_request_id"

// NewApp builds a Fiber application with request ID middleware and a JSON 404
// for everything outside the diagnostics prefix. Routes are attached by the
// routes package.
func NewApp(opts AppOptions) (*fiber.App, error) {
	if opts.Logger == nil {
		return nil, errors.New("logger is required")
	}
	if opts.Registry == nil {
		return nil, errors.New("store registry is required")
	}
	if opts.ListenPort <= 0 {
		return nil, fmt.Errorf("invalid listen port: %d", opts.ListenPort)
	}

	app := fiber.New(fiber.Config{
		CaseSensitive: true,
	})

	app.Use(recover.New())
	app.Use(requestContextMiddleware())

	return app, nil
}

// NotFound 注册兜底路由，需在所有业务路由之后调用。
func NotFound(app *fiber.App, logger *logrus.Logger) {
	app.Use(notFoundHandler(logger))
}

func notFoundHandler(logger *logrus.Logger) fiber.Handler {
	return func(c fiber.Ctx) error {
		path := string(c.Request().URI().Path())
		logger.WithFields(logrus.Fields{
			"action":      "route_lookup",
			"path":        path,
			"diagnostics": isDiagnosticsPath(path),
			"request_id":  RequestID(c),
		}).Debug("route not found")
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
			"error": "route_not_found",
		})
	}
}

// requestContextMiddleware 负责生成请求 ID 并写入响应头。
func requestContextMiddleware() fiber.Handler {
	return func(c fiber.Ctx) error {
		reqID := uuid.NewString()
		c.Locals(contextKeyRequestID, reqID)
		c.Set("X-Request-ID", reqID)
		return c.Next()
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

func isDiagnosticsPath(path string) bool {
	return strings.HasPrefix(path, "/-/")
}
