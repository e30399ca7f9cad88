package routes

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/gofiber/fiber/v3"
	"github.com/gofiber/fiber/v3/middleware/adaptor"
	"github.com/sirupsen/logrus"

	"github.com/any-hub/diskcache/internal/cache"
	"github.com/any-hub/diskcache/internal/logging"
	"github.com/any-hub/diskcache/internal/server"
)

// PurgeObserver 接收运维清理结果，通常由 metrics.Collector 实现。
type PurgeObserver interface {
	ObservePurge(store string, err error)
}

// RegisterStoreRoutes 暴露 /-/stores 诊断接口，供 SRE 查询或清理缓存目录。
func RegisterStoreRoutes(app *fiber.App, registry *server.StoreRegistry, logger *logrus.Logger, observer PurgeObserver) {
	if app == nil || registry == nil || logger == nil {
		return
	}

	app.Get("/-/stores", func(c fiber.Ctx) error {
		ctx := requestContext(c)
		routes := registry.List()
		payload := make([]storePayload, 0, len(routes))
		for _, route := range routes {
			status, err := route.Dir.Status(ctx)
			if err != nil {
				return renderStoreError(c, logger, route.Config.Name, err)
			}
			payload = append(payload, encodeStatus(route, status))
		}
		return c.JSON(fiber.Map{"stores": payload})
	})

	app.Get("/-/stores/:name", func(c fiber.Ctx) error {
		route, ok := lookupStore(c, registry)
		if !ok {
			return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "store_not_found"})
		}
		status, err := route.Dir.Status(requestContext(c))
		if err != nil {
			return renderStoreError(c, logger, route.Config.Name, err)
		}
		logger.WithFields(logging.StoreFields(route.Config.Name, server.RequestID(c), status.Entries, status.Fresh, status.Locked)).
			Debug("store status")
		return c.JSON(encodeStatus(*route, status))
	})

	app.Delete("/-/stores/:name", func(c fiber.Ctx) error {
		route, ok := lookupStore(c, registry)
		if !ok {
			return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "store_not_found"})
		}
		err := route.Dir.Purge(requestContext(c))
		if observer != nil {
			observer.ObservePurge(route.Config.Name, err)
		}
		if err != nil {
			return renderStoreError(c, logger, route.Config.Name, err)
		}
		logger.WithFields(logrus.Fields{
			"action":     "purge",
			"store":      route.Config.Name,
			"request_id": server.RequestID(c),
		}).Info("store purged")
		return c.SendStatus(fiber.StatusNoContent)
	})
}

// RegisterMetricsRoute 将 Prometheus handler 挂载到 /-/metrics。
func RegisterMetricsRoute(app *fiber.App, handler http.Handler) {
	if app == nil || handler == nil {
		return
	}
	app.Get("/-/metrics", adaptor.HTTPHandler(handler))
}

type storePayload struct {
	Name          string     `json:"name"`
	Path          string     `json:"path"`
	Codec         string     `json:"codec"`
	MaxAgeSeconds int64      `json:"max_age_seconds"`
	Entries       int        `json:"entries"`
	NewestEntry   string     `json:"newest_entry,omitempty"`
	WrittenAt     *time.Time `json:"written_at,omitempty"`
	AgeSeconds    float64    `json:"age_seconds"`
	Fresh         bool       `json:"fresh"`
	Locked        bool       `json:"locked"`
}

func encodeStatus(route server.StoreRoute, status cache.Status) storePayload {
	payload := storePayload{
		Name:          status.Name,
		Path:          status.Path,
		Codec:         route.Config.Codec,
		MaxAgeSeconds: int64(route.MaxAge / time.Second),
		Entries:       status.Entries,
		AgeSeconds:    status.AgeSeconds,
		Fresh:         status.Fresh,
		Locked:        status.Locked,
	}
	if status.Newest != nil {
		written := status.Newest.Timestamp.UTC()
		payload.NewestEntry = status.Newest.Name
		payload.WrittenAt = &written
	}
	return payload
}

func lookupStore(c fiber.Ctx, registry *server.StoreRegistry) (*server.StoreRoute, bool) {
	name := strings.TrimSpace(c.Params("name"))
	if name == "" {
		return nil, false
	}
	return registry.Lookup(name)
}

func renderStoreError(c fiber.Ctx, logger *logrus.Logger, store string, err error) error {
	logger.WithFields(logrus.Fields{
		"action":     "store_status",
		"store":      store,
		"request_id": server.RequestID(c),
	}).WithError(err).Error("store operation failed")
	return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
		"error": "store_unavailable",
		"store": store,
	})
}

func requestContext(c fiber.Ctx) context.Context {
	ctx := c.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	return ctx
}
