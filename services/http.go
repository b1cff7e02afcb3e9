package services

import (
	"errors"
	"fmt"
	"os"
	"strconv"

	"github.com/alphabatem/common/context"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	fiberRecover "github.com/gofiber/fiber/v2/middleware/recover"

	"github.com/snaplink-labs/snaplink_api/services/handlers"
	"github.com/snaplink-labs/snaplink_api/shared"
)

type HttpService struct {
	context.DefaultService

	linkSvc      *LinkService
	qrSvc        *QRService
	dispatchSvc  *DispatchService
	rateLimitSvc *RateLimitService
	counterSvc   *CounterService
	analyticsSvc *AnalyticsService
	billingSvc   *BillingService
	monitorSvc   *MonitoringService

	port          int
	webhookSecret string
	app           *fiber.App
}

const HTTP_SVC = "http_svc"

// Matches middleware.AUTH_MIDDLEWARE_SVC. Resolved structurally to keep the
// middleware package depending on services, not the other way around.
const authMiddlewareID = "auth"

type authMiddleware interface {
	RequiredAuth() fiber.Handler
	OptionalAuth() fiber.Handler
}

func (svc HttpService) Id() string {
	return HTTP_SVC
}

func (svc *HttpService) Configure(ctx *context.Context) error {
	if port := os.Getenv("HTTP_PORT"); port != "" {
		var err error
		if svc.port, err = strconv.Atoi(port); err != nil {
			return err
		}
	} else {
		svc.port = 8000
	}

	svc.webhookSecret = os.Getenv("BILLING_WEBHOOK_SECRET")
	if svc.webhookSecret == "" {
		return fmt.Errorf("BILLING_WEBHOOK_SECRET is required")
	}

	return svc.DefaultService.Configure(ctx)
}

func (svc *HttpService) Start() error {
	svc.linkSvc = svc.Service(LINK_SVC).(*LinkService)
	svc.qrSvc = svc.Service(QR_SVC).(*QRService)
	svc.dispatchSvc = svc.Service(DISPATCH_SVC).(*DispatchService)
	svc.rateLimitSvc = svc.Service(RATE_LIMIT_SVC).(*RateLimitService)
	svc.counterSvc = svc.Service(COUNTER_SVC).(*CounterService)
	svc.analyticsSvc = svc.Service(ANALYTICS_SVC).(*AnalyticsService)
	svc.billingSvc = svc.Service(BILLING_SVC).(*BillingService)
	svc.monitorSvc = svc.Service(MONITORING_SVC).(*MonitoringService)
	auth := svc.Service(authMiddlewareID).(authMiddleware)

	svc.app = fiber.New(fiber.Config{
		AppName:      "snaplink",
		ErrorHandler: svc.handleError,
	})

	svc.app.Use(fiberRecover.New())
	svc.app.Use(cors.New(cors.Config{
		AllowOrigins: "*",
		AllowHeaders: "Origin, Content-Type, Accept, Authorization",
	}))
	svc.app.Use(MonitoringMiddleware(svc.monitorSvc))

	linkHandler := handlers.NewLinkHandler(svc.linkSvc, svc.rateLimitSvc)
	qrHandler := handlers.NewQRHandler(svc.qrSvc, svc.rateLimitSvc, svc.linkSvc.BaseURL())
	dispatchHandler := handlers.NewDispatchHandler(svc.dispatchSvc, svc.rateLimitSvc)
	analyticsHandler := handlers.NewAnalyticsHandler(svc.analyticsSvc, svc.counterSvc, svc.linkSvc, svc.qrSvc)
	billingHandler := handlers.NewBillingHandler(svc.billingSvc, svc.webhookSecret)

	svc.app.Get("/ping", svc.ping)

	v1 := svc.app.Group("/api/v1")
	v1.Get("/ping", svc.ping)

	links := v1.Group("/links")
	links.Post("/", auth.OptionalAuth(), linkHandler.CreateLink)
	links.Get("/", auth.RequiredAuth(), linkHandler.ListLinks)
	links.Get("/:code", linkHandler.GetLink)
	links.Put("/:code", auth.RequiredAuth(), linkHandler.UpdateLink)
	links.Delete("/:code", auth.RequiredAuth(), linkHandler.DeleteLink)

	qr := v1.Group("/qr")
	qr.Post("/", auth.OptionalAuth(), qrHandler.CreateQR)
	qr.Get("/", auth.RequiredAuth(), qrHandler.ListQR)
	qr.Get("/:code", qrHandler.GetQR)
	qr.Put("/:code", auth.RequiredAuth(), qrHandler.UpdateQR)
	qr.Delete("/:code", auth.RequiredAuth(), qrHandler.DeleteQR)
	qr.Post("/:code/claim", auth.RequiredAuth(), qrHandler.ClaimQR)

	v1.Get("/analytics", auth.RequiredAuth(), analyticsHandler.GetRecent)
	v1.Get("/analytics/:code", auth.RequiredAuth(), analyticsHandler.GetSeries)
	v1.Get("/usage", auth.RequiredAuth(), analyticsHandler.GetUsage)

	v1.Post("/webhooks/billing", billingHandler.TierChange)

	// Public resolution is the catch-all and must stay registered last.
	svc.app.Get("/:code", dispatchHandler.Dispatch)

	return svc.app.Listen(fmt.Sprintf(":%v", svc.port))
}

func (svc *HttpService) Shutdown() {
	_ = svc.app.Shutdown()
}

// @Summary Ping
// @Description This endpoint checks the health of the service
// @Tags health
// @Produce json
// @Success 200 {object} shared.Response{data=string}
// @Router /ping [get]
func (svc *HttpService) ping(c *fiber.Ctx) error {
	c.Set(fiber.HeaderCacheControl, "max-age=10")

	return shared.ResponseJSON(c, fiber.StatusOK, "Success", "pong")
}

func (svc *HttpService) handleError(c *fiber.Ctx, err error) error {
	if appErr, ok := shared.GetAppError(err); ok {
		return shared.ResponseJSON(c, appErr.StatusCode, appErr.Message, appErr.Data)
	}

	var fiberErr *fiber.Error
	if errors.As(err, &fiberErr) {
		return shared.ResponseJSON(c, fiberErr.Code, fiberErr.Message, nil)
	}

	return shared.ResponseInternalError(c, err)
}
