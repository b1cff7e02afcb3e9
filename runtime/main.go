package main

import (
	"github.com/alphabatem/common/context"
	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"

	"github.com/snaplink-labs/snaplink_api/middleware"
	"github.com/snaplink-labs/snaplink_api/services"
)

func main() {
	if err := godotenv.Load(); err != nil {
		log.Warn().Err(err).Msg("No .env file loaded")
	}

	ctx, err := context.NewCtx(
		&services.SqlService{},
		&services.RedisService{},
		&services.MonitoringService{},

		&services.JWTService{},
		&services.AccountService{},
		&middleware.AuthMiddleware{},

		&services.CounterService{},
		&services.RateLimitService{},
		&services.AnalyticsService{},
		&services.GeolocationService{},

		&services.StorageService{},
		&services.QRRenderService{},

		&services.LinkService{},
		&services.QRService{},
		&services.DispatchService{},
		&services.BillingService{},

		&services.HttpService{},
	)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to configure services")
		return
	}

	if err := ctx.Run(); err != nil {
		log.Fatal().Err(err).Msg("Service runtime failed")
		return
	}
}
