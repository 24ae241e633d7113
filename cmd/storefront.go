package cmd

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"path/filepath"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/Alturino/storefront/cart/storage"
	"github.com/Alturino/storefront/internal/config"
	"github.com/Alturino/storefront/internal/constants"
	"github.com/Alturino/storefront/internal/infra"
	"github.com/Alturino/storefront/internal/log"
	"github.com/Alturino/storefront/internal/otel"
	"github.com/Alturino/storefront/internal/server"
	notificationService "github.com/Alturino/storefront/notification/service"
	"github.com/Alturino/storefront/product/client"
	productService "github.com/Alturino/storefront/product/service"
	"github.com/Alturino/storefront/session"
)

func needsCache(cfg *config.Config) bool {
	return cfg.Cart.Storage == storage.DriverRedis ||
		cfg.Notification.Driver == notificationService.DriverRedis
}

func runStorefront(c context.Context, configName string) {
	c, span := otel.Tracer.Start(c, "RunStorefront")
	defer span.End()

	cfg := config.InitConfig(c, configName)

	logger := log.Get(filepath.Join(cfg.Application.LogDir, constants.AppStorefront+".log"), cfg.Application.Env).
		With().
		Str(log.KeyAppName, constants.AppStorefront).
		Str(log.KeyTag, "main RunStorefront").
		Logger()
	c = logger.WithContext(c)

	logger = logger.With().Str(log.KeyProcess, "initializing otel sdk").Logger()
	logger.Info().Msg("initializing otel sdk")
	c = logger.WithContext(c)
	shutdownFuncs, err := otel.InitOtelSdk(c, constants.AppStorefront, cfg.Otel)
	if err != nil {
		err = fmt.Errorf("failed initializing otel sdk with error=%w", err)
		otel.RecordError(err, span)
		logger.Error().Err(err).Msg(err.Error())
		return
	}
	logger.Info().Msg("initialized otel sdk")
	defer func() {
		logger := logger.With().Str(log.KeyProcess, "shutting down otel").Logger()
		logger.Info().Msg("shutting down otel")
		if err := otel.ShutdownOtel(c, shutdownFuncs); err != nil {
			err = fmt.Errorf("failed shutting down otel with error=%w", err)
			logger.Error().Err(err).Msg(err.Error())
			return
		}
		logger.Info().Msg("shutdown otel")
	}()

	var cache *redis.Client
	if needsCache(cfg) {
		logger = logger.With().Str(log.KeyProcess, "initializing cache").Logger()
		logger.Info().Msg("initializing cache")
		c = logger.WithContext(c)
		cache, err = infra.NewCacheClient(c, cfg.Cache)
		if err != nil {
			otel.RecordError(err, span)
			logger.Error().Err(err).Msg(err.Error())
			return
		}
		logger.Info().Msg("initialized cache")
		defer func() {
			logger := logger.With().Str(log.KeyProcess, "shutting down cache connection").Logger()
			logger.Info().Msg("shutting down cache connection")
			if err := cache.Close(); err != nil {
				err = fmt.Errorf("failed closing cache with error=%w", err)
				logger.Error().Err(err).Msg(err.Error())
				return
			}
			logger.Info().Msg("shutdown cache connection")
		}()
	}

	logger = logger.With().Str(log.KeyProcess, "initializing cart storage").Logger()
	logger.Info().Msg("initializing cart storage")
	c = logger.WithContext(c)
	cartStorage, err := storage.NewStorage(c, cfg.Cart, cache)
	if err != nil {
		err = fmt.Errorf("failed initializing cart storage with error=%w", err)
		otel.RecordError(err, span)
		logger.Error().Err(err).Msg(err.Error())
		return
	}
	logger.Info().Msg("initialized cart storage")

	logger = logger.With().Str(log.KeyProcess, "initializing catalog").Logger()
	logger.Info().Msg("initializing catalog")
	catalog := productService.NewCatalogService(client.NewClient(c, cfg.Catalog))
	logger.Info().Msg("initialized catalog")

	logger = logger.With().Str(log.KeyProcess, "initializing session manager").Logger()
	logger.Info().Msg("initializing session manager")
	sessions := session.NewManager(catalog, cartStorage, cache, *cfg)
	go sessions.Run(c)
	logger.Info().Msg("initialized session manager")

	logger = logger.With().Str(log.KeyProcess, "initializing server").Logger()
	logger.Info().Msg("initializing server")
	srv := http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Application.Host, cfg.Application.Port),
		BaseContext:  func(net.Listener) context.Context { return c },
		Handler:      server.NewHandler(cfg.Application, catalog, sessions),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
	}
	logger.Info().Msg("initialized server")

	go func() {
		logger := logger.With().Str(log.KeyProcess, "start server").Logger()
		logger.Info().Msgf("start listening request at %s", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			err = fmt.Errorf("encounter error=%w while running server", err)
			logger.Error().Err(err).Msg(err.Error())
			return
		}
		logger.Info().Msg("shutdown server")
	}()

	<-c.Done()
	logger = logger.With().Str(log.KeyProcess, "shutdown server").Logger()
	logger.Info().Msg("received interuption signal shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(c), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		err = fmt.Errorf("failed shutting down server with error=%w", err)
		otel.RecordError(err, span)
		logger.Error().Err(err).Msg(err.Error())
	}
	logger.Info().Msg("server completely shutdown")
}

func runNotificationService(c context.Context, configName string) {
	cfg := config.InitConfig(c, configName)

	logger := log.Get(
		filepath.Join(cfg.Application.LogDir, constants.AppNotificationService+".log"),
		cfg.Application.Env,
	).
		With().
		Str(log.KeyAppName, constants.AppNotificationService).
		Str(log.KeyTag, "main RunNotificationService").
		Logger()
	c = logger.WithContext(c)

	logger = logger.With().Str(log.KeyProcess, "initializing otel sdk").Logger()
	logger.Info().Msg("initializing otel sdk")
	shutdownFuncs, err := otel.InitOtelSdk(c, constants.AppNotificationService, cfg.Otel)
	if err != nil {
		err = fmt.Errorf("failed initializing otel sdk with error=%w", err)
		logger.Error().Err(err).Msg(err.Error())
		return
	}
	logger.Info().Msg("initialized otel sdk")
	defer func() {
		if err := otel.ShutdownOtel(c, shutdownFuncs); err != nil {
			err = fmt.Errorf("failed shutting down otel with error=%w", err)
			logger.Error().Err(err).Msg(err.Error())
		}
	}()

	logger = logger.With().Str(log.KeyProcess, "initializing cache").Logger()
	logger.Info().Msg("initializing cache")
	cache, err := infra.NewCacheClient(c, cfg.Cache)
	if err != nil {
		logger.Error().Err(err).Msg(err.Error())
		return
	}
	defer cache.Close()
	logger.Info().Msg("initialized cache")

	channel := cfg.Notification.Channel
	if channel == "" {
		channel = constants.ChannelNotifications
	}
	logger = logger.With().Str(log.KeyProcess, "receiving notifications").Str(log.KeyChannel, channel).Logger()
	logger.Info().Msg("receiving notifications")
	c = logger.WithContext(c)
	subscriber := notificationService.NewSubscriber(cache, channel, notificationService.LogNotification)
	if err := subscriber.Run(c, nil); err != nil {
		logger.Error().Err(err).Msg(err.Error())
		return
	}
	zerolog.Ctx(c).Info().Msg("notification service completely shutdown")
}
