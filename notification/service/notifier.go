package service

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/Alturino/storefront/internal/config"
	"github.com/Alturino/storefront/internal/constants"
	"github.com/Alturino/storefront/internal/log"
	inOtel "github.com/Alturino/storefront/internal/otel"
	"github.com/Alturino/storefront/notification/otel"
	"github.com/Alturino/storefront/notification/response"
)

const (
	DriverLog   = "log"
	DriverRedis = "redis"
)

var notificationsEmitted = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: "storefront",
	Subsystem: "notification",
	Name:      "emitted_total",
	Help:      "Notifications emitted by level and driver.",
}, []string{"level", "driver"})

// Notifier delivers human readable messages to whatever displays them. Delivery failures are
// logged and never returned.
type Notifier interface {
	Success(c context.Context, message string)
	Error(c context.Context, message string)
	Info(c context.Context, message string)
}

func NewNotifier(
	c context.Context,
	cfg config.Notification,
	cache *redis.Client,
	sessionID string,
) (Notifier, error) {
	switch cfg.Driver {
	case "", DriverLog:
		return NewLogNotifier(sessionID), nil
	case DriverRedis:
		if cache == nil {
			return nil, fmt.Errorf("notification driver=%s requires a redis client", cfg.Driver)
		}
		channel := cfg.Channel
		if channel == "" {
			channel = constants.ChannelNotifications
		}
		return NewRedisNotifier(cache, channel, sessionID), nil
	}
	err := fmt.Errorf("unknown notification driver=%s", cfg.Driver)
	zerolog.Ctx(c).Error().Err(err).Msg(err.Error())
	return nil, err
}

type LogNotifier struct {
	sessionID string
}

func NewLogNotifier(sessionID string) LogNotifier {
	return LogNotifier{sessionID: sessionID}
}

func (n LogNotifier) Success(c context.Context, message string) {
	n.notify(c, response.LevelSuccess, message)
}

func (n LogNotifier) Error(c context.Context, message string) {
	n.notify(c, response.LevelError, message)
}

func (n LogNotifier) Info(c context.Context, message string) {
	n.notify(c, response.LevelInfo, message)
}

func (n LogNotifier) notify(c context.Context, level response.Level, message string) {
	logger := zerolog.Ctx(c).
		With().
		Str(log.KeyTag, "LogNotifier notify").
		Str(log.KeySessionID, n.sessionID).
		Str("level", string(level)).
		Logger()

	event := logger.Info()
	if level == response.LevelError {
		event = logger.Warn()
	}
	event.Msg(message)
	notificationsEmitted.WithLabelValues(string(level), DriverLog).Inc()
}

// RedisNotifier publishes every notification as JSON on a pub/sub channel.
type RedisNotifier struct {
	client    *redis.Client
	channel   string
	sessionID string
	now       func() time.Time
}

func NewRedisNotifier(client *redis.Client, channel string, sessionID string) RedisNotifier {
	return RedisNotifier{client: client, channel: channel, sessionID: sessionID, now: time.Now}
}

func (n RedisNotifier) Success(c context.Context, message string) {
	n.publish(c, response.LevelSuccess, message)
}

func (n RedisNotifier) Error(c context.Context, message string) {
	n.publish(c, response.LevelError, message)
}

func (n RedisNotifier) Info(c context.Context, message string) {
	n.publish(c, response.LevelInfo, message)
}

func (n RedisNotifier) publish(c context.Context, level response.Level, message string) {
	c, span := otel.Tracer.Start(
		c,
		"RedisNotifier publish",
		trace.WithAttributes(attribute.String(log.KeyChannel, n.channel)),
	)
	defer span.End()

	logger := zerolog.Ctx(c).
		With().
		Str(log.KeyTag, "RedisNotifier publish").
		Str(log.KeySessionID, n.sessionID).
		Str(log.KeyChannel, n.channel).
		Logger()

	notification := response.Notification{
		CreatedAt: n.now(),
		Level:     level,
		Message:   message,
		SessionID: n.sessionID,
	}

	logger = logger.With().Str(log.KeyProcess, "marshaling notification").Logger()
	logger.Trace().Msg("marshaling notification")
	payload, err := json.Marshal(notification)
	if err != nil {
		err = fmt.Errorf("failed marshaling notification with error=%w", err)
		inOtel.RecordError(err, span)
		logger.Error().Err(err).Msg(err.Error())
		return
	}

	logger = logger.With().Str(log.KeyProcess, "publishing notification").Logger()
	logger.Info().Msg("publishing notification")
	if err := n.client.Publish(c, n.channel, payload).Err(); err != nil {
		err = fmt.Errorf("failed publishing notification with error=%w", err)
		inOtel.RecordError(err, span)
		logger.Error().Err(err).Msg(err.Error())
		return
	}
	notificationsEmitted.WithLabelValues(string(level), DriverRedis).Inc()
	logger.Info().Msg("published notification")
}
