package service

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/Alturino/storefront/internal/log"
	"github.com/Alturino/storefront/notification/response"
)

var notificationsDelivered = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: "storefront",
	Subsystem: "notification",
	Name:      "delivered_total",
	Help:      "Notifications received from the pub/sub channel by level.",
}, []string{"level"})

// Subscriber consumes notifications published by the storefront and hands each one to handle.
type Subscriber struct {
	client  *redis.Client
	channel string
	handle  func(c context.Context, notification response.Notification)
}

func NewSubscriber(
	client *redis.Client,
	channel string,
	handle func(c context.Context, notification response.Notification),
) *Subscriber {
	return &Subscriber{client: client, channel: channel, handle: handle}
}

// LogNotification is the default handler of the notification command.
func LogNotification(c context.Context, notification response.Notification) {
	zerolog.Ctx(c).
		Info().
		Str(log.KeySessionID, notification.SessionID).
		Str("level", string(notification.Level)).
		Time("createdAt", notification.CreatedAt).
		Msg(notification.Message)
}

// Run blocks until c is done or the subscription is closed. ready is closed once the
// subscription is confirmed by the server.
func (s *Subscriber) Run(c context.Context, ready chan<- struct{}) error {
	logger := zerolog.Ctx(c).
		With().
		Str(log.KeyTag, "Subscriber Run").
		Str(log.KeyChannel, s.channel).
		Logger()

	logger = logger.With().Str(log.KeyProcess, "subscribing channel").Logger()
	logger.Info().Msg("subscribing channel")
	pubsub := s.client.Subscribe(c, s.channel)
	defer pubsub.Close()
	if _, err := pubsub.Receive(c); err != nil {
		err = fmt.Errorf("failed subscribing channel=%s with error=%w", s.channel, err)
		logger.Error().Err(err).Msg(err.Error())
		return err
	}
	logger.Info().Msg("subscribed channel")
	if ready != nil {
		close(ready)
	}

	logger = logger.With().Str(log.KeyProcess, "receiving notifications").Logger()
	messages := pubsub.Channel()
	for {
		select {
		case <-c.Done():
			logger.Info().Msg("stopped receiving notifications")
			return nil
		case msg, ok := <-messages:
			if !ok {
				logger.Info().Msg("subscription closed")
				return nil
			}
			notification := response.Notification{}
			if err := json.Unmarshal([]byte(msg.Payload), &notification); err != nil {
				err = fmt.Errorf("failed unmarshaling notification with error=%w", err)
				logger.Warn().Err(err).Str("payload", msg.Payload).Msg(err.Error())
				continue
			}
			notificationsDelivered.WithLabelValues(string(notification.Level)).Inc()
			s.handle(c, notification)
		}
	}
}
