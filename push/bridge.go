package push

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/CUknot/marketplace_chat/metrics"
	expo "github.com/oliveroneill/exponent-server-sdk-golang/sdk"
	"github.com/sony/gobreaker"
	"go.uber.org/zap"
)

// Bridge delivers a push notification to a device. Implementations never
// report failures to the caller; the chat path must not depend on push.
type Bridge interface {
	Send(ctx context.Context, token, title, body string, data map[string]string)
}

var ErrInvalidToken = errors.New("invalid push token")

// IsExpoPushToken reports whether token has the format accepted by the Expo push service
func IsExpoPushToken(token string) bool {
	_, err := expo.NewExponentPushToken(token)
	return err == nil
}

// ExpoBridge publishes notifications through the Expo push client behind a circuit breaker
type ExpoBridge struct {
	client  *expo.PushClient
	breaker *gobreaker.CircuitBreaker
	log     *zap.Logger
}

func NewExpoBridge(host, apiURL, accessToken string, timeout time.Duration, log *zap.Logger) *ExpoBridge {
	return &ExpoBridge{
		client: expo.NewPushClient(&expo.ClientConfig{
			Host:        host,
			APIURL:      apiURL,
			AccessToken: accessToken,
			HTTPClient:  &http.Client{Timeout: timeout},
		}),
		breaker: gobreaker.NewCircuitBreaker(gobreaker.Settings{
			Name:        "expo-push",
			MaxRequests: 1,
			Interval:    time.Minute,
			Timeout:     30 * time.Second,
			ReadyToTrip: func(counts gobreaker.Counts) bool {
				return counts.ConsecutiveFailures >= 5
			},
			OnStateChange: func(name string, from, to gobreaker.State) {
				log.Warn("push circuit breaker state change",
					zap.String("breaker", name), zap.String("from", from.String()), zap.String("to", to.String()))
			},
		}),
		log: log,
	}
}

// Send delivers one notification. Errors are logged and counted, never returned.
func (b *ExpoBridge) Send(ctx context.Context, token, title, body string, data map[string]string) {
	if err := b.deliver(ctx, token, title, body, data); err != nil {
		result := "failed"
		if errors.Is(err, ErrInvalidToken) {
			result = "invalid_token"
		}
		metrics.PushNotifications.WithLabelValues(result).Inc()
		b.log.Warn("push notification not delivered", zap.String("result", result), zap.Error(err))
		return
	}
	metrics.PushNotifications.WithLabelValues("sent").Inc()
}

func (b *ExpoBridge) deliver(ctx context.Context, token, title, body string, data map[string]string) error {
	pushToken, err := expo.NewExponentPushToken(token)
	if err != nil {
		return fmt.Errorf("%w: %q", ErrInvalidToken, token)
	}
	// The client has no context support; a cancelled task skips the request.
	if err := ctx.Err(); err != nil {
		return err
	}

	_, err = b.breaker.Execute(func() (interface{}, error) {
		resp, err := b.client.Publish(&expo.PushMessage{
			To:       []expo.ExponentPushToken{pushToken},
			Title:    title,
			Body:     body,
			Data:     data,
			Sound:    "default",
			Priority: expo.DefaultPriority,
		})
		if err != nil {
			return nil, err
		}
		return nil, resp.ValidateResponse()
	})
	return err
}
