package mqtt_middleware

import (
	"github.com/rs/zerolog"
)

// LoggingMiddleware records every publish that reaches it.
type LoggingMiddleware struct {
	logger zerolog.Logger
	next   MQTTMiddleware
}

func NewLoggingMiddleware(logger zerolog.Logger) *LoggingMiddleware {
	return &LoggingMiddleware{logger: logger.With().Str("middleware", "logging").Logger()}
}

func (l *LoggingMiddleware) SetNext(next MQTTMiddleware) {
	l.next = next
}

func (l *LoggingMiddleware) Publish(topic string, qos byte, retained bool, payload interface{}) error {
	err := l.next.Publish(topic, qos, retained, payload)
	ev := l.logger.Debug()
	if err != nil {
		ev = l.logger.Error().Err(err)
	}
	ev.Str("topic", topic).Uint8("qos", qos).Bool("retained", retained).Int("bytes", payloadSize(payload)).Msg("MQTT publish")
	return err
}

func payloadSize(payload interface{}) int {
	switch p := payload.(type) {
	case []byte:
		return len(p)
	case string:
		return len(p)
	default:
		return -1
	}
}
