package service_registry

import (
	"fmt"

	"github.com/benmeehan/trailsafe/internal/constants"
	mqtt_middleware "github.com/benmeehan/trailsafe/internal/middlewares/mqtt"
	"github.com/benmeehan/trailsafe/internal/utils"
)

// InitializeMiddlewares sets up the middleware chain based on configuration.
func (sr *ServiceRegistry) InitializeMiddlewares(config *utils.Config) (mqtt_middleware.Publisher, error) {
	if sr.mqttClient == nil {
		return nil, fmt.Errorf("middleware chain requires an mqtt client")
	}
	var middlewares []mqtt_middleware.MQTTMiddleware

	// Ordered middleware definitions
	middlewaresInOrder := []struct {
		name        string
		enabled     bool
		constructor func() (mqtt_middleware.MQTTMiddleware, error)
	}{
		{
			name:    constants.LOGGING_MIDDLEWARE,
			enabled: config.Middlewares.Logging.Enabled,
			constructor: func() (mqtt_middleware.MQTTMiddleware, error) {
				return mqtt_middleware.NewLoggingMiddleware(sr.Logger), nil
			},
		},
		{
			name:    constants.THROTTLE_MIDDLEWARE,
			enabled: config.Services.Relay.MinInterval > 0,
			constructor: func() (mqtt_middleware.MQTTMiddleware, error) {
				return mqtt_middleware.NewThrottleMiddleware(config.Services.Relay.MinInterval), nil
			},
		},
	}

	// Initialize middlewares in order
	for _, mw := range middlewaresInOrder {
		if mw.enabled {
			middlewareInstance, err := mw.constructor()
			if err != nil {
				sr.Logger.Error().Err(err).Msgf("Failed to initialize %s middleware", mw.name)
				return nil, fmt.Errorf("failed to initialize %s middleware: %w", mw.name, err)
			}
			middlewares = append(middlewares, middlewareInstance)
			sr.Logger.Info().Str("middleware", mw.name).Msg("Middleware initialized")
		} else {
			sr.Logger.Debug().Str("middleware", mw.name).Msg("Middleware is disabled, skipping")
		}
	}

	chainedClient := mqtt_middleware.NewChainedMQTTClient(sr.mqttClient, middlewares, config.MQTT.PublishTimeout)
	sr.Logger.Info().Int("middleware_count", len(middlewares)).Msg("Middleware chain initialized")
	return chainedClient, nil
}
