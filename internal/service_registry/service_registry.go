package service_registry

import (
	"errors"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/benmeehan/trailsafe/internal/constants"
	"github.com/benmeehan/trailsafe/internal/registry"
	"github.com/benmeehan/trailsafe/internal/services"
	"github.com/benmeehan/trailsafe/internal/session"
	"github.com/benmeehan/trailsafe/internal/store"
	"github.com/benmeehan/trailsafe/internal/utils"
	"github.com/benmeehan/trailsafe/pkg/identity"
	"github.com/benmeehan/trailsafe/pkg/mqtt"
	"github.com/benmeehan/trailsafe/pkg/transport"
)

// ServiceRegistry manages the lifecycle of various services in the system.
type ServiceRegistry struct {
	services    map[string]registry.Service // Stores registered services
	serviceKeys []string                    // Maintains order of service registration
	mqttClient  mqtt.MQTTClient             // nil when the relay is disabled
	opener      transport.Opener
	deviceStore store.DeviceStore
	Logger      zerolog.Logger
}

// NewServiceRegistry initializes a new service registry with dependencies.
func NewServiceRegistry(mqttClient mqtt.MQTTClient, opener transport.Opener, deviceStore store.DeviceStore, logger zerolog.Logger) *ServiceRegistry {
	return &ServiceRegistry{
		services:    make(map[string]registry.Service),
		mqttClient:  mqttClient,
		opener:      opener,
		deviceStore: deviceStore,
		Logger:      logger,
	}
}

// RegisterService adds a new service to the registry.
func (sr *ServiceRegistry) RegisterService(name string, svc registry.Service) {
	if _, exists := sr.services[name]; exists {
		sr.Logger.Warn().Msgf("Service %s is already registered", name)
		return
	}
	sr.services[name] = svc
	sr.serviceKeys = append(sr.serviceKeys, name)
	sr.Logger.Info().Msgf("Registered service: %s", name)
}

// Service returns a registered service by name.
func (sr *ServiceRegistry) Service(name string) (registry.Service, bool) {
	svc, ok := sr.services[name]
	return svc, ok
}

// StartServices initiates all registered services in order.
// If a service fails to start, it stops already started services.
func (sr *ServiceRegistry) StartServices() error {
	startedServices := []string{}

	for _, name := range sr.serviceKeys {
		svc := sr.services[name]
		sr.Logger.Info().Msgf("Starting service: %s", name)
		if err := svc.Start(); err != nil {
			sr.Logger.Error().Err(err).Msgf("Failed to start service: %s", name)

			sr.Logger.Warn().Msg("Stopping already started services due to startup failure...")
			for i := len(startedServices) - 1; i >= 0; i-- {
				_ = sr.services[startedServices[i]].Stop()
			}
			return fmt.Errorf("failed to start %s: %w", name, err)
		}
		startedServices = append(startedServices, name)
	}

	return nil
}

// StopServices stops all services in reverse order.
func (sr *ServiceRegistry) StopServices() error {
	var stopErrors []error
	for i := len(sr.serviceKeys) - 1; i >= 0; i-- {
		name := sr.serviceKeys[i]
		if err := sr.services[name].Stop(); err != nil {
			stopErrors = append(stopErrors, fmt.Errorf("failed to stop %s: %w", name, err))
		}
	}
	if len(stopErrors) > 0 {
		for _, e := range stopErrors {
			sr.Logger.Error().Err(e).Msg("Service stop failure")
		}
		return errors.Join(stopErrors...)
	}
	return nil
}

// RegisterServices initializes and registers enabled services based on configuration.
// The relay is registered first so it is running before the tracker attaches sessions.
func (sr *ServiceRegistry) RegisterServices(config *utils.Config, userInfo identity.UserInfoInterface) error {
	manager := session.NewManager(sr.opener, SessionOptions(config), sr.Logger)

	var sinks []services.SessionSink
	if config.Services.Tracker.LogSink {
		sinks = append(sinks, services.NewLogSink(sr.Logger))
	}

	// Ordered service definitions with inline constructors
	servicesInOrder := []struct {
		name        string
		enabled     bool
		constructor func() (registry.Service, error)
	}{
		{
			name:    constants.RELAY_SERVICE,
			enabled: config.Services.Relay.Enabled,
			constructor: func() (registry.Service, error) {
				publisher, err := sr.InitializeMiddlewares(config)
				if err != nil {
					return nil, err
				}
				relay := services.NewRelayService(
					config.Services.Relay.Topic,
					config.Services.Relay.QOS,
					publisher,
					sr.Logger,
				)
				sinks = append(sinks, relay)
				return relay, nil
			},
		},
		{
			name:    constants.TRACKER_SERVICE,
			enabled: config.Services.Tracker.Enabled,
			constructor: func() (registry.Service, error) {
				return services.NewTrackerService(
					config.Devices,
					userInfo,
					sr.deviceStore,
					manager,
					sinks,
					sr.Logger,
				), nil
			},
		},
		{
			name:    constants.STATUS_SERVICE,
			enabled: config.Services.Status.Enabled,
			constructor: func() (registry.Service, error) {
				return services.NewStatusService(config.Services.Status.ListenAddr, manager, sr.Logger), nil
			},
		},
	}

	// Register services in the predefined order
	registeredServices := []string{}
	for _, svc := range servicesInOrder {
		if svc.enabled {
			serviceInstance, err := svc.constructor()
			if err != nil {
				sr.Logger.Error().Err(err).Msgf("Failed to create %s service", svc.name)
				return err
			}
			sr.RegisterService(svc.name, serviceInstance)
			registeredServices = append(registeredServices, svc.name)
		}
	}

	sr.Logger.Info().Msgf("Registered services in order: %v", registeredServices)
	return nil
}

// SessionOptions maps the session section of the configuration.
func SessionOptions(config *utils.Config) session.Options {
	return session.Options{
		MaxPathLength:           config.Session.MaxPathLength,
		MaxReconnectAttempts:    config.Session.MaxReconnectAttempts,
		ReconnectBackoffInitial: config.Session.ReconnectBackoffInitial,
		ReconnectBackoffMax:     config.Session.ReconnectBackoffMax,
		CloseTimeout:            config.Session.CloseTimeout,
	}
}
