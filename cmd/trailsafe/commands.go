package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/benmeehan/trailsafe/internal/models"
	"github.com/benmeehan/trailsafe/internal/service_registry"
	"github.com/benmeehan/trailsafe/internal/session"
	"github.com/benmeehan/trailsafe/internal/store"
	"github.com/benmeehan/trailsafe/internal/utils"
	"github.com/benmeehan/trailsafe/pkg/file"
	"github.com/benmeehan/trailsafe/pkg/identity"
	"github.com/benmeehan/trailsafe/pkg/location"
	"github.com/benmeehan/trailsafe/pkg/mqtt"
	"github.com/benmeehan/trailsafe/pkg/transport"
)

type app struct {
	config     *utils.Config
	fileClient file.FileOperations
	logger     zerolog.Logger
}

func (a *app) userInfo() (identity.UserInfoInterface, error) {
	u := identity.NewUserInfo(a.config.Identity.UserFile, a.fileClient)
	if err := u.LoadUserInfo(); err != nil {
		return nil, fmt.Errorf("failed to load user identity: %w", err)
	}
	return u, nil
}

func (a *app) newOpener() transport.Opener {
	adapter := transport.NewAdapter()
	adapter.Register(models.TransportWebSocket, transport.NewWebSocketOpener(a.config.Session.DialTimeout, a.logger))
	adapter.Register(models.TransportSerial, transport.NewSerialOpener(nil, a.logger))
	adapter.Register(models.TransportBLE, transport.NewBLEOpener(transport.NewTinyGoBackend(a.logger), a.config.Bluetooth.ScanTimeout, a.logger))
	return adapter
}

func (a *app) handleRun(args []string) error {
	fs := flag.NewFlagSet("run", flag.ExitOnError)
	_ = fs.Parse(args)

	userInfo := identity.NewUserInfo(a.config.Identity.UserFile, a.fileClient)

	deviceStore, err := store.OpenSQLite(a.config.Store.Path, a.logger)
	if err != nil {
		return err
	}
	defer deviceStore.Close()

	// mqttClient stays a nil interface unless the relay is enabled.
	var mqttClient mqtt.MQTTClient
	if a.config.Services.Relay.Enabled {
		svc := mqtt.NewMqttService(a.fileClient)
		clientID := a.config.MQTT.ClientID + "-" + uuid.NewString()
		a.logger.Info().Str("client_id", clientID).Msg("Connecting to MQTT broker")
		err := svc.Initialize(mqtt.Options{
			Broker:         a.config.MQTT.Broker,
			ClientID:       clientID,
			CACertificate:  a.config.MQTT.CACertificate,
			Username:       a.config.MQTT.Username,
			Password:       a.config.MQTT.Password,
			ConnectTimeout: a.config.MQTT.ConnectTimeout,
		})
		if err != nil {
			return fmt.Errorf("failed to initialize MQTT connection: %w", err)
		}
		defer svc.Disconnect(250)
		mqttClient = svc
	}

	serviceRegistry := service_registry.NewServiceRegistry(mqttClient, a.newOpener(), deviceStore, a.logger)
	if err := serviceRegistry.RegisterServices(a.config, userInfo); err != nil {
		return err
	}
	if err := serviceRegistry.StartServices(); err != nil {
		return err
	}
	a.logger.Info().Msg("All services started successfully")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	<-ctx.Done()

	a.logger.Info().Msg("Shutting down gracefully...")
	return serviceRegistry.StopServices()
}

func (a *app) handleScan(args []string) error {
	fs := flag.NewFlagSet("scan", flag.ExitOnError)
	timeout := fs.Duration("timeout", a.config.Bluetooth.ScanTimeout, "How long to scan")
	pattern := fs.String("pattern", a.config.Bluetooth.NamePattern, "Advertised-name substring to match")
	_ = fs.Parse(args)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	results, err := transport.Discover(ctx, transport.NewTinyGoBackend(a.logger), *pattern, *timeout)
	if err != nil {
		return err
	}
	if len(results) == 0 {
		fmt.Println("No trackers found")
		return nil
	}
	fmt.Printf("%-20s %-6s %s\n", "ADDRESS", "RSSI", "NAME")
	for _, r := range results {
		fmt.Printf("%-20s %-6d %s\n", r.Address, r.RSSI, r.Name)
	}
	return nil
}

func (a *app) handleLocate(args []string) error {
	fs := flag.NewFlagSet("locate", flag.ExitOnError)
	timeout := fs.Duration("timeout", time.Minute, "How long to wait for a fix")
	asJSON := fs.Bool("json", false, "Print the snapshot as JSON")
	_ = fs.Parse(args)
	if fs.NArg() != 1 {
		return errors.New("usage: trailsafe locate <device-id>")
	}

	device, err := a.findDevice(fs.Arg(0))
	if err != nil {
		return err
	}

	s, err := session.New(device, a.newOpener(), service_registry.SessionOptions(a.config), a.logger)
	if err != nil {
		return err
	}
	defer s.Close()

	_, updates := s.Subscribe(0)
	if err := s.Start(); err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	ctx, cancel := context.WithTimeout(ctx, *timeout)
	defer cancel()

	snap, err := waitForFix(ctx, s, updates)
	if err != nil {
		return err
	}

	if *asJSON {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(snap)
	}

	fmt.Printf("%s: %.6f, %.6f\n", snap.Device.DisplayName(), snap.Current.Latitude, snap.Current.Longitude)
	fmt.Println(location.DirectionsURL(snap.Current.Latitude, snap.Current.Longitude))
	a.printRoute(ctx, *snap.Current)
	return nil
}

func waitForFix(ctx context.Context, s *session.Session, updates <-chan models.SessionSnapshot) (models.SessionSnapshot, error) {
	for {
		select {
		case <-ctx.Done():
			return models.SessionSnapshot{}, fmt.Errorf("no fix received: %w", ctx.Err())
		case snap, ok := <-updates:
			if !ok {
				return models.SessionSnapshot{}, fmt.Errorf("session ended before a fix: %w", s.Err())
			}
			if snap.Current != nil {
				return snap, nil
			}
			if snap.State == models.StateFailed {
				return models.SessionSnapshot{}, s.Err()
			}
		}
	}
}

// printRoute adds a walking summary when a Maps API key is configured.
func (a *app) printRoute(ctx context.Context, target models.LocationSample) {
	if a.config.Location.MapsAPIKey == "" {
		return
	}
	observer, err := a.observer()
	if err != nil {
		a.logger.Warn().Err(err).Msg("Observer position unavailable")
		return
	}
	summarizer, err := location.NewRouteSummarizer(a.config.Location.MapsAPIKey, observer, a.config.Location.DirectionsMode)
	if err != nil {
		a.logger.Warn().Err(err).Msg("Route summaries unavailable")
		return
	}
	route, err := summarizer.Summarize(ctx, target)
	if err != nil {
		a.logger.Warn().Err(err).Msg("Failed to compute route")
		return
	}
	fmt.Printf("%s, about %s via %s\n", route.Distance, route.Duration.Round(time.Minute), route.Summary)
}

func (a *app) observer() (location.Provider, error) {
	cfg := a.config.Location
	switch cfg.Provider {
	case "gps":
		return location.NewDeviceSensorProvider(cfg.GPSDevicePort, cfg.GPSBaudRate, transport.OpenSerialPort), nil
	case "static":
		return location.StaticProvider{Location: location.Location{Latitude: cfg.StaticLat, Longitude: cfg.StaticLon}}, nil
	default:
		return location.NewGoogleGeolocationProvider(cfg.MapsAPIKey, cfg.ModemIndex, a.logger)
	}
}

// findDevice looks in configuration first, then in the user's stored devices.
func (a *app) findDevice(id string) (models.DeviceDescriptor, error) {
	for _, d := range a.config.Devices {
		if d.ID == id {
			return d, nil
		}
	}

	userInfo, err := a.userInfo()
	if err != nil {
		return models.DeviceDescriptor{}, err
	}
	deviceStore, err := store.OpenSQLite(a.config.Store.Path, a.logger)
	if err != nil {
		return models.DeviceDescriptor{}, err
	}
	defer deviceStore.Close()

	rec, err := deviceStore.Get(context.Background(), userInfo.GetUserID(), id)
	if err != nil {
		return models.DeviceDescriptor{}, fmt.Errorf("device %s: %w", id, err)
	}
	d := rec.Descriptor
	if d.Name == "" {
		d.Name = rec.Label
	}
	return d, nil
}

func (a *app) handleDevices(args []string) error {
	if len(args) < 1 {
		return errors.New("usage: trailsafe devices list|add|remove")
	}

	userInfo, err := a.userInfo()
	if err != nil {
		return err
	}
	deviceStore, err := store.OpenSQLite(a.config.Store.Path, a.logger)
	if err != nil {
		return err
	}
	defer deviceStore.Close()

	ctx := context.Background()
	userID := userInfo.GetUserID()

	switch args[0] {
	case "list":
		records, err := deviceStore.List(ctx, userID)
		if err != nil {
			return err
		}
		for _, rec := range records {
			fmt.Printf("%-20s %-10s %-20s %s\n", rec.Descriptor.ID, rec.Descriptor.Transport, rec.Label, rec.Phone)
		}
		return nil
	case "add":
		rec, err := parseDeviceFlags(args[1:], a.config.Bluetooth.NamePattern)
		if err != nil {
			return err
		}
		rec.UserID = userID
		saved, err := deviceStore.Save(ctx, rec)
		if err != nil {
			return err
		}
		fmt.Printf("Saved %s\n", saved.Descriptor.ID)
		return nil
	case "remove":
		if len(args) != 2 {
			return errors.New("usage: trailsafe devices remove <device-id>")
		}
		if err := deviceStore.Delete(ctx, userID, args[1]); err != nil {
			return err
		}
		fmt.Printf("Removed %s\n", args[1])
		return nil
	default:
		return fmt.Errorf("unknown devices command %q", args[0])
	}
}

func parseDeviceFlags(args []string, defaultPattern string) (models.DeviceRecord, error) {
	fs := flag.NewFlagSet("devices add", flag.ContinueOnError)
	var d models.DeviceDescriptor
	var transportKind string
	fs.StringVar(&d.ID, "id", "", "Device id, the BLE address for ble trackers")
	fs.StringVar(&d.Name, "name", "", "Display name")
	fs.StringVar(&transportKind, "transport", string(models.TransportBLE), "ble, websocket or serial")
	fs.StringVar(&d.Format, "format", "", "Telemetry format: gps-text, nmea or json")
	fs.StringVar(&d.ServiceID, "service-id", "", "BLE service UUID")
	fs.StringVar(&d.CharacteristicID, "characteristic-id", "", "BLE notify characteristic UUID")
	fs.StringVar(&d.NamePattern, "name-pattern", defaultPattern, "BLE advertised-name substring")
	fs.StringVar(&d.PayloadEncoding, "encoding", "", "BLE payload encoding: base64 or raw")
	fs.StringVar(&d.EndpointURL, "endpoint", "", "WebSocket endpoint URL")
	fs.StringVar(&d.Port, "port", "", "Serial port")
	fs.IntVar(&d.BaudRate, "baud", 0, "Serial baud rate")
	label := fs.String("label", "", "Label shown for the device")
	phone := fs.String("phone", "", "Contact number of the person carrying the tracker")
	if err := fs.Parse(args); err != nil {
		return models.DeviceRecord{}, err
	}
	d.Transport = models.TransportKind(transportKind)
	if err := d.Validate(); err != nil {
		return models.DeviceRecord{}, err
	}
	return models.DeviceRecord{Descriptor: d, Label: *label, Phone: *phone}, nil
}

func (a *app) handleIdentity(args []string) error {
	fs := flag.NewFlagSet("identity", flag.ExitOnError)
	var id identity.Identity
	fs.StringVar(&id.UserID, "user-id", "", "Authenticated user id")
	fs.StringVar(&id.Email, "email", "", "User email")
	fs.StringVar(&id.DisplayName, "name", "", "Display name")
	_ = fs.Parse(args)

	u := identity.NewUserInfo(a.config.Identity.UserFile, a.fileClient)
	if err := u.SaveIdentity(id); err != nil {
		return err
	}
	fmt.Printf("Identity set to %s\n", u.GetUserID())
	return nil
}
