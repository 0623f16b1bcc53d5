package utils

import (
	"errors"
	"fmt"
	"time"

	"github.com/benmeehan/trailsafe/internal/constants"
	"github.com/benmeehan/trailsafe/internal/models"
	"github.com/benmeehan/trailsafe/pkg/file"
)

// Config represents the structure of the configuration file.
type Config struct {
	MQTT struct {
		Broker         string        `yaml:"broker"`          // MQTT broker address
		ClientID       string        `yaml:"client_id"`       // MQTT client ID prefix
		CACertificate  string        `yaml:"ca_certificate"`  // Path to the CA certificate, empty for plain TCP
		Username       string        `yaml:"username"`        // Optional broker username
		Password       string        `yaml:"password"`        // Optional broker password
		ConnectTimeout time.Duration `yaml:"connect_timeout"` // Timeout for the initial connect
		PublishTimeout time.Duration `yaml:"publish_timeout"` // Max wait for a publish acknowledgement
	} `yaml:"mqtt"`

	Identity struct {
		UserFile string `yaml:"user_file"` // Path to the identity provider's session file
	} `yaml:"identity"`

	Store struct {
		Path string `yaml:"path"` // SQLite database file
	} `yaml:"store"`

	Logging struct {
		Level   string `yaml:"level"`   // zerolog level name
		Console bool   `yaml:"console"` // Human readable output instead of JSON
	} `yaml:"logging"`

	Session struct {
		MaxPathLength           int           `yaml:"max_path_length"`           // 0 keeps the whole track
		MaxReconnectAttempts    int           `yaml:"max_reconnect_attempts"`    // Reopen attempts after a dropped link, negative disables
		ReconnectBackoffInitial time.Duration `yaml:"reconnect_backoff_initial"` // Delay before the first reopen
		ReconnectBackoffMax     time.Duration `yaml:"reconnect_backoff_max"`     // Cap of the exponential reopen delay
		CloseTimeout            time.Duration `yaml:"close_timeout"`             // Bound on transport release
		DialTimeout             time.Duration `yaml:"dial_timeout"`              // WebSocket handshake timeout
	} `yaml:"session"`

	Bluetooth struct {
		NamePattern string        `yaml:"name_pattern"` // Advertised-name substring used by scan
		ScanTimeout time.Duration `yaml:"scan_timeout"` // How long a scan looks for a device
	} `yaml:"bluetooth"`

	Devices []models.DeviceDescriptor `yaml:"devices"` // Devices tracked in addition to the stored ones

	Services struct {
		Relay struct {
			Enabled     bool          `yaml:"enabled"`      // Enable/disable MQTT relay
			Topic       string        `yaml:"topic"`        // Topic prefix, device id is appended
			QOS         int           `yaml:"qos"`          // MQTT QoS level for location updates
			MinInterval time.Duration `yaml:"min_interval"` // Throttle window per device topic, 0 disables
		} `yaml:"relay"`

		Tracker struct {
			Enabled bool `yaml:"enabled"`  // Enable/disable tracker service
			LogSink bool `yaml:"log_sink"` // Log positions and transitions
		} `yaml:"tracker"`

		Status struct {
			Enabled    bool   `yaml:"enabled"`     // Enable/disable the HTTP status endpoint
			ListenAddr string `yaml:"listen_addr"` // Address the status server binds to
		} `yaml:"status"`
	} `yaml:"services"`

	Middlewares struct {
		Logging struct {
			Enabled bool `yaml:"enabled"` // Log every MQTT publish
		} `yaml:"logging"`
	} `yaml:"middlewares"`

	Location struct {
		Provider       string  `yaml:"provider"`         // Observer position source: google, gps or static
		MapsAPIKey     string  `yaml:"maps_api_key"`     // Google Maps API key, empty disables route summaries
		ModemIndex     int     `yaml:"modem_index"`      // mmcli modem index used for cell lookups
		GPSDevicePort  string  `yaml:"gps_device_port"`  // UNIX port where the observer GPS is mounted
		GPSBaudRate    int     `yaml:"gps_baud_rate"`    // Baud rate of the observer GPS
		StaticLat      float64 `yaml:"static_latitude"`  // Observer latitude for the static provider
		StaticLon      float64 `yaml:"static_longitude"` // Observer longitude for the static provider
		DirectionsMode string  `yaml:"directions_mode"`  // walking, driving, bicycling or transit
	} `yaml:"location"`
}

// LoadConfig loads the YAML configuration from the specified file, fills in
// defaults and validates the declared devices.
func LoadConfig(filename string, fileClient file.FileOperations) (*Config, error) {
	var config Config
	err := fileClient.ReadYamlFile(filename, &config)
	if err != nil {
		return nil, err
	}

	config.applyDefaults()
	if err := config.Validate(); err != nil {
		return nil, err
	}
	return &config, nil
}

func (c *Config) applyDefaults() {
	if c.MQTT.ClientID == "" {
		c.MQTT.ClientID = "trailsafe"
	}
	if c.MQTT.ConnectTimeout <= 0 {
		c.MQTT.ConnectTimeout = 10 * time.Second
	}
	if c.MQTT.PublishTimeout <= 0 {
		c.MQTT.PublishTimeout = 5 * time.Second
	}
	if c.Identity.UserFile == "" {
		c.Identity.UserFile = "configs/user.json"
	}
	if c.Store.Path == "" {
		c.Store.Path = "trailsafe.db"
	}
	if c.Logging.Level == "" {
		c.Logging.Level = "info"
	}
	if c.Session.MaxReconnectAttempts == 0 {
		c.Session.MaxReconnectAttempts = constants.MaxReconnectAttempts
	}
	if c.Session.ReconnectBackoffInitial <= 0 {
		c.Session.ReconnectBackoffInitial = constants.ReconnectBackoffInitial
	}
	if c.Session.ReconnectBackoffMax <= 0 {
		c.Session.ReconnectBackoffMax = constants.ReconnectBackoffMax
	}
	if c.Session.CloseTimeout <= 0 {
		c.Session.CloseTimeout = constants.CloseTimeout
	}
	if c.Session.DialTimeout <= 0 {
		c.Session.DialTimeout = constants.DialTimeout
	}
	if c.Bluetooth.NamePattern == "" {
		c.Bluetooth.NamePattern = constants.DefaultNamePattern
	}
	if c.Bluetooth.ScanTimeout <= 0 {
		c.Bluetooth.ScanTimeout = constants.BLEScanTimeout
	}
	if c.Services.Relay.Topic == "" {
		c.Services.Relay.Topic = "trailsafe/location"
	}
	if c.Services.Status.ListenAddr == "" {
		c.Services.Status.ListenAddr = "127.0.0.1:8086"
	}
	if c.Location.Provider == "" {
		c.Location.Provider = "google"
	}
	if c.Location.DirectionsMode == "" {
		c.Location.DirectionsMode = "walking"
	}

	for i := range c.Devices {
		d := &c.Devices[i]
		if d.Transport == models.TransportBLE && d.NamePattern == "" {
			d.NamePattern = c.Bluetooth.NamePattern
		}
	}
}

// Validate checks the settings that cannot be defaulted.
func (c *Config) Validate() error {
	var errs []error
	ids := make([]string, 0, len(c.Devices))
	for _, d := range c.Devices {
		if err := d.Validate(); err != nil {
			errs = append(errs, err)
			continue
		}
		ids = append(ids, d.ID)
	}
	if len(SliceToSet(ids)) != len(ids) {
		errs = append(errs, errors.New("devices: duplicate device id"))
	}
	if c.Services.Relay.Enabled && c.MQTT.Broker == "" {
		errs = append(errs, errors.New("mqtt.broker is required when the relay is enabled"))
	}
	if c.Services.Relay.QOS < 0 || c.Services.Relay.QOS > 2 {
		errs = append(errs, fmt.Errorf("services.relay.qos must be 0, 1 or 2, got %d", c.Services.Relay.QOS))
	}
	switch c.Location.Provider {
	case "google", "gps", "static":
	default:
		errs = append(errs, fmt.Errorf("location.provider %q is not one of google, gps, static", c.Location.Provider))
	}
	return errors.Join(errs...)
}
