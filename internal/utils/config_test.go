package utils

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/benmeehan/trailsafe/internal/mocks"
	"github.com/benmeehan/trailsafe/internal/models"
	"github.com/benmeehan/trailsafe/pkg/file"
)

const sampleConfig = `
mqtt:
  broker: tcp://localhost:1883
session:
  max_reconnect_attempts: -1
  close_timeout: 1s
devices:
  - id: "AA:BB:CC:DD:EE:FF"
    transport: ble
    service_id: "6e400001-b5a3-f393-e0a9-e50e24dcca9e"
    characteristic_id: "6e400003-b5a3-f393-e0a9-e50e24dcca9e"
  - id: bench
    transport: websocket
    endpoint_url: ws://192.168.4.1:81/
services:
  relay:
    enabled: true
    min_interval: 2s
`

func TestLoadConfigDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(sampleConfig), 0600))

	cfg, err := LoadConfig(path, file.NewFileService())
	require.NoError(t, err)

	assert.Equal(t, -1, cfg.Session.MaxReconnectAttempts)
	assert.Equal(t, time.Second, cfg.Session.CloseTimeout)
	assert.Equal(t, 500*time.Millisecond, cfg.Session.ReconnectBackoffInitial)
	assert.Equal(t, 5*time.Second, cfg.Bluetooth.ScanTimeout)
	assert.Equal(t, 2*time.Second, cfg.Services.Relay.MinInterval)
	assert.Equal(t, "trailsafe/location", cfg.Services.Relay.Topic)
	assert.Equal(t, "walking", cfg.Location.DirectionsMode)

	require.Len(t, cfg.Devices, 2)
	assert.Equal(t, models.TransportBLE, cfg.Devices[0].Transport)
	assert.Equal(t, "TrailSafe", cfg.Devices[0].NamePattern)
	assert.Empty(t, cfg.Devices[1].NamePattern)
}

func TestLoadConfigReadError(t *testing.T) {
	fileOps := new(mocks.MockFileOperations)
	fileOps.On("ReadYamlFile", "missing.yaml", mock.Anything).Return(errors.New("no such file"))

	_, err := LoadConfig("missing.yaml", fileOps)
	assert.EqualError(t, err, "no such file")
}

func TestConfigValidate(t *testing.T) {
	var cfg Config
	cfg.Devices = []models.DeviceDescriptor{
		{ID: "a", Transport: models.TransportSerial, Port: "/dev/ttyUSB0"},
		{ID: "a", Transport: models.TransportSerial, Port: "/dev/ttyUSB1"},
		{ID: "b", Transport: models.TransportWebSocket, EndpointURL: "http://x"},
	}
	cfg.Services.Relay.Enabled = true
	cfg.applyDefaults()

	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "duplicate device id")
	assert.Contains(t, err.Error(), "ws or wss")
	assert.Contains(t, err.Error(), "mqtt.broker is required")
}
