package main

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/benmeehan/trailsafe/internal/models"
)

func TestParseDeviceFlags(t *testing.T) {
	rec, err := parseDeviceFlags([]string{
		"--id", "AA:BB:CC:DD:EE:FF",
		"--service-id", "6e400001-b5a3-f393-e0a9-e50e24dcca9e",
		"--characteristic-id", "6e400003-b5a3-f393-e0a9-e50e24dcca9e",
		"--label", "Asha",
		"--phone", "+911234567890",
	}, "TrailSafe")
	require.NoError(t, err)
	assert.Equal(t, models.TransportBLE, rec.Descriptor.Transport)
	assert.Equal(t, "TrailSafe", rec.Descriptor.NamePattern)
	assert.Equal(t, "Asha", rec.Label)
	assert.Equal(t, "+911234567890", rec.Phone)

	_, err = parseDeviceFlags([]string{"--id", "x", "--transport", "websocket", "--endpoint", "http://x"}, "")
	assert.Error(t, err)
}
