package telemetry

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var stamp = time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

func TestDecode_ValidFragments(t *testing.T) {
	tests := []struct {
		name string
		raw  string
		lat  float64
		lon  float64
	}{
		{"surrounded by noise", "noise GPS: 10.85, 76.27 noise", 10.85, 76.27},
		{"bare fragment", "GPS: 10.85, 76.27", 10.85, 76.27},
		{"negative values", "fix ok GPS: -33.8688, -151.2093\n", -33.8688, -151.2093},
		{"explicit plus sign", "GPS: +45, +7.5", 45, 7.5},
		{"integers", "GPS: 0, 0", 0, 0},
		{"bounds inclusive", "GPS: -90, 180", -90, 180},
		{"trailing letters are noise", "GPS: 1.5, 2.5sats=7", 1.5, 2.5},
		{"first fragment wins", "GPS: 1, 2 GPS: 3, 4", 1, 2},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sample, err := Decode(tt.raw, stamp)
			require.NoError(t, err)
			assert.Equal(t, tt.lat, sample.Latitude)
			assert.Equal(t, tt.lon, sample.Longitude)
			assert.Equal(t, stamp, sample.ReceivedAt)
		})
	}
}

func TestDecode_Rejected(t *testing.T) {
	rejected := []string{
		"",
		"boot ok, waiting for fix",
		"GPS: 999, 10",
		"GPS: 10, 181",
		"GPS: -90.0001, 0",
		"GPS: 1.2.3, 4",
		"GPS: 10, 20.5.1",
		"GPS: .5, 10",
		"GPS: 10., 20",
		"GPS: abc, def",
		"GPS:10.85,76.27",
		"gps: 10.85, 76.27",
		"GPS: 1e5, 2",
		"GPS: 1000000000000000000000000000000000000000000000000000000000000000000000000000000000000000000000000000000000000000000000000000000000000000000000000000000000000000000000000000000000000000000000000000000000000000000000000000000000000000000000000000000000000000000000000000000000000000000000000000000000000, 1",
	}

	for _, raw := range rejected {
		sample, err := Decode(raw, stamp)
		assert.Truef(t, errors.Is(err, ErrDecodeRejected), "expected rejection for %q, got %v", raw, err)
		assert.Zero(t, sample)
	}
}

func TestDecode_Deterministic(t *testing.T) {
	inputs := []string{"noise GPS: 10.85, 76.27 noise", "GPS: 999, 10", "junk"}
	for _, raw := range inputs {
		first, firstErr := Decode(raw, stamp)
		for i := 0; i < 50; i++ {
			got, err := Decode(raw, stamp)
			assert.Equal(t, first, got)
			assert.Equal(t, firstErr, err)
		}
	}
}

func TestTextDecoder_ImplementsDecoder(t *testing.T) {
	var d Decoder = TextDecoder{}
	sample, err := d.Decode("GPS: 10.85, 76.27", stamp)
	require.NoError(t, err)
	assert.Equal(t, 10.85, sample.Latitude)
}

func TestNMEADecoder(t *testing.T) {
	d := NMEADecoder{}

	sample, err := d.Decode("$GPGGA,123519,4807.038,N,01131.000,E,1,08,0.9,545.4,M,46.9,M,,*47", stamp)
	require.NoError(t, err)
	assert.InDelta(t, 48.1173, sample.Latitude, 1e-4)
	assert.InDelta(t, 11.516667, sample.Longitude, 1e-4)

	// Fix quality 0 means no fix.
	_, err = d.Decode("$GPGGA,123519,4807.038,N,01131.000,E,0,08,0.9,545.4,M,46.9,M,,*46", stamp)
	assert.ErrorIs(t, err, ErrDecodeRejected)

	// Bad checksum.
	_, err = d.Decode("$GPGGA,123519,4807.038,N,01131.000,E,1,08,0.9,545.4,M,46.9,M,,*00", stamp)
	assert.ErrorIs(t, err, ErrDecodeRejected)

	_, err = d.Decode("GPS: 10.85, 76.27", stamp)
	assert.ErrorIs(t, err, ErrDecodeRejected)
}

func TestForFormat(t *testing.T) {
	d, err := ForFormat("")
	require.NoError(t, err)
	assert.IsType(t, TextDecoder{}, d)

	d, err = ForFormat("nmea")
	require.NoError(t, err)
	assert.IsType(t, NMEADecoder{}, d)

	d, err = ForFormat("json")
	require.NoError(t, err)
	assert.IsType(t, JSONDecoder{}, d)

	_, err = ForFormat("protobuf")
	assert.Error(t, err)
}

func TestJSONDecoder(t *testing.T) {
	tests := []struct {
		name string
		raw  string
		lat  float64
		lon  float64
	}{
		{"short keys", `{"lat": 10.85, "lon": 76.27}`, 10.85, 76.27},
		{"long keys", `{"latitude": -33.5, "longitude": 151.2, "sats": 7}`, -33.5, 151.2},
		{"nested gps", `{"id": "t1", "gps": {"lat": 1, "lng": 2}}`, 1, 2},
		{"nested location", `{"location": {"latitude": 3, "longitude": 4}}`, 3, 4},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sample, err := JSONDecoder{}.Decode(tt.raw, stamp)
			require.NoError(t, err)
			assert.Equal(t, tt.lat, sample.Latitude)
			assert.Equal(t, tt.lon, sample.Longitude)
			assert.Equal(t, stamp, sample.ReceivedAt)
		})
	}

	for _, raw := range []string{
		`GPS: 1, 2`,
		`{"lat": "10.85", "lon": 76.27}`,
		`{"lat": 10.85}`,
		`{"lat": 91, "lon": 0}`,
		`{"lat": 1, "lon": 2`,
	} {
		_, err := JSONDecoder{}.Decode(raw, stamp)
		assert.ErrorIs(t, err, ErrDecodeRejected, raw)
	}
}
