package telemetry

import (
	"errors"
	"fmt"
	"math"
	"regexp"
	"strconv"
	"time"

	"github.com/benmeehan/trailsafe/internal/models"
)

// ErrDecodeRejected is returned for any payload that does not carry a usable fix.
var ErrDecodeRejected = errors.New("decode rejected")

// Decoder turns a raw payload into a validated sample.
// Implementations must be pure: the same input always yields the same output.
type Decoder interface {
	Decode(raw string, receivedAt time.Time) (models.LocationSample, error)
}

// DecoderFunc adapts a function to the Decoder interface.
type DecoderFunc func(raw string, receivedAt time.Time) (models.LocationSample, error)

func (f DecoderFunc) Decode(raw string, receivedAt time.Time) (models.LocationSample, error) {
	return f(raw, receivedAt)
}

// The trailing group rejects numbers that run on into more digits or dots ("1.2.3").
var gpsLine = regexp.MustCompile(`GPS: ([+-]?\d+(?:\.\d+)?), ([+-]?\d+(?:\.\d+)?)(?:[^\d.]|$)`)

// TextDecoder recognizes the "GPS: <lat>, <lon>" fragment in free-text firmware output.
type TextDecoder struct{}

// Decode implements Decoder.
func (TextDecoder) Decode(raw string, receivedAt time.Time) (models.LocationSample, error) {
	return Decode(raw, receivedAt)
}

// Decode extracts the first well-formed GPS fragment from raw.
func Decode(raw string, receivedAt time.Time) (models.LocationSample, error) {
	m := gpsLine.FindStringSubmatch(raw)
	if m == nil {
		return models.LocationSample{}, ErrDecodeRejected
	}

	lat, err := parseCoordinate(m[1])
	if err != nil {
		return models.LocationSample{}, err
	}
	lon, err := parseCoordinate(m[2])
	if err != nil {
		return models.LocationSample{}, err
	}

	return NewSample(lat, lon, receivedAt)
}

// NewSample validates a coordinate pair and builds a sample from it.
func NewSample(lat, lon float64, receivedAt time.Time) (models.LocationSample, error) {
	if !ValidCoordinates(lat, lon) {
		return models.LocationSample{}, fmt.Errorf("%w: coordinates out of range (%v, %v)", ErrDecodeRejected, lat, lon)
	}
	return models.LocationSample{
		Latitude:   lat,
		Longitude:  lon,
		ReceivedAt: receivedAt,
	}, nil
}

// ValidCoordinates reports whether lat/lon are finite and within geographic bounds.
func ValidCoordinates(lat, lon float64) bool {
	if math.IsNaN(lat) || math.IsNaN(lon) || math.IsInf(lat, 0) || math.IsInf(lon, 0) {
		return false
	}
	return lat >= -90 && lat <= 90 && lon >= -180 && lon <= 180
}

func parseCoordinate(s string) (float64, error) {
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrDecodeRejected, err)
	}
	return v, nil
}

// ForFormat returns the decoder for a descriptor format; empty selects the text decoder.
func ForFormat(format string) (Decoder, error) {
	switch format {
	case "", models.FormatGPSText:
		return TextDecoder{}, nil
	case models.FormatNMEA:
		return NMEADecoder{}, nil
	case models.FormatJSON:
		return JSONDecoder{}, nil
	default:
		return nil, fmt.Errorf("unknown telemetry format %q", format)
	}
}
