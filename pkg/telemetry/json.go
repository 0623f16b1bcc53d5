package telemetry

import (
	"time"

	"github.com/tidwall/gjson"

	"github.com/benmeehan/trailsafe/internal/models"
)

// JSONDecoder reads a fix from a JSON object such as {"lat":10.8,"lon":76.2}.
// Coordinates may also sit under "gps" or "location".
type JSONDecoder struct{}

var (
	latPaths = []string{"lat", "latitude", "gps.lat", "gps.latitude", "location.lat", "location.latitude"}
	lonPaths = []string{"lon", "lng", "longitude", "gps.lon", "gps.lng", "gps.longitude", "location.lon", "location.lng", "location.longitude"}
)

// Decode implements Decoder.
func (JSONDecoder) Decode(raw string, receivedAt time.Time) (models.LocationSample, error) {
	if !gjson.Valid(raw) {
		return models.LocationSample{}, ErrDecodeRejected
	}
	lat, ok := firstNumber(raw, latPaths)
	if !ok {
		return models.LocationSample{}, ErrDecodeRejected
	}
	lon, ok := firstNumber(raw, lonPaths)
	if !ok {
		return models.LocationSample{}, ErrDecodeRejected
	}
	return NewSample(lat, lon, receivedAt)
}

func firstNumber(raw string, paths []string) (float64, bool) {
	for _, r := range gjson.GetMany(raw, paths...) {
		if r.Type == gjson.Number {
			return r.Float(), true
		}
	}
	return 0, false
}
