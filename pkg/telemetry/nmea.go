package telemetry

import (
	"bufio"
	"strings"
	"time"

	"github.com/adrianmo/go-nmea"

	"github.com/benmeehan/trailsafe/internal/models"
)

// NMEADecoder accepts GGA and RMC sentences carrying a valid fix.
// Trackers attached over serial often emit plain NMEA instead of the text format.
type NMEADecoder struct{}

// Decode implements Decoder. The first usable sentence in raw wins.
func (NMEADecoder) Decode(raw string, receivedAt time.Time) (models.LocationSample, error) {
	scanner := bufio.NewScanner(strings.NewReader(raw))
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if !strings.HasPrefix(line, "$") {
			continue
		}

		sentence, err := nmea.Parse(line)
		if err != nil {
			continue
		}

		switch s := sentence.(type) {
		case nmea.GGA:
			if s.FixQuality == nmea.Invalid || s.FixQuality == "" {
				continue
			}
			return NewSample(s.Latitude, s.Longitude, receivedAt)
		case nmea.RMC:
			if s.Validity != nmea.ValidRMC {
				continue
			}
			return NewSample(s.Latitude, s.Longitude, receivedAt)
		}
	}
	return models.LocationSample{}, ErrDecodeRejected
}
