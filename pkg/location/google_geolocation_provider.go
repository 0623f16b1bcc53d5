package location

import (
	"context"

	"github.com/rs/zerolog"
	"googlemaps.github.io/maps"
)

// Geolocator is the part of the Maps client used for geolocation.
type Geolocator interface {
	Geolocate(ctx context.Context, r *maps.GeolocationRequest) (*maps.GeolocationResult, error)
}

// GoogleGeolocationProvider locates the observer with the Google Geolocation API.
// Nearby WiFi access points and cell towers are added when the host can list
// them; otherwise the lookup falls back to the public IP.
type GoogleGeolocationProvider struct {
	client     Geolocator
	modemIndex int
	scanRadios bool
	logger     zerolog.Logger
}

// NewGoogleGeolocationProvider creates a provider backed by a Maps client for apiKey.
func NewGoogleGeolocationProvider(apiKey string, modemIndex int, logger zerolog.Logger) (*GoogleGeolocationProvider, error) {
	c, err := maps.NewClient(maps.WithAPIKey(apiKey))
	if err != nil {
		return nil, err
	}
	return newGoogleGeolocationProvider(c, modemIndex, true, logger), nil
}

func newGoogleGeolocationProvider(client Geolocator, modemIndex int, scanRadios bool, logger zerolog.Logger) *GoogleGeolocationProvider {
	return &GoogleGeolocationProvider{
		client:     client,
		modemIndex: modemIndex,
		scanRadios: scanRadios,
		logger:     logger.With().Str("provider", "google_geolocation").Logger(),
	}
}

// GetLocation implements Provider.
func (g *GoogleGeolocationProvider) GetLocation(ctx context.Context) (Location, error) {
	req := &maps.GeolocationRequest{ConsiderIP: true}

	if g.scanRadios {
		if aps, err := getWiFiAccessPoints(ctx); err != nil {
			g.logger.Debug().Err(err).Msg("WiFi access points unavailable")
		} else {
			req.WiFiAccessPoints = aps
		}
		if towers, err := getCellTowers(ctx, g.modemIndex); err != nil {
			g.logger.Debug().Err(err).Msg("Cell towers unavailable")
		} else {
			req.CellTowers = towers
		}
	}

	resp, err := g.client.Geolocate(ctx, req)
	if err != nil {
		return Location{}, err
	}

	return Location{
		Latitude:  resp.Location.Lat,
		Longitude: resp.Location.Lng,
		Accuracy:  resp.Accuracy,
	}, nil
}
