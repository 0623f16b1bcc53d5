package location

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strconv"
	"time"

	"googlemaps.github.io/maps"

	"github.com/benmeehan/trailsafe/internal/models"
)

const directionsBaseURL = "https://www.google.com/maps/dir/"

// DirectionsURL returns a Google Maps link with directions to the position.
func DirectionsURL(lat, lon float64) string {
	q := url.Values{}
	q.Set("api", "1")
	q.Set("destination", formatLatLng(lat, lon))
	return directionsBaseURL + "?" + q.Encode()
}

func formatLatLng(lat, lon float64) string {
	return strconv.FormatFloat(lat, 'f', -1, 64) + "," + strconv.FormatFloat(lon, 'f', -1, 64)
}

// DirectionsClient is the part of the Maps client used for routing.
type DirectionsClient interface {
	Directions(ctx context.Context, r *maps.DirectionsRequest) ([]maps.Route, []maps.GeocodedWaypoint, error)
}

// RouteSummary describes the route from the observer to a tracker.
type RouteSummary struct {
	Origin         Location      `json:"origin"`
	DistanceMeters int           `json:"distance_meters"`
	Distance       string        `json:"distance"`
	Duration       time.Duration `json:"duration"`
	Summary        string        `json:"summary,omitempty"`
	URL            string        `json:"url"`
}

// RouteSummarizer computes routes from the observer's position to a tracker.
type RouteSummarizer struct {
	client   DirectionsClient
	observer Provider
	mode     maps.Mode
}

// NewRouteSummarizer creates a summarizer using a Maps client for apiKey.
// An empty mode defaults to walking.
func NewRouteSummarizer(apiKey string, observer Provider, mode string) (*RouteSummarizer, error) {
	if apiKey == "" {
		return nil, errors.New("maps api key is required for route summaries")
	}
	c, err := maps.NewClient(maps.WithAPIKey(apiKey))
	if err != nil {
		return nil, err
	}
	return NewRouteSummarizerWithClient(c, observer, mode), nil
}

func NewRouteSummarizerWithClient(client DirectionsClient, observer Provider, mode string) *RouteSummarizer {
	m := maps.Mode(mode)
	if m == "" {
		m = maps.TravelModeWalking
	}
	return &RouteSummarizer{client: client, observer: observer, mode: m}
}

// Summarize routes from the observer to target and totals every leg.
func (r *RouteSummarizer) Summarize(ctx context.Context, target models.LocationSample) (RouteSummary, error) {
	origin, err := r.observer.GetLocation(ctx)
	if err != nil {
		return RouteSummary{}, fmt.Errorf("failed to locate observer: %w", err)
	}

	routes, _, err := r.client.Directions(ctx, &maps.DirectionsRequest{
		Origin:      formatLatLng(origin.Latitude, origin.Longitude),
		Destination: formatLatLng(target.Latitude, target.Longitude),
		Mode:        r.mode,
	})
	if err != nil {
		return RouteSummary{}, fmt.Errorf("directions request failed: %w", err)
	}
	if len(routes) == 0 {
		return RouteSummary{}, errors.New("no route found")
	}

	summary := RouteSummary{
		Origin:  origin,
		Summary: routes[0].Summary,
		URL:     DirectionsURL(target.Latitude, target.Longitude),
	}
	for _, leg := range routes[0].Legs {
		if leg == nil {
			continue
		}
		summary.DistanceMeters += leg.Distance.Meters
		summary.Duration += leg.Duration
	}
	summary.Distance = formatDistance(summary.DistanceMeters)
	return summary, nil
}

func formatDistance(meters int) string {
	if meters < 1000 {
		return strconv.Itoa(meters) + " m"
	}
	return strconv.FormatFloat(float64(meters)/1000, 'f', 1, 64) + " km"
}
