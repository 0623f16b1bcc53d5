package location

// Location is a position fix with an accuracy radius in meters.
type Location struct {
	Latitude  float64
	Longitude float64
	Accuracy  float64
}
