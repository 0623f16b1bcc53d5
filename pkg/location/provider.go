package location

import "context"

// Provider reports the observer's own position, the origin for directions.
type Provider interface {
	GetLocation(ctx context.Context) (Location, error)
}

// StaticProvider always reports the same configured position.
type StaticProvider struct {
	Location Location
}

func (p StaticProvider) GetLocation(ctx context.Context) (Location, error) {
	if err := ctx.Err(); err != nil {
		return Location{}, err
	}
	return p.Location, nil
}
