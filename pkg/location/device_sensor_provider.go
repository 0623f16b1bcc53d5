package location

import (
	"bufio"
	"context"
	"errors"
	"io"
	"time"

	"github.com/benmeehan/trailsafe/pkg/telemetry"
)

// PortOpener opens the serial port of a GPS receiver.
type PortOpener func(name string, baud int) (io.ReadWriteCloser, error)

// DeviceSensorProvider reads the observer's position from a GPS receiver
// attached over serial.
type DeviceSensorProvider struct {
	port     string
	baudRate int
	openPort PortOpener
	decoder  telemetry.NMEADecoder
}

// NewDeviceSensorProvider creates a provider for the receiver on port.
func NewDeviceSensorProvider(port string, baudRate int, openPort PortOpener) *DeviceSensorProvider {
	return &DeviceSensorProvider{
		port:     port,
		baudRate: baudRate,
		openPort: openPort,
	}
}

// GetLocation reads sentences until one carries a valid fix or ctx ends.
func (d *DeviceSensorProvider) GetLocation(ctx context.Context) (Location, error) {
	s, err := d.openPort(d.port, d.baudRate)
	if err != nil {
		return Location{}, err
	}
	defer s.Close()

	// Closing the port unblocks the scanner when ctx ends first.
	stop := context.AfterFunc(ctx, func() { _ = s.Close() })
	defer stop()

	scanner := bufio.NewScanner(s)
	for scanner.Scan() {
		sample, err := d.decoder.Decode(scanner.Text(), time.Now())
		if err != nil {
			continue
		}
		return Location{Latitude: sample.Latitude, Longitude: sample.Longitude}, nil
	}

	if err := ctx.Err(); err != nil {
		return Location{}, err
	}
	if err := scanner.Err(); err != nil {
		return Location{}, err
	}
	return Location{}, errors.New("no valid GPS data found")
}
