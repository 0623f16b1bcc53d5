package transport

import (
	"bufio"
	"context"
	"errors"
	"io"
	"strings"

	"github.com/rs/zerolog"
	"github.com/tarm/serial"

	"github.com/benmeehan/trailsafe/internal/constants"
	"github.com/benmeehan/trailsafe/internal/models"
)

const defaultBaudRate = 9600

// PortOpener opens a serial port. It exists so tests can substitute a pipe.
type PortOpener func(name string, baud int) (io.ReadWriteCloser, error)

// OpenSerialPort opens a real serial device.
func OpenSerialPort(name string, baud int) (io.ReadWriteCloser, error) {
	port, err := serial.OpenPort(&serial.Config{Name: name, Baud: baud})
	if err != nil {
		return nil, err
	}
	return port, nil
}

// SerialOpener reads newline-delimited output from a tracker attached over USB serial.
type SerialOpener struct {
	openPort PortOpener
	logger   zerolog.Logger
}

// NewSerialOpener creates an opener. A nil openPort uses OpenSerialPort.
func NewSerialOpener(openPort PortOpener, logger zerolog.Logger) *SerialOpener {
	if openPort == nil {
		openPort = OpenSerialPort
	}
	return &SerialOpener{
		openPort: openPort,
		logger:   logger.With().Str("transport", "serial").Logger(),
	}
}

// Open implements Opener.
func (o *SerialOpener) Open(ctx context.Context, device models.DeviceDescriptor) (Subscription, error) {
	if err := ctx.Err(); err != nil {
		return nil, unavailable("serial open", err)
	}
	if device.Port == "" {
		return nil, unavailable("serial open", errors.New("port is empty"))
	}

	baud := device.BaudRate
	if baud <= 0 {
		baud = defaultBaudRate
	}

	port, err := o.openPort(device.Port, baud)
	if err != nil {
		return nil, unavailable("serial open", err)
	}

	s := newStream(constants.EventBuffer, port.Close)
	logger := o.logger.With().Str("device_id", device.ID).Str("port", device.Port).Logger()
	logger.Info().Int("baud", baud).Msg("Serial port opened")

	go func() {
		scanner := bufio.NewScanner(port)
		for scanner.Scan() {
			line := strings.TrimRight(scanner.Text(), "\r")
			if line == "" {
				continue
			}
			if !s.deliver(line) {
				return
			}
		}
		if s.closed() {
			return
		}
		err := scanner.Err()
		if err == nil {
			err = io.EOF
		}
		logger.Warn().Err(err).Msg("Serial read ended")
		s.fail(dropped("serial read", err))
	}()

	return s, nil
}
