package transport

import (
	"context"
	"errors"
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/benmeehan/trailsafe/internal/models"
)

type pipePort struct {
	*io.PipeReader
	writer *io.PipeWriter
}

func (p *pipePort) Write(b []byte) (int, error) { return len(b), nil }

func (p *pipePort) Close() error {
	_ = p.writer.Close()
	return p.PipeReader.Close()
}

func newPipePort() (*pipePort, *io.PipeWriter) {
	r, w := io.Pipe()
	return &pipePort{PipeReader: r, writer: w}, w
}

func serialDevice() models.DeviceDescriptor {
	return models.DeviceDescriptor{
		ID:        "usb-tracker",
		Transport: models.TransportSerial,
		Format:    models.FormatGPSText,
		Port:      "/dev/ttyUSB0",
	}
}

func TestSerialDeliversLines(t *testing.T) {
	port, w := newPipePort()
	var gotBaud int
	opener := NewSerialOpener(func(name string, baud int) (io.ReadWriteCloser, error) {
		gotBaud = baud
		return port, nil
	}, testLogger)

	sub, err := opener.Open(context.Background(), serialDevice())
	require.NoError(t, err)
	defer sub.Close()
	assert.Equal(t, defaultBaudRate, gotBaud)

	go func() {
		_, _ = w.Write([]byte("GPS: 1, 2\r\n\nGPS: 3, 4\n"))
	}()

	assert.Equal(t, "GPS: 1, 2", nextEvent(t, sub).Payload.Raw)
	assert.Equal(t, "GPS: 3, 4", nextEvent(t, sub).Payload.Raw)
}

func TestSerialEOFIsLinkDropped(t *testing.T) {
	port, w := newPipePort()
	opener := NewSerialOpener(func(string, int) (io.ReadWriteCloser, error) { return port, nil }, testLogger)

	sub, err := opener.Open(context.Background(), serialDevice())
	require.NoError(t, err)
	defer sub.Close()

	require.NoError(t, w.Close())
	ev := nextEvent(t, sub)
	assert.ErrorIs(t, ev.Err, ErrLinkDropped)
	assert.ErrorIs(t, ev.Err, io.EOF)
}

func TestSerialOpenFailure(t *testing.T) {
	opener := NewSerialOpener(func(string, int) (io.ReadWriteCloser, error) {
		return nil, errors.New("no such file")
	}, testLogger)

	_, err := opener.Open(context.Background(), serialDevice())
	assert.ErrorIs(t, err, ErrTransportUnavailable)

	dev := serialDevice()
	dev.Port = ""
	_, err = opener.Open(context.Background(), dev)
	assert.ErrorIs(t, err, ErrTransportUnavailable)
}
