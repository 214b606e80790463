package spidev

import (
	"context"
	"fmt"
	"image"
	"image/color"
	"sync"

	"github.com/rs/zerolog/log"
	"periph.io/x/conn/v3/display"
	"periph.io/x/conn/v3/physic"
	"periph.io/x/conn/v3/spi/spireg"
	"periph.io/x/devices/v3/nrzled"
	"periph.io/x/extra/devices/screen"
	"periph.io/x/host/v3"

	"github.com/coreman2200/funtimes-lumenbus/internal/light"
)

const dfltSpeedKHz = 2500

// Driver writes batches to a chain of NRZ LEDs behind a spidev port. The
// chain latches levels the moment they are written, so MaxFadeMs is zero and
// ramps reach this driver as stepped updates from the scheduler.
type Driver struct {
	mu     sync.Mutex
	drawer display.Drawer
	levels []byte // one brightness byte per channel, indexed by bus number
	SPI    bool   // false when running on the terminal fallback
}

// New initialises the host, opens the given SPI port (empty name = first
// available) and prepares a chain of count channels. Without a usable port
// it falls back to drawing on the terminal.
func New(dev string, count, speedKHz int) (*Driver, error) {
	if count <= 0 {
		return nil, fmt.Errorf("spidev: invalid channel count %d", count)
	}
	if speedKHz <= 0 {
		speedKHz = dfltSpeedKHz
	}
	if _, err := host.Init(); err != nil {
		return nil, fmt.Errorf("spidev: host init: %w", err)
	}
	d := &Driver{levels: make([]byte, count)}
	port, err := spireg.Open(dev)
	if err != nil {
		log.Warn().Err(err).Str("dev", dev).Msg("no SPI port, drawing to the terminal")
		d.drawer = screen.New(count)
		return d, nil
	}
	opts := nrzled.Opts{
		NumPixels: count,
		Channels:  3,
		Freq:      physic.Frequency(speedKHz) * physic.KiloHertz,
	}
	chain, err := nrzled.NewSPI(port, &opts)
	if err != nil {
		_ = port.Close()
		return nil, fmt.Errorf("spidev: nrzled: %w", err)
	}
	d.drawer = chain
	d.SPI = true
	return d, nil
}

// NewFromDrawer wraps an existing drawer (used with spitest doubles).
func NewFromDrawer(drawer display.Drawer, count int) (*Driver, error) {
	if count <= 0 {
		return nil, fmt.Errorf("spidev: invalid channel count %d", count)
	}
	return &Driver{drawer: drawer, levels: make([]byte, count), SPI: true}, nil
}

// MaxFadeMs reports the chain's fade capability: none.
func (d *Driver) MaxFadeMs() int64 { return 0 }

// WriteBatch applies the batch to the level frame and pushes the whole frame
// down the chain. Entries outside the chain are rejected, not truncated.
func (d *Driver) WriteBatch(_ context.Context, batch []light.Update) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	for _, u := range batch {
		n := u.Light.Number()
		if n < 0 || n >= int64(len(d.levels)) {
			return fmt.Errorf("spidev: channel %d outside chain of %d", n, len(d.levels))
		}
		d.levels[n] = levelByte(u.Brightness)
	}
	img := image.NewNRGBA(image.Rect(0, 0, len(d.levels), 1))
	for i, v := range d.levels {
		img.SetNRGBA(i, 0, color.NRGBA{R: v, G: v, B: v, A: 0xFF})
	}
	if err := d.drawer.Draw(d.drawer.Bounds(), img, image.Point{}); err != nil {
		return fmt.Errorf("spidev: draw: %w", err)
	}
	return nil
}

// Levels returns a copy of the current frame.
func (d *Driver) Levels() []byte {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]byte(nil), d.levels...)
}

func (d *Driver) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.drawer.Halt()
}

func levelByte(brightness float64) byte {
	if brightness <= 0 {
		return 0
	}
	if brightness >= 1 {
		return 0xFF
	}
	return byte(brightness*255 + 0.5)
}
