package fake

import (
	"context"
	"sync"

	"github.com/rs/zerolog/log"

	"github.com/coreman2200/funtimes-lumenbus/internal/light"
)

// Driver records every dispatched batch; useful for tests, the simulator and
// headless bring-up. The fade capability is configurable so it can stand in
// for hardware families with and without native fades.
type Driver struct {
	fadeMs int64

	mu      sync.Mutex
	batches [][]light.Update
}

func New(maxFadeMs int64) *Driver {
	return &Driver{fadeMs: maxFadeMs}
}

func (d *Driver) MaxFadeMs() int64 { return d.fadeMs }

func (d *Driver) WriteBatch(_ context.Context, batch []light.Update) error {
	d.mu.Lock()
	d.batches = append(d.batches, append([]light.Update(nil), batch...))
	n := len(d.batches)
	d.mu.Unlock()
	log.Debug().Int("write", n).Int("size", len(batch)).Int64("fade_ms", batch[0].FadeMs).Msg("fake driver write")
	return nil
}

// Batches returns a snapshot of everything written so far.
func (d *Driver) Batches() [][]light.Update {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([][]light.Update(nil), d.batches...)
}

// Writes returns how many batches have been dispatched.
func (d *Driver) Writes() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.batches)
}

func (d *Driver) Close() error { return nil }
