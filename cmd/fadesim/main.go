package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"time"

	"github.com/coreman2200/funtimes-lumenbus/internal/driver/fake"
	"github.com/coreman2200/funtimes-lumenbus/internal/light"
)

// fadesim drives the batch light system against the fake driver with a
// scripted set of fades and prints what the hardware would have seen.
func main() {
	var (
		count     = flag.Int("lights", 8, "number of channels")
		hz        = flag.Int("hz", 50, "scheduler update rate (Hz)")
		batch     = flag.Int("batch", 4, "max entries per write burst")
		maxFadeMs = flag.Int64("max-fade-ms", 200, "driver fade capability (ms)")
		seconds   = flag.Float64("seconds", 2, "how long to run")
	)
	flag.Parse()

	drv := fake.New(*maxFadeMs)
	sys, err := light.New(light.Options{
		Sink:         drv,
		MaxBatchSize: *batch,
		UpdateHz:     *hz,
	})
	if err != nil {
		log.Fatalf("system: %v", err)
	}
	lights := make([]*light.Light, *count)
	for i := range lights {
		lights[i] = light.NewLight(int64(i), sys, drv)
	}

	ctx, cancel := context.WithTimeout(context.Background(), time.Duration(*seconds*float64(time.Second)))
	defer cancel()

	// script: a slow ramp across the first half of the bus, an instant snap
	// on the second half, then a staggered fade-out
	now := time.Now()
	for i, l := range lights {
		if i < len(lights)/2 {
			l.SetFade(light.Linear(0, 1, 800*time.Millisecond, now))
		} else {
			l.SetFade(light.Fixed(1))
		}
	}
	time.AfterFunc(time.Second, func() {
		now := time.Now()
		for i, l := range lights {
			start := now.Add(time.Duration(i) * 50 * time.Millisecond)
			l.SetFade(light.Linear(1, 0, 300*time.Millisecond, start))
		}
	})

	if err := sys.Run(ctx); err != nil {
		log.Fatalf("run: %v", err)
	}

	for i, b := range drv.Batches() {
		fmt.Printf("[batch %03d] size=%d fade_ms=%d channels=", i+1, len(b), b[0].FadeMs)
		for _, u := range b {
			fmt.Printf("%d:%.2f ", u.Light.Number(), u.Brightness)
		}
		fmt.Println()
	}
	fmt.Printf("total writes: %d\n", drv.Writes())
}
