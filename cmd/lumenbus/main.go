package main

import (
	"context"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/coreman2200/funtimes-lumenbus/internal/config"
	"github.com/coreman2200/funtimes-lumenbus/internal/driver/fake"
	"github.com/coreman2200/funtimes-lumenbus/internal/driver/spidev"
	"github.com/coreman2200/funtimes-lumenbus/internal/light"
	"github.com/coreman2200/funtimes-lumenbus/internal/monitor"
)

// driver is what both hardware families provide: a write sink, the fade
// capability, and a way to release the bus.
type driver interface {
	light.Sink
	light.Platform
	Close() error
}

func main() {
	// ---- Flags (remain usable; config.yaml can override most) ----
	var (
		count      = flag.Int("lights", 64, "number of channels on the bus")
		hz         = flag.Int("hz", 30, "scheduler update rate (Hz)")
		batch      = flag.Int("batch", 16, "max entries per write burst")
		driverName = flag.String("driver", "fake", "driver: spi | fake")
		maxFadeMs  = flag.Int64("max-fade-ms", 1000, "fade capability of the fake driver (ms)")
		spiDev     = flag.String("spi-dev", "", "spidev port (empty = first available)")
		spiKHz     = flag.Int("spi-khz", 2500, "SPI clock (kHz)")
		addr       = flag.String("addr", ":8080", "monitor HTTP listen address")
		monitorOn  = flag.Bool("monitor", false, "enable the websocket batch monitor")
		configPath = flag.String("config", "config.yaml", "path to config.yaml")
		logLevel   = flag.String("log-level", "info", "zerolog level")
		lampTestOn = flag.Bool("lamp-test", true, "sweep all channels up and down on startup")
	)
	flag.Parse()

	// ---- Logging ----
	zerolog.TimeFieldFormat = time.RFC3339
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: time.Kitchen})

	// ---- Load config.yaml (optional) ----
	var cfg *config.Config
	if c, err := config.Load(*configPath); err != nil {
		log.Warn().Err(err).Str("path", *configPath).Msg("config load failed; proceeding with flags")
	} else if err := c.Validate(); err != nil {
		log.Fatal().Err(err).Str("path", *configPath).Msg("invalid config")
	} else {
		cfg = c
	}

	// ---- Effective params (config overrides flags where available) ----
	eCount, eHz, eBatch := *count, *hz, *batch
	eDriver, eFade := *driverName, *maxFadeMs
	eSpiDev, eSpiKHz := *spiDev, *spiKHz
	eAddr, eMonitor := *addr, *monitorOn
	eLevel := *logLevel
	if cfg != nil {
		eCount, eHz, eBatch = cfg.Lights, cfg.UpdateHz, cfg.MaxBatchSize
		if cfg.Driver != "" {
			eDriver = cfg.Driver
		}
		if cfg.MaxFadeMs > 0 {
			eFade = cfg.MaxFadeMs
		}
		if cfg.SPI.Dev != "" {
			eSpiDev = cfg.SPI.Dev
		}
		if cfg.SPI.SpeedKHz != 0 {
			eSpiKHz = cfg.SPI.SpeedKHz
		}
		if cfg.Monitor.Addr != "" {
			eAddr = cfg.Monitor.Addr
		}
		eMonitor = eMonitor || cfg.Monitor.Enabled
		if cfg.LogLevel != "" {
			eLevel = cfg.LogLevel
		}
	}
	if lvl, err := zerolog.ParseLevel(eLevel); err != nil {
		log.Warn().Str("level", eLevel).Msg("unknown log level; keeping info")
	} else {
		zerolog.SetGlobalLevel(lvl)
	}

	// ---- Driver selection with fallback ----
	var drv driver
	switch eDriver {
	case "spi":
		d, err := spidev.New(eSpiDev, eCount, eSpiKHz)
		if err != nil {
			log.Warn().Err(err).Str("dev", eSpiDev).Msg("SPI init failed; falling back to fake driver")
			drv = fake.New(eFade)
			eDriver = "fake"
		} else {
			drv = d
		}
	case "fake":
		drv = fake.New(eFade)
	default:
		log.Warn().Str("driver", eDriver).Msg("unknown driver; using fake")
		drv = fake.New(eFade)
		eDriver = "fake"
	}

	// ---- Monitor ----
	var mon *monitor.Monitor
	var onBatch func([]light.Update)
	if eMonitor {
		monitor.Enable()
		mon = monitor.New()
		onBatch = mon.Publish
	}

	// ---- Batch light system ----
	sys, err := light.New(light.Options{
		Sink:         drv,
		MaxBatchSize: eBatch,
		UpdateHz:     eHz,
		OnBatch:      onBatch,
	})
	if err != nil {
		log.Fatal().Err(err).Msg("light system construction failed")
	}
	lights := make([]*light.Light, eCount)
	for i := range lights {
		lights[i] = light.NewLight(int64(i), sys, drv)
	}

	ctx := context.Background()
	sys.Start(ctx)
	log.Info().Int("lights", eCount).Int("hz", eHz).Int("batch", eBatch).Str("driver", eDriver).Msg("light system running")

	if *lampTestOn {
		lampTest(lights)
	}

	var srv *http.Server
	if mon != nil {
		mux := http.NewServeMux()
		mux.HandleFunc("/batches", mon.HandleBatchesWS)
		mux.HandleFunc("/health", mon.HandleHealth)
		srv = &http.Server{
			Addr:         eAddr,
			Handler:      mux,
			ReadTimeout:  5 * time.Second,
			WriteTimeout: 10 * time.Second,
			IdleTimeout:  60 * time.Second,
		}
		go func() {
			log.Info().Str("addr", eAddr).Msg("monitor HTTP server starting")
			if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				log.Fatal().Err(err).Msg("monitor server crashed")
			}
		}()
	}

	// ---- Graceful shutdown ----
	ch := make(chan os.Signal, 1)
	signal.Notify(ch, syscall.SIGINT, syscall.SIGTERM)
	select {
	case s := <-ch:
		log.Info().Str("signal", s.String()).Msg("shutting down")
	case <-sys.Done():
		log.Error().Err(sys.Err()).Msg("light system terminated")
	}

	sys.Stop()
	if srv != nil {
		_ = srv.Close()
	}
	monitor.Disable()
	if err := drv.Close(); err != nil {
		log.Warn().Err(err).Msg("driver close")
	}
	if err := sys.Err(); err != nil {
		os.Exit(1)
	}
}

// lampTest sweeps every channel to full and back, confirming bus wiring.
func lampTest(lights []*light.Light) {
	now := time.Now()
	for _, l := range lights {
		l.SetFade(light.Linear(0, 1, 250*time.Millisecond, now))
	}
	time.AfterFunc(600*time.Millisecond, func() {
		now := time.Now()
		for _, l := range lights {
			l.SetFade(light.Linear(1, 0, 250*time.Millisecond, now))
		}
	})
}
