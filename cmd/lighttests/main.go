package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/tigerbot-team/tigerbot/go-localizer/pkg/colorsensor"
	"github.com/tigerbot-team/tigerbot/go-localizer/pkg/config"
	"github.com/tigerbot-team/tigerbot/go-localizer/pkg/lightsensor"
)

// Streams raw and differential light readings so the detection threshold
// can be tuned by rolling the bot over a grid line by hand.
func main() {
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})

	configPath := flag.String("config", os.Getenv("LIGHTLOC_CONFIG"), "YAML config file")
	interval := flag.Duration("interval", 50*time.Millisecond, "print interval")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load config")
	}

	sensor, err := colorsensor.New(cfg.Hardware.LightBus)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to open sensor")
	}
	defer func() {
		_ = sensor.Close()
	}()
	err = sensor.Configure(cfg.Hardware.LightIntegrationSteps, colorsensor.Gain(cfg.Hardware.LightGain))
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to configure sensor")
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	poller := lightsensor.New(sensor, cfg.LightSensor, lightsensor.WithLogger(log.Logger))
	var wg sync.WaitGroup
	wg.Add(1)
	go poller.Loop(ctx, &wg)

	threshold := cfg.Localizer.Threshold
	ticker := time.NewTicker(*interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			wg.Wait()
			return
		case <-ticker.C:
		}
		raw, err := sensor.ReadRaw()
		if err != nil {
			fmt.Println("Failed to read sensor:", err)
			continue
		}
		d := poller.ReadDifferential()
		marker := ""
		if d > threshold {
			marker = "  <== LINE"
		}
		fmt.Printf("C=%5d R=%5d G=%5d B=%5d diff=%+.4f%s\n", raw.C, raw.R, raw.G, raw.B, d, marker)
	}
}
