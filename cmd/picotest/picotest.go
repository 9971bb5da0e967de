package main

import (
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/tigerbot-team/tigerbot/go-localizer/pkg/picobldc"
)

// Spins both wheels at a fixed speed for a while and reports how far the
// encoders think they turned.  Handy for checking wheel speed scaling.
func main() {
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})

	speed := flag.Float64("speed", 180, "wheel speed in degrees/second")
	duration := flag.Duration("for", 2*time.Second, "how long to spin")
	flag.Parse()

	fmt.Println("Pico-BLDC test program")
	pico, err := picobldc.New(log.Logger)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to open Pico-BLDC")
	}
	defer func() {
		_ = pico.Stop(true)
		_ = pico.Close()
	}()
	fmt.Println("Created PicoBLDC object. Enabling watchdog...")

	if err := pico.SetWatchdog(time.Second); err != nil {
		log.Fatal().Err(err).Msg("Failed to enable watchdog")
	}
	fmt.Println("Watchdog enabled.")

	tracker := picobldc.NewWheelTracker(pico, picobldc.PerMotorVal[float64]{})
	if _, err := tracker.Poll(); err != nil {
		log.Fatal().Err(err).Msg("Failed to read encoders")
	}

	start := time.Now()
	for time.Since(start) < *duration {
		if err := pico.SetWheelSpeeds(*speed, *speed); err != nil {
			fmt.Println("Failed to set speeds:", err)
		}
		deg, err := tracker.Poll()
		if err != nil {
			fmt.Println("Failed to read encoders:", err)
		}
		battV, _ := pico.BattVolts()
		status, _ := pico.Status()
		fmt.Printf("%.2fV Status=%x L=%.1fdeg R=%.1fdeg\n",
			battV, status, deg[picobldc.MotorLeft], deg[picobldc.MotorRight])
		time.Sleep(100 * time.Millisecond)
	}
	_ = pico.Stop(true)

	deg := tracker.Degrees()
	expected := *speed * duration.Seconds()
	fmt.Printf("Expected %.1fdeg, got L=%.1fdeg R=%.1fdeg\n",
		expected, deg[picobldc.MotorLeft], deg[picobldc.MotorRight])
}
