package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/tigerbot-team/tigerbot/go-localizer/pkg/angle"
	"github.com/tigerbot-team/tigerbot/go-localizer/pkg/config"
	"github.com/tigerbot-team/tigerbot/go-localizer/pkg/hardware"
	"github.com/tigerbot-team/tigerbot/go-localizer/pkg/lightsensor"
	"github.com/tigerbot-team/tigerbot/go-localizer/pkg/localizer"
	"github.com/tigerbot-team/tigerbot/go-localizer/pkg/motion"
	"github.com/tigerbot-team/tigerbot/go-localizer/pkg/odometry"
	"github.com/tigerbot-team/tigerbot/go-localizer/pkg/pose"
	"github.com/tigerbot-team/tigerbot/go-localizer/pkg/screen"
	"github.com/tigerbot-team/tigerbot/go-localizer/pkg/sim"
	"github.com/tigerbot-team/tigerbot/go-localizer/pkg/sound"
)

// Number of light samples to take before moving so the poller has a floor
// baseline.
const warmupSamples = 20

type logSignals struct{}

func (logSignals) Beep() {
	log.Info().Msg("Beep")
}

func main() {
	if err := run(); err != nil {
		os.Exit(1)
	}
}

func run() error {
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})

	configPath := flag.String("config", os.Getenv("LIGHTLOC_CONFIG"), "YAML config file")
	inUsePath := flag.String("write-config", "", "write the effective config to this file")
	simulate := flag.Bool("sim", false, "run against the simulated robot")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load config")
	}
	if *simulate {
		cfg.Simulate = true
	}
	if level, err := zerolog.ParseLevel(cfg.LogLevel); err == nil {
		zerolog.SetGlobalLevel(level)
	}
	if *inUsePath != "" {
		if err := config.WriteInUse(cfg, *inUsePath); err != nil {
			log.Warn().Err(err).Msg("Failed to write in-use config")
		}
	}

	log.Info().Bool("sim", cfg.Simulate).Msg("---- Light localizer ----")

	// Our global context, we cancel it to trigger shutdown.
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	registerSignalHandlers(cancel)

	var hw hardware.Interface
	var robot *sim.Robot
	if cfg.Simulate {
		robot = sim.New(cfg.Sim, cfg.Chassis, sim.WithLogger(component("sim")))
		hw = robot
	} else {
		hw = hardware.New(cfg.Hardware, component("hardware"))
	}
	if err := hw.Start(ctx); err != nil {
		log.Fatal().Err(err).Msg("Failed to start hardware")
	}
	defer hw.Shutdown()

	poses := pose.NewStore(pose.Pose{Theta: angle.ToRadians(cfg.StartThetaDeg)})
	odo := odometry.New(hw, poses, cfg.Chassis, cfg.OdometryInterval,
		odometry.WithLogger(component("odometry")))
	if err := odo.Poll(); err != nil {
		log.Fatal().Err(err).Msg("Failed to read wheel encoders")
	}
	poller := lightsensor.New(hw, cfg.LightSensor, lightsensor.WithLogger(component("light")))

	var wg sync.WaitGroup
	wg.Add(2)
	go odo.Loop(ctx, &wg)
	go poller.Loop(ctx, &wg)

	var signals localizer.Signals = logSignals{}
	var player *sound.Player
	if cfg.Sound.Enabled {
		player = sound.NewPlayer(component("sound"))
		defer player.Close()
		signals = player
	}

	nav := motion.NewNavigator(hw, poses, cfg.Chassis, motion.WithLogger(component("motion")))
	loc, err := localizer.New(cfg.Localizer, nav, poller, poses, signals,
		localizer.WithLogger(component("localizer")))
	if err != nil {
		log.Fatal().Err(err).Msg("Bad localizer config")
	}

	if cfg.Screen.Enabled {
		wg.Add(1)
		go func() {
			defer wg.Done()
			screen.LoopUpdatingScreen(ctx, cfg.Screen.Device, func() screen.Status {
				v, _ := hw.BattVolts()
				return screen.Status{
					Pose:      poses.Get(),
					Stage:     loc.Stage().String(),
					BattVolts: float64(v),
				}
			}, component("screen"))
		}()
	}

	for poller.Samples() < warmupSamples && ctx.Err() == nil {
		time.Sleep(cfg.LightSensor.SampleInterval)
	}

	start := time.Now()
	err = loc.Localize(ctx)
	if err != nil {
		log.Error().Err(err).Msg("Localization did not complete")
	} else {
		p := poses.Get()
		log.Info().
			Stringer("pose", p).
			Dur("took", time.Since(start)).
			Msg("Localization complete")
		if player != nil {
			player.PlayTone(sound.CompleteTone)
		}
	}
	if robot != nil {
		log.Info().Stringer("truth", robot.Truth()).Msg("Simulated robot's actual pose")
	}

	cancel()
	wg.Wait()
	return err
}

func component(name string) zerolog.Logger {
	return log.With().Str("component", name).Logger()
}

func registerSignalHandlers(cancel context.CancelFunc) {
	signals := make(chan os.Signal, 2)
	signal.Notify(signals, syscall.SIGTERM, syscall.SIGINT)

	go func() {
		s := <-signals
		log.Info().Stringer("signal", s).Msg("Signal received, stopping")
		cancel()
		time.Sleep(2 * time.Second)
		os.Exit(0)
	}()
}
