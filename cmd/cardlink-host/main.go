package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog/log"

	"github.com/cardlink/cardlink/internal/cardbus"
	"github.com/cardlink/cardlink/internal/cardbus/mockbus"
	"github.com/cardlink/cardlink/internal/cardhost"
	"github.com/cardlink/cardlink/internal/cardhost/config"
	"github.com/cardlink/cardlink/internal/common/logtrace"
	"github.com/cardlink/cardlink/internal/transport"
)

func init() {
	logtrace.InitLogger()
}

type cmdoptions struct {
	configFile string
	platform   string
}

func main() {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := run(ctx); err != nil {
		log.Error().Err(err).Msg("host agent failed")
		os.Exit(1)
	}
}

func run(ctx context.Context) error {
	slog := log.With().Str("state", "init").Logger()

	opt := parseFlags()

	slog.Info().Str("config_file", opt.configFile).Msg("loading config file")
	if err := config.LoadConfig(opt.configFile); err != nil {
		return fmt.Errorf("loading config file: %w", err)
	}

	cardhostID, key, err := cardhost.LoadOrCreateIdentity(config.Config().IdentityFile)
	if err != nil {
		return fmt.Errorf("loading identity: %w", err)
	}
	slog.Info().Str("cardhost_id", cardhostID).Msg("identity loaded")

	platform, err := createPlatform(opt.platform)
	if err != nil {
		return err
	}

	agent := cardhost.New(platform, cardhost.Options{
		RouterURL:  config.Config().RouterURL,
		CardhostID: cardhostID,
		Key:        key,
		Transport: transport.Options{
			HeartbeatInterval: config.Config().GetHeartbeatIntervalOrDefault(),
		},
	})
	if err := agent.Start(ctx); err != nil {
		return fmt.Errorf("starting agent: %w", err)
	}
	slog.Info().Str("router_url", config.Config().RouterURL).Msg("agent started")

	// Wait for an interrupt or terminate signal from the OS.
	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, os.Interrupt, syscall.SIGTERM)

	sig := <-shutdown
	slog.Info().Str("signal", sig.String()).Msg("shutdown signal received")

	if err := agent.Stop(ctx); err != nil {
		slog.Error().Err(err).Msg("could not stop agent gracefully")
	}
	slog.Info().Msg("agent stopped")
	return nil
}

// createPlatform selects the card platform backend. Only the in-memory mock
// ships today; PC/SC lands as another case here.
func createPlatform(name string) (cardbus.Platform, error) {
	switch name {
	case "mock":
		return mockbus.New(), nil
	default:
		return nil, fmt.Errorf("unknown platform backend: %s", name)
	}
}

const DefaultConfigFile = "/etc/cardlink/host.conf"

func parseFlags() cmdoptions {
	var opt cmdoptions
	flag.StringVar(&opt.configFile, "config", DefaultConfigFile, "Path to the config file")
	flag.StringVar(&opt.platform, "platform", "mock", "Card platform backend")
	flag.Usage = func() {
		fmt.Fprintf(flag.CommandLine.Output(), "Usage: %s [options]\n\n", os.Args[0])
		fmt.Println("Options:")
		flag.PrintDefaults()
	}
	flag.Parse()
	return opt
}
