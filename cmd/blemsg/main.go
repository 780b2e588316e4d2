// Command blemsg sends text messages between two machines over a BLE GATT
// link. One side runs "responder" and displays what it receives; the other
// runs "initiator", connects to the first responder it finds and sends each
// line typed on stdin.
package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/urfave/cli"
	"golang.org/x/sync/errgroup"

	"github.com/chaz8081/blemsg/internal/ble"
	"github.com/chaz8081/blemsg/internal/config"
	"github.com/chaz8081/blemsg/internal/host"
	"github.com/chaz8081/blemsg/internal/lifecycle"
)

func main() {
	app := cli.NewApp()

	app.Name = "blemsg"
	app.Usage = "Point-to-point text messages over Bluetooth Low Energy"
	app.Version = "0.1.0"
	app.Action = cli.ShowAppHelp
	app.Flags = []cli.Flag{
		cli.StringFlag{
			Name:  "config, c",
			Usage: "path to config file (default: ~/.config/blemsg/config.yaml)",
		},
	}

	app.Commands = []cli.Command{
		{
			Name:    "initiator",
			Aliases: []string{"i"},
			Usage:   "Connect to a responder and send lines read from stdin",
			Action:  runInitiator,
		},
		{
			Name:    "responder",
			Aliases: []string{"r"},
			Usage:   "Advertise the messaging service and display received messages",
			Action:  runResponder,
		},
		{
			Name:   "init-config",
			Usage:  "Write the default config file if none exists",
			Action: initConfig,
		},
	}

	if err := app.Run(os.Args); err != nil {
		log.Fatal(err)
	}
}

// setup loads and validates the config and installs the default logger.
func setup(c *cli.Context) (*config.Config, error) {
	cfg, err := loadConfig(c.GlobalString("config"))
	if err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation: %w", err)
	}

	handler := slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: config.ParseLogLevel(cfg.LogLevel),
	})
	slog.SetDefault(slog.New(handler))
	return cfg, nil
}

func runInitiator(c *cli.Context) error {
	cfg, err := setup(c)
	if err != nil {
		return err
	}
	ids, err := cfg.Identifiers()
	if err != nil {
		return err
	}
	printBanner(cfg, "initiator")

	console := host.NewConsole(os.Stdout)
	central := ble.NewTinyGoCentral()
	defer central.Close()

	session := ble.NewInitiator(central, console, ble.InitiatorOptions{
		Identifiers:      ids,
		EnforceReadiness: cfg.Initiator.EnforceReadiness,
	})

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return ignoreCanceled(session.Run(ctx))
	})
	g.Go(func() error {
		if err := central.Enable(); err != nil {
			return err
		}
		return session.Start()
	})
	g.Go(func() error {
		// End of input ends the program.
		defer stop()
		return ignoreCanceled(console.Run(ctx, os.Stdin, session))
	})

	err = g.Wait()
	log.Println("Goodbye!")
	return err
}

func runResponder(c *cli.Context) error {
	cfg, err := setup(c)
	if err != nil {
		return err
	}
	ids, err := cfg.Identifiers()
	if err != nil {
		return err
	}
	printBanner(cfg, "responder")

	peripheral, err := ble.NewTinyGoPeripheral()
	if err != nil {
		return err
	}

	display := host.NewDisplay(os.Stdout, cfg.Responder.Hold)
	defer display.Close()
	listener := lifecycle.NewListener()

	session := ble.NewResponder(peripheral, display, listener, ble.ResponderOptions{
		Identifiers: ids,
		Descriptor:  cfg.DeviceName(),
		LocalName:   cfg.Responder.LocalName,
	})
	display.Bind(session)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return ignoreCanceled(session.Run(ctx))
	})
	g.Go(func() error {
		if err := peripheral.Enable(); err != nil {
			return err
		}
		return session.Start()
	})
	g.Go(func() error {
		listener.Start()
		return nil
	})
	g.Go(func() error {
		<-ctx.Done()
		listener.Stop()
		return nil
	})

	err = g.Wait()
	log.Println("Goodbye!")
	return err
}

func initConfig(c *cli.Context) error {
	path, err := config.WriteDefault()
	if err != nil {
		return err
	}
	if path == "" {
		fmt.Printf("Config already exists at %s\n", config.DefaultConfigPath())
		return nil
	}
	fmt.Printf("Wrote default config to %s\n", path)
	return nil
}

func ignoreCanceled(err error) error {
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

// loadConfig loads the config from the specified path, or falls back to
// the default config path, or uses built-in defaults.
func loadConfig(path string) (*config.Config, error) {
	if path != "" {
		return config.Load(path)
	}

	defaultPath := config.DefaultConfigPath()
	if _, err := os.Stat(defaultPath); err == nil {
		cfg, err := config.Load(defaultPath)
		if err != nil {
			return nil, fmt.Errorf("loading %s: %w", defaultPath, err)
		}
		log.Printf("Config loaded from %s", defaultPath)
		return cfg, nil
	}

	log.Println("No config file found, using defaults")
	return config.Default(), nil
}

// printBanner displays the startup configuration summary.
func printBanner(cfg *config.Config, role string) {
	fmt.Println("=== blemsg ===")
	fmt.Printf("  Role:     %s\n", role)
	fmt.Printf("  Service:  %s\n", cfg.Bluetooth.ServiceUUID)
	switch role {
	case "initiator":
		fmt.Printf("  Gating:   enforce=%t\n", cfg.Initiator.EnforceReadiness)
	case "responder":
		fmt.Printf("  Name:     %s (advertised as %s)\n", cfg.DeviceName(), cfg.Responder.LocalName)
		fmt.Printf("  Hold:     %s\n", cfg.Responder.Hold)
	}
	fmt.Printf("  Log:      %s\n", cfg.LogLevel)
	fmt.Println("==============")
}
