package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog/log"

	"github.com/Ayoubbar/geomapscore/internal/cli"
	"github.com/Ayoubbar/geomapscore/internal/logging"
	"github.com/Ayoubbar/geomapscore/internal/pipeline"
	"github.com/Ayoubbar/geomapscore/internal/renderer"
	"github.com/Ayoubbar/geomapscore/internal/server"
	"github.com/Ayoubbar/geomapscore/internal/version"
)

func main() {
	cfg, err := cli.Parse(os.Args[1:])
	if errors.Is(err, cli.ErrHelp) {
		return
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(2)
	}
	logging.Setup(cfg.LogLevel, cfg.LogPretty)

	if err := run(cfg); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run(cfg cli.Config) error {
	switch cfg.Command {
	case cli.CommandScore:
		_, err := pipeline.Run(cfg.Score, renderer.NewBitmapFont())
		return err

	case cli.CommandProbe:
		p, err := pipeline.Probe(cfg.Probe)
		if err != nil {
			return err
		}
		fmt.Printf("Color %s -> band %d (%s), score %.1f", p.Color.Hex(), p.Index, p.Sample.Color.Hex(), p.Sample.Score)
		if p.Background {
			fmt.Print(" [background, not scored]")
		}
		fmt.Println()
		return nil

	case cli.CommandServe:
		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()
		log.Info().Str("version", version.Version).Msg("starting server")
		return server.Run(ctx, cfg.Serve)

	case cli.CommandVersion:
		fmt.Println(version.String())
		return nil
	}
	return fmt.Errorf("unknown command %q", cfg.Command)
}
