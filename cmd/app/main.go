package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"

	_ "github.com/joho/godotenv/autoload"
	"github.com/urfave/cli/v3"

	"github.com/starford/vocabhive/internal"
	pkgconfig "github.com/starford/vocabhive/pkg/config"
)

var version = "dev"

func options(cmd *cli.Command) ([]internal.Option, error) {
	configPath := cmd.String("config")

	load := pkgconfig.LoadOptional[internal.Config]
	if cmd.IsSet("config") {
		load = pkgconfig.Load[internal.Config]
	}

	cfg := internal.NewDefaultConfig()
	if err := load(configPath, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	return []internal.Option{
		internal.WithConfig(cfg),
		internal.WithVersion(version),
	}, nil
}

func serve(ctx context.Context, cmd *cli.Command) error {
	opts, err := options(cmd)
	if err != nil {
		return err
	}
	if err := internal.Run(ctx, opts...); err != nil {
		return fmt.Errorf("app run error: %w", err)
	}
	return nil
}

func importFile(ctx context.Context, cmd *cli.Command) error {
	path := cmd.Args().First()
	if path == "" {
		return errors.New("usage: vocabhive import <file.csv|file.json>")
	}
	opts, err := options(cmd)
	if err != nil {
		return err
	}
	sum, err := internal.Import(ctx, path, opts...)
	if err != nil {
		return err
	}
	fmt.Printf("imported %d words, %d tags from %s (%d rows skipped)\n", sum.Words, sum.Tags, sum.Source, sum.Skipped)
	return nil
}

func seed(ctx context.Context, cmd *cli.Command) error {
	opts, err := options(cmd)
	if err != nil {
		return err
	}
	sum, err := internal.Seed(ctx, opts...)
	if err != nil {
		return err
	}
	fmt.Printf("seeded %d words, %d tags\n", sum.Words, sum.Tags)
	return nil
}

func serveMCP(ctx context.Context, cmd *cli.Command) error {
	opts, err := options(cmd)
	if err != nil {
		return err
	}
	return internal.ServeMCP(ctx, opts...)
}

func main() {
	cmd := &cli.Command{
		Name:    "vocabhive",
		Usage:   "Local-first vocabulary library with chunked lazy loading, search, and imports",
		Version: version,
		Action:  serve,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:        "config",
				Aliases:     []string{"c"},
				Usage:       "Path to config file",
				DefaultText: "config/config.yaml",
				Value:       "config/config.yaml",
				Sources:     cli.EnvVars("APP_CONFIG_FILE"),
			},
		},
		Commands: []*cli.Command{
			{
				Name:   "serve",
				Usage:  "Run the HTTP API, event stream and inbox watcher",
				Action: serve,
			},
			{
				Name:      "import",
				Usage:     "Import a CSV or JSON word list into the store",
				ArgsUsage: "<file>",
				Action:    importFile,
			},
			{
				Name:   "seed",
				Usage:  "Replace all words with the origin's sample dataset",
				Action: seed,
			},
			{
				Name:   "mcp",
				Usage:  "Serve MCP tools over stdio",
				Action: serveMCP,
			},
		},
	}

	if err := cmd.Run(context.Background(), os.Args); err != nil {
		slog.Error("application error", slog.String("error", err.Error()))
		os.Exit(1)
	}
}
