package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/fatih/color"
	_ "github.com/joho/godotenv/autoload"
	"github.com/urfave/cli/v3"

	"github.com/starford/quire/internal"
	"github.com/starford/quire/internal/noteservice"
	pkgconfig "github.com/starford/quire/pkg/config"
)

// version is set at build time with -ldflags "-X main.version=...".
var version = "dev"

func loadConfig(cmd *cli.Command) (*internal.Config, error) {
	configPath := cmd.String("config")

	cfg := internal.NewDefaultConfig()
	if err := pkgconfig.LoadOptional(configPath, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	return cfg, nil
}

func serve(ctx context.Context, cmd *cli.Command) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	opts := []internal.Option{
		internal.WithConfig(cfg),
		internal.WithVersion(version),
	}

	if err := internal.Run(ctx, opts...); err != nil {
		return fmt.Errorf("app run error: %w", err)
	}

	return nil
}

func serveMCP(ctx context.Context, cmd *cli.Command) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	if err := internal.RunMCP(ctx, internal.WithConfig(cfg), internal.WithVersion(version)); err != nil {
		return fmt.Errorf("mcp run error: %w", err)
	}
	return nil
}

func list(ctx context.Context, cmd *cli.Command) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	// Keep the listing readable; warnings still reach stderr.
	cfg.App.LogLevel = slog.LevelWarn

	notes, err := internal.ListNotes(ctx, cmd.Bool("trash"), internal.WithConfig(cfg))
	if err != nil {
		return fmt.Errorf("list notes: %w", err)
	}
	printNotes(os.Stdout, notes, time.Now())
	return nil
}

func printNotes(w io.Writer, notes []noteservice.NoteListItem, now time.Time) {
	title := color.New(color.Bold)
	dim := color.New(color.FgHiBlack)
	for _, n := range notes {
		when := "never"
		if n.UpdatedAt != nil {
			when = humanize.RelTime(*n.UpdatedAt, now, "ago", "from now")
		}
		name := n.Title
		if name == "" {
			name = "(untitled)"
		}
		_, _ = fmt.Fprintf(w, "%s  %s  %s\n",
			title.Sprint(name),
			dim.Sprintf("%s/%s", n.Provider, n.UID),
			dim.Sprint(when))
	}
	if len(notes) == 0 {
		_, _ = dim.Fprintln(w, "no notes")
	}
}

func main() {
	cmd := &cli.Command{
		Name:    "quire",
		Usage:   "Sticky notes from local files, WebDAV shares and CalDAV memos behind one REST and MCP surface",
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
				Usage:  "Run the HTTP API with server-sent events",
				Action: serve,
			},
			{
				Name:   "mcp",
				Usage:  "Serve note tools to an MCP client over stdio",
				Action: serveMCP,
			},
			{
				Name:  "list",
				Usage: "Print every note with its last modification time",
				Flags: []cli.Flag{
					&cli.BoolFlag{
						Name:  "trash",
						Usage: "List the trash instead",
					},
				},
				Action: list,
			},
		},
	}

	if err := cmd.Run(context.Background(), os.Args); err != nil {
		slog.Error("application error", slog.String("error", err.Error()))
		os.Exit(1)
	}
}
