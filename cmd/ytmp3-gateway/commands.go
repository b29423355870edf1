package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/urfave/cli/v3"

	"github.com/imbecility/ytmp3-gateway/pkg/api"
	"github.com/imbecility/ytmp3-gateway/pkg/config"
	"github.com/imbecility/ytmp3-gateway/pkg/gateway"
)

const defaultConfigPath = "config.toml"

func globalFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:    "config",
			Aliases: []string{"c"},
			Usage:   "Path to configuration file",
			Value:   defaultConfigPath,
		},
		&cli.IntFlag{
			Name:    "port",
			Usage:   "Port for the API server",
			Sources: cli.EnvVars("PORT"),
		},
		&cli.StringFlag{
			Name:  "ffmpeg",
			Usage: "Path to ffmpeg binary",
		},
		&cli.StringFlag{
			Name:  "ytdlp",
			Usage: "Path to yt-dlp binary",
		},
		&cli.BoolFlag{
			Name:  "debug",
			Usage: "Enable debug logging",
		},
		&cli.BoolFlag{
			Name:  "json-logs",
			Usage: "Emit logs as JSON",
		},
	}
}

func serveCommand() *cli.Command {
	return &cli.Command{
		Name:   "serve",
		Usage:  "Run the HTTP API (default)",
		Action: runServe,
	}
}

func convertCommand() *cli.Command {
	return &cli.Command{
		Name:  "convert",
		Usage: "Convert a YouTube video through ytmp3.mobi and print the download link",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:     "url",
				Aliases:  []string{"u"},
				Usage:    "YouTube URL",
				Required: true,
			},
			&cli.StringFlag{
				Name:    "format",
				Aliases: []string{"f"},
				Usage:   "Output format: mp3 or mp4",
				Value:   "mp3",
			},
			&cli.BoolFlag{
				Name:  "json",
				Usage: "Output raw JSON",
			},
		},
		Action: runConvert,
	}
}

func lyricsCommand() *cli.Command {
	return &cli.Command{
		Name:  "lyrics",
		Usage: "Lyrics search and lookup",
		Commands: []*cli.Command{
			{
				Name:      "search",
				Usage:     "Search songs by free text",
				ArgsUsage: "<query>",
				Action:    runLyricsSearch,
			},
			{
				Name:      "get",
				Usage:     "Print the lyrics of a song page",
				ArgsUsage: "<url>",
				Action:    runLyricsGet,
			},
		},
	}
}

func audioCommand() *cli.Command {
	return &cli.Command{
		Name:  "audio",
		Usage: "Transcode the audio track of a YouTube video",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:     "url",
				Aliases:  []string{"u"},
				Usage:    "YouTube URL",
				Required: true,
			},
			&cli.StringFlag{
				Name:    "format",
				Aliases: []string{"f"},
				Usage:   "Output format: mp3 or aac",
				Value:   "mp3",
			},
			&cli.StringFlag{
				Name:    "out",
				Aliases: []string{"o"},
				Usage:   "Output file, - for stdout (default: <title>.<ext>)",
			},
		},
		Action: runAudio,
	}
}

func initConfigCommand() *cli.Command {
	return &cli.Command{
		Name:  "init-config",
		Usage: "Write an example configuration file",
		Action: func(ctx context.Context, cmd *cli.Command) error {
			path := cmd.String("config")
			if err := config.WriteExample(path); err != nil {
				return err
			}
			fmt.Printf("Config written to %s\n", path)
			return nil
		},
	}
}

// loadConfig reads the config file when present and applies flag overrides.
func loadConfig(cmd *cli.Command) (*config.Config, error) {
	path := cmd.String("config")
	cfg := config.Default()
	if _, err := os.Stat(path); err == nil {
		cfg, err = config.Load(path)
		if err != nil {
			return nil, err
		}
	} else if cmd.IsSet("config") {
		return nil, fmt.Errorf("config file %s not found", path)
	}

	if cmd.IsSet("port") {
		cfg.Server.Port = cmd.Int("port")
	}
	if v := cmd.String("ffmpeg"); v != "" {
		cfg.Audio.FFmpegPath = v
	}
	if v := cmd.String("ytdlp"); v != "" {
		cfg.Audio.YTDLPPath = v
	}
	if cmd.Bool("debug") {
		cfg.Log.Debug = true
	}
	if cmd.Bool("json-logs") {
		cfg.Log.JSON = true
	}
	cfg.ApplyDefaults()
	return cfg, nil
}

func runServe(ctx context.Context, cmd *cli.Command) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	gw, err := gateway.New(ctx, cfg, gateway.Options{})
	if err != nil {
		return fmt.Errorf("initialization failed: %w", err)
	}

	srv := &api.Server{
		Port:            cfg.Server.Port,
		Gateway:         gw,
		RateLimit:       cfg.Server.RateLimit,
		RateBurst:       cfg.Server.RateBurst,
		ShutdownTimeout: cfg.Server.ShutdownTimeout.Duration,
	}
	return srv.Start(ctx)
}

func runConvert(ctx context.Context, cmd *cli.Command) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	gw, err := gateway.New(ctx, cfg, gateway.Options{SkipFFmpeg: true})
	if err != nil {
		return fmt.Errorf("initialization failed: %w", err)
	}

	slog.Info("Processing video via CLI", "url", cmd.String("url"))

	res, err := gw.Convert(ctx, cmd.String("url"), cmd.String("format"))
	if err != nil {
		return err
	}
	if cmd.Bool("json") {
		return writeJSON(os.Stdout, res)
	}
	fmt.Printf("%s\n%s\n", res.Title, res.DownloadURL)
	return nil
}

func runLyricsSearch(ctx context.Context, cmd *cli.Command) error {
	query := strings.Join(cmd.Args().Slice(), " ")
	if strings.TrimSpace(query) == "" {
		return errors.New("usage: lyrics search <query>")
	}
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	gw, err := gateway.New(ctx, cfg, gateway.Options{SkipFFmpeg: true})
	if err != nil {
		return fmt.Errorf("initialization failed: %w", err)
	}

	songs, err := gw.SearchLyrics(ctx, query)
	if err != nil {
		return err
	}
	if len(songs) == 0 {
		fmt.Println("No songs found")
		return nil
	}
	for i, s := range songs {
		fmt.Printf("%2d. %s - %s\n    %s\n", i+1, s.Artist, s.Title, s.URL)
	}
	return nil
}

func runLyricsGet(ctx context.Context, cmd *cli.Command) error {
	pageURL := cmd.Args().First()
	if pageURL == "" {
		return errors.New("usage: lyrics get <url>")
	}
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	gw, err := gateway.New(ctx, cfg, gateway.Options{SkipFFmpeg: true})
	if err != nil {
		return fmt.Errorf("initialization failed: %w", err)
	}

	l, err := gw.FetchLyrics(ctx, pageURL)
	if err != nil {
		return err
	}
	fmt.Printf("%s\n%s\n\n%s\n", l.Title, l.Artist, l.Lyrics)
	return nil
}

func runAudio(ctx context.Context, cmd *cli.Command) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	out := cmd.String("out")
	gw, err := gateway.New(ctx, cfg, gateway.Options{ShowProgress: out != "-"})
	if err != nil {
		return fmt.Errorf("initialization failed: %w", err)
	}

	st, err := gw.PrepareAudio(ctx, cmd.String("url"), cmd.String("format"))
	if err != nil {
		return err
	}

	if out == "-" {
		_, err = gw.CopyAudio(ctx, st, os.Stdout)
		return err
	}
	if out == "" {
		out = st.Filename()
	}

	f, err := os.Create(out)
	if err != nil {
		return fmt.Errorf("failed to create output: %w", err)
	}
	n, err := gw.CopyAudio(ctx, st, f)
	if cerr := f.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		if rerr := os.Remove(out); rerr != nil {
			slog.Warn("Failed to remove partial file", "path", out, "err", rerr)
		}
		return err
	}

	slog.Info("Success", "title", st.Title, "path", out, "bytes", n)
	return nil
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
