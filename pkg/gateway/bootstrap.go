package gateway

import (
	"context"
	"fmt"

	"github.com/imbecility/ytmp3-gateway/pkg/client"
	"github.com/imbecility/ytmp3-gateway/pkg/config"
	"github.com/imbecility/ytmp3-gateway/pkg/downloader"
	"github.com/imbecility/ytmp3-gateway/pkg/ffmpeg"
	"github.com/imbecility/ytmp3-gateway/pkg/logger"
	"github.com/imbecility/ytmp3-gateway/pkg/lyrics"
	"github.com/imbecility/ytmp3-gateway/pkg/providers"
)

// Options tweak bootstrap for the CLI.
type Options struct {
	// ShowProgress enables the progress line in the console.
	ShowProgress bool
	// SkipFFmpeg leaves ffmpeg unchecked, for commands that never transcode.
	SkipFFmpeg bool
}

// New creates a ready-to-use Service instance with all necessary dependencies.
func New(ctx context.Context, cfg *config.Config, opts Options) (*Service, error) {
	if cfg == nil {
		cfg = config.Default()
	}
	cfg.ApplyDefaults()

	// Setup the logger (globally)
	logger.SetupGlobal(cfg.Log.Debug, cfg.Log.JSON)

	// Initialize the HTTP client
	httpClient, err := client.NewHttpClient(client.Options{
		TimeoutSec:         cfg.HTTP.TimeoutSec,
		InsecureSkipVerify: cfg.HTTP.InsecureSkipVerify,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to init http client: %w", err)
	}

	// Checking and downloading FFmpeg
	ffmpegPath := cfg.Audio.FFmpegPath
	if !opts.SkipFFmpeg {
		ffmpegPath, err = ffmpeg.EnsureBinary(ctx, httpClient, cfg.Audio.FFmpegPath, "")
		if err != nil {
			return nil, fmt.Errorf("ffmpeg check failed: %w", err)
		}
	}

	conv := providers.NewYTMP3Mobi(httpClient, providers.PollPolicy{
		Interval:    cfg.Converter.PollInterval.Duration,
		MaxAttempts: cfg.Converter.MaxAttempts,
		MaxElapsed:  cfg.Converter.MaxElapsed.Duration,
	})
	if cfg.Converter.InitURL != "" {
		conv.InitURL = cfg.Converter.InitURL
	}
	if cfg.Converter.Referer != "" {
		conv.Referer = cfg.Converter.Referer
	}

	titles := func(ctx context.Context, videoID string) (string, error) {
		return providers.GetVideoTitle(ctx, httpClient, videoID)
	}

	dl := &downloader.Downloader{
		Resolver:     &downloader.YTDLPResolver{BinaryPath: cfg.Audio.YTDLPPath},
		Transcoder:   &ffmpeg.Transcoder{BinaryPath: ffmpegPath, Bitrate: cfg.Audio.Bitrate},
		Title:        titles,
		ShowProgress: opts.ShowProgress,
	}

	return NewService(conv, lyrics.New(httpClient, cfg.Lyrics.BaseURL), dl, titles), nil
}
