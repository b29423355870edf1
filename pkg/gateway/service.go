package gateway

import (
	"context"
	"io"
	"log/slog"
	"strings"

	"github.com/imbecility/ytmp3-gateway/pkg/downloader"
	"github.com/imbecility/ytmp3-gateway/pkg/lyrics"
	"github.com/imbecility/ytmp3-gateway/pkg/models"
	"github.com/imbecility/ytmp3-gateway/pkg/providers"
)

type LyricsClient interface {
	Search(ctx context.Context, query string) ([]lyrics.Song, error)
	Fetch(ctx context.Context, pageURL string) (*lyrics.Lyrics, error)
}

type Service struct {
	Converter  providers.Converter
	Lyrics     LyricsClient
	Downloader *downloader.Downloader
	// Titles backs up vendor titles that are empty or generic.
	Titles downloader.TitleFunc
}

func NewService(conv providers.Converter, lc LyricsClient, dl *downloader.Downloader, titles downloader.TitleFunc) *Service {
	return &Service{
		Converter:  conv,
		Lyrics:     lc,
		Downloader: dl,
		Titles:     titles,
	}
}

// Convert runs the vendor conversion for one request. Nothing is shared
// between calls, two identical requests run two handshakes.
func (s *Service) Convert(ctx context.Context, rawURL, format string) (*models.ConversionResult, error) {
	res, err := s.Converter.Convert(ctx, rawURL, format)
	if err != nil {
		return nil, err
	}

	if s.Titles != nil && s.needsBetterTitle(res.Title) {
		slog.Debug("Provider returned generic title, fetching metadata...", "old_title", res.Title)
		realTitle, gterr := s.Titles(ctx, res.VideoID)
		if gterr == nil && realTitle != "" {
			slog.Info("Metadata fetched", "title", realTitle)
			res.Title = realTitle
		} else {
			slog.Warn("Failed to fetch metadata", "err", gterr)
			if res.Title == "" {
				res.Title = "video_" + res.VideoID
			}
		}
	}

	slog.Info("Link acquired", "provider", s.Converter.Name(), "vid", res.VideoID, "format", res.Format)
	return res, nil
}

func (s *Service) SearchLyrics(ctx context.Context, query string) ([]lyrics.Song, error) {
	return s.Lyrics.Search(ctx, query)
}

func (s *Service) FetchLyrics(ctx context.Context, pageURL string) (*lyrics.Lyrics, error) {
	return s.Lyrics.Fetch(ctx, pageURL)
}

func (s *Service) PrepareAudio(ctx context.Context, rawURL, format string) (*downloader.Stream, error) {
	return s.Downloader.Prepare(ctx, rawURL, format)
}

func (s *Service) CopyAudio(ctx context.Context, st *downloader.Stream, dst io.Writer) (int64, error) {
	return s.Downloader.Copy(ctx, st, dst)
}

func (s *Service) needsBetterTitle(title string) bool {
	t := strings.ToLower(strings.TrimSpace(title))
	if t == "" {
		return true
	}
	badTitles := []string{
		"youtube video",
		"video playback",
		"ytmp3",
		"untitled",
	}
	for _, bad := range badTitles {
		if strings.Contains(t, bad) {
			return true
		}
	}
	return false
}
