package downloader

import (
	"context"
	"strings"

	"github.com/lrstanley/go-ytdlp"

	"github.com/imbecility/ytmp3-gateway/pkg/errs"
)

// audioFormatSelector prefers audio-only streams and falls back to muxed ones.
const audioFormatSelector = "bestaudio[acodec!=none]/bestaudio/best"

// Resolver finds a direct media URL ffmpeg can read.
type Resolver interface {
	ResolveAudioURL(ctx context.Context, videoURL string) (string, error)
}

// YTDLPResolver asks yt-dlp for the best audio stream URL without downloading it.
type YTDLPResolver struct {
	// BinaryPath overrides the yt-dlp executable looked up in PATH.
	BinaryPath string
}

func (r *YTDLPResolver) ResolveAudioURL(ctx context.Context, videoURL string) (string, error) {
	dl := ytdlp.New().
		Format(audioFormatSelector).
		NoPlaylist().
		GetURL()
	if r.BinaryPath != "" {
		dl.SetExecutable(r.BinaryPath)
	}

	res, err := dl.Run(ctx, videoURL)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return "", ctxErr
		}
		return "", errs.Upstream("yt-dlp failed: %v", err)
	}

	u := firstURL(res.Stdout)
	if u == "" {
		return "", errs.Upstream("yt-dlp returned no stream url")
	}
	return u, nil
}

// firstURL picks the first http(s) line; muxed selections may print one line per stream.
func firstURL(out string) string {
	for _, line := range strings.Split(out, "\n") {
		line = strings.TrimSpace(line)
		if strings.HasPrefix(line, "http://") || strings.HasPrefix(line, "https://") {
			return line
		}
	}
	return ""
}

var _ Resolver = (*YTDLPResolver)(nil)
