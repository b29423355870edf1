package downloader

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"regexp"
	"strings"
	"time"

	"github.com/imbecility/ytmp3-gateway/pkg/ffmpeg"
	"github.com/imbecility/ytmp3-gateway/pkg/utils"
)

type Transcoder interface {
	Transcode(ctx context.Context, input string, format ffmpeg.AudioFormat, dst io.Writer) (int64, error)
}

// TitleFunc looks up a human title for a video id.
type TitleFunc func(ctx context.Context, videoID string) (string, error)

// Downloader resolves a YouTube audio stream and pipes it through ffmpeg.
type Downloader struct {
	Resolver   Resolver
	Transcoder Transcoder
	Title      TitleFunc
	// ShowProgress prints a console progress line (CLI usage).
	ShowProgress bool
}

// Stream is a resolved, not yet started, transcode job.
type Stream struct {
	VideoID   string
	Title     string
	Format    ffmpeg.AudioFormat
	SourceURL string
}

// Filename is a download-safe name for the encoded stream.
func (s *Stream) Filename() string {
	name := sanitizeFilename(s.Title)
	if name == "" {
		name = s.VideoID
	}
	return name + "." + s.Format.Extension
}

// Prepare validates input and resolves the source stream. Nothing has been
// written anywhere when it returns, so callers can still report errors.
func (d *Downloader) Prepare(ctx context.Context, ytURL, format string) (*Stream, error) {
	vidID, err := utils.ExtractVideoID(ytURL)
	if err != nil {
		return nil, err
	}
	f, err := ffmpeg.LookupAudioFormat(format)
	if err != nil {
		return nil, err
	}

	src, err := d.Resolver.ResolveAudioURL(ctx, utils.WatchURL(vidID))
	if err != nil {
		return nil, fmt.Errorf("resolve audio: %w", err)
	}

	st := &Stream{VideoID: vidID, Format: f, SourceURL: src}
	if d.Title != nil {
		title, terr := d.Title(ctx, vidID)
		if terr != nil {
			slog.Warn("Failed to fetch metadata", "vid", vidID, "err", terr)
		}
		st.Title = title
	}
	slog.Debug("Audio stream resolved", "vid", vidID, "format", f.Name, "title", st.Title)
	return st, nil
}

// Copy transcodes the prepared stream into dst.
func (d *Downloader) Copy(ctx context.Context, st *Stream, dst io.Writer) (int64, error) {
	pw := &ProgressWriter{
		Total:     -1,
		LastPrint: time.Now(),
		Type:      strings.ToUpper(st.Format.Name),
		Console:   d.ShowProgress,
	}
	out := io.MultiWriter(dst, pw)

	started := time.Now()
	n, err := d.Transcoder.Transcode(ctx, st.SourceURL, st.Format, out)
	if d.ShowProgress {
		fmt.Fprintln(os.Stderr)
	}
	if err != nil {
		return n, fmt.Errorf("transcode: %w", err)
	}

	slog.Info("Audio streamed", "vid", st.VideoID, "format", st.Format.Name, "bytes", n, "took", time.Since(started).Round(time.Millisecond))
	return n, nil
}

// Stream prepares and copies in one step.
func (d *Downloader) Stream(ctx context.Context, ytURL, format string, dst io.Writer) (*Stream, error) {
	st, err := d.Prepare(ctx, ytURL, format)
	if err != nil {
		return nil, err
	}
	if _, err := d.Copy(ctx, st, dst); err != nil {
		return st, err
	}
	return st, nil
}

type ProgressWriter struct {
	Total      int64
	Downloaded int64
	LastPrint  time.Time
	Type       string // "MP3", "AAC"
	Console    bool
}

func (pw *ProgressWriter) Write(p []byte) (int, error) {
	n := len(p)
	pw.Downloaded += int64(n)

	if time.Since(pw.LastPrint) > time.Second {
		pw.printProgress()
		pw.LastPrint = time.Now()
	}
	return n, nil
}

func (pw *ProgressWriter) printProgress() {
	mb := float64(pw.Downloaded) / 1024 / 1024

	if !pw.Console {
		slog.Debug("Streaming", "type", pw.Type, "mb", fmt.Sprintf("%.2f", mb))
		return
	}
	if pw.Total > 0 {
		percent := float64(pw.Downloaded) / float64(pw.Total) * 100
		totalMb := float64(pw.Total) / 1024 / 1024
		fmt.Fprintf(os.Stderr, "\r[%s] %.2f%% (%.2f/%.2f MB)   ", pw.Type, percent, mb, totalMb)
	} else {
		fmt.Fprintf(os.Stderr, "\r[%s] Transcoding... %.2f MB   ", pw.Type, mb)
	}
}

var unsafeFilenameRe = regexp.MustCompile(`[\\/:*?"<>|\x00-\x1f]+`)

func sanitizeFilename(name string) string {
	name = unsafeFilenameRe.ReplaceAllString(name, "_")
	name = strings.Trim(strings.TrimSpace(name), ".")
	if r := []rune(name); len(r) > 150 {
		name = strings.TrimSpace(string(r[:150]))
	}
	return name
}
