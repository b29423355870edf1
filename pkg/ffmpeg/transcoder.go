package ffmpeg

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"os/exec"
	"strings"

	"github.com/imbecility/ytmp3-gateway/pkg/errs"
)

// AudioFormat describes an ffmpeg output that can be written to a pipe.
type AudioFormat struct {
	Name        string
	Extension   string
	ContentType string
	codecArgs   []string
}

var audioFormats = map[string]AudioFormat{
	"mp3": {Name: "mp3", Extension: "mp3", ContentType: "audio/mpeg", codecArgs: []string{"-c:a", "libmp3lame", "-f", "mp3"}},
	"aac": {Name: "aac", Extension: "aac", ContentType: "audio/aac", codecArgs: []string{"-c:a", "aac", "-f", "adts"}},
}

// LookupAudioFormat resolves a user-supplied format name.
func LookupAudioFormat(name string) (AudioFormat, error) {
	f, ok := audioFormats[strings.ToLower(strings.TrimSpace(name))]
	if !ok {
		return AudioFormat{}, errs.Invalid("invalid audio format: %s. Available: aac, mp3", name)
	}
	return f, nil
}

type Transcoder struct {
	BinaryPath string
	Bitrate    string
}

// Args builds the ffmpeg command line reading input and writing the encoded stream to stdout.
func (t *Transcoder) Args(input string, format AudioFormat) []string {
	bitrate := t.Bitrate
	if bitrate == "" {
		bitrate = "192k"
	}
	args := []string{
		"-hide_banner",
		"-loglevel", "error",
		"-reconnect", "1",
		"-reconnect_streamed", "1",
		"-reconnect_delay_max", "5",
		"-i", input,
		"-vn", "-sn", "-dn",
		"-map_metadata", "-1",
		"-b:a", bitrate,
	}
	args = append(args, format.codecArgs...)
	return append(args, "pipe:1")
}

// Transcode streams input through ffmpeg into dst. The process is killed when ctx is done.
func (t *Transcoder) Transcode(ctx context.Context, input string, format AudioFormat, dst io.Writer) (int64, error) {
	cmd := exec.CommandContext(ctx, t.BinaryPath, t.Args(input, format)...)

	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return 0, fmt.Errorf("ffmpeg stdout: %w", err)
	}
	if err := cmd.Start(); err != nil {
		return 0, fmt.Errorf("ffmpeg start: %w", err)
	}

	n, copyErr := io.Copy(dst, stdout)
	if copyErr != nil {
		// drain so Wait does not block on a full pipe
		_, _ = io.Copy(io.Discard, stdout)
	}
	waitErr := cmd.Wait()

	if ctxErr := ctx.Err(); ctxErr != nil {
		return n, ctxErr
	}
	if copyErr != nil {
		return n, fmt.Errorf("stream copy: %w", copyErr)
	}
	if waitErr != nil {
		return n, fmt.Errorf("ffmpeg error: %s, output: %s", waitErr, strings.TrimSpace(stderr.String()))
	}
	return n, nil
}
