package ffmpeg

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"

	"github.com/imbecility/ytmp3-gateway/pkg/providers"
)

const (
	UrlNanoLinux   = "https://github.com/imbecility/yt-gateway/releases/download/ffmpeg_git-2025-12-18-78c75d5/ffmpeg_nano"
	UrlNanoWindows = "https://github.com/imbecility/yt-gateway/releases/download/ffmpeg_git-2025-12-18-78c75d5/ffmpeg_nano.exe"
)

// EnsureBinary returns a working ffmpeg path, downloading the nano build into
// installDir when requestedPath does not run.
func EnsureBinary(ctx context.Context, client providers.HTTPClient, requestedPath, installDir string) (string, error) {
	if isWorking(ctx, requestedPath) {
		slog.Debug("FFmpeg found and working", "path", requestedPath)
		return requestedPath, nil
	}

	slog.Warn("FFmpeg not found or invalid. Attempting to download embedded version...", "path", requestedPath)

	var downloadUrl string
	var fileName string

	switch runtime.GOOS {
	case "windows":
		downloadUrl = UrlNanoWindows
		fileName = "ffmpeg_nano.exe"
	case "linux":
		downloadUrl = UrlNanoLinux
		fileName = "ffmpeg_nano"
	default:
		return "", fmt.Errorf("auto-download not supported for OS: %s", runtime.GOOS)
	}

	if installDir == "" {
		installDir, _ = os.Getwd()
	}
	localPath := filepath.Join(installDir, fileName)

	if _, err := os.Stat(localPath); err == nil {
		if isWorking(ctx, localPath) {
			slog.Info("Found local nano ffmpeg", "path", localPath)
			return localPath, nil
		}
		remferr := os.Remove(localPath)
		if remferr != nil {
			slog.Warn("Failed to delete a broken executable file of ffmpeg.", "path", localPath, "err", remferr)
		}
	}

	slog.Info("Downloading ffmpeg nano...", "url", downloadUrl)
	if err := downloadFile(ctx, client, downloadUrl, localPath); err != nil {
		return "", fmt.Errorf("failed to download ffmpeg: %w", err)
	}

	if runtime.GOOS != "windows" {
		if err := os.Chmod(localPath, 0755); err != nil {
			return "", fmt.Errorf("failed to chmod ffmpeg: %w", err)
		}
	}

	if isWorking(ctx, localPath) {
		slog.Info("FFmpeg installed successfully", "path", localPath)
		return localPath, nil
	}

	return "", fmt.Errorf("downloaded ffmpeg is not working")
}

func isWorking(ctx context.Context, path string) bool {
	if path == "" {
		return false
	}
	cmd := exec.CommandContext(ctx, path, "-version")
	return cmd.Run() == nil
}

func downloadFile(ctx context.Context, client providers.HTTPClient, url string, dest string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return err
	}
	resp, err := client.Do(req)
	if err != nil {
		return err
	}
	defer func(Body io.ReadCloser) {
		cerr := Body.Close()
		if cerr != nil {
			slog.Warn("Failed to close response body", "error", cerr)
		}
	}(resp.Body)

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("http status: %d", resp.StatusCode)
	}

	tmp := dest + ".part"
	out, err := os.Create(tmp)
	if err != nil {
		return err
	}

	_, err = io.Copy(out, resp.Body)
	if cerr := out.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		_ = os.Remove(tmp)
		return err
	}
	return os.Rename(tmp, dest)
}
