package providers

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"html"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"regexp"
	"strings"

	"github.com/imbecility/ytmp3-gateway/pkg/utils"
)

var (
	oembedEndpoint = "https://www.youtube.com/oembed"
	titleRe        = regexp.MustCompile(`<title>(.*?)(?: - YouTube)?</title>`)
)

const maxTitleScan = 1024 * 1024

// GetVideoTitle tries to get the exact title of the video: fast oEmbed first, then partial HTML parsing.
func GetVideoTitle(ctx context.Context, client HTTPClient, videoID string) (string, error) {
	title, err := fetchOembedTitle(ctx, client, videoID)
	if err == nil && title != "" {
		return title, nil
	}
	slog.Debug("oEmbed title failed, falling back to scraping", "err", err)
	return fetchScrapedTitle(ctx, client, utils.WatchURL(videoID))
}

// fetchOembedTitle requests official JSON for iframe-embed video
func fetchOembedTitle(ctx context.Context, client HTTPClient, videoID string) (string, error) {
	q := url.Values{}
	q.Set("url", utils.WatchURL(videoID))
	q.Set("format", "json")

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, oembedEndpoint+"?"+q.Encode(), nil)
	if err != nil {
		return "", err
	}
	resp, err := client.Do(req)
	if err != nil {
		return "", err
	}
	defer func(Body io.ReadCloser) {
		bcerr := Body.Close()
		if bcerr != nil {
			slog.Warn("failed to close response body", "err", bcerr)
		}
	}(resp.Body)

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("oembed status %d", resp.StatusCode)
	}

	var data struct {
		Title string `json:"title"`
	}
	if jderr := json.NewDecoder(resp.Body).Decode(&data); jderr != nil {
		return "", jderr
	}
	return strings.TrimSpace(data.Title), nil
}

// fetchScrapedTitle reads at most the first MiB of the page looking for <title>
func fetchScrapedTitle(ctx context.Context, client HTTPClient, pageURL string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, pageURL, nil)
	if err != nil {
		return "", err
	}
	resp, err := client.Do(req)
	if err != nil {
		return "", err
	}
	defer func(Body io.ReadCloser) {
		bcerr := Body.Close()
		if bcerr != nil {
			slog.Warn("failed to close response body", "err", bcerr)
		}
	}(resp.Body)

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("watch page status %d", resp.StatusCode)
	}

	scanner := bufio.NewScanner(io.LimitReader(resp.Body, maxTitleScan))
	buf := make([]byte, 64*1024)
	scanner.Buffer(buf, maxTitleScan)

	for scanner.Scan() {
		matches := titleRe.FindStringSubmatch(scanner.Text())
		if len(matches) >= 2 {
			if t := strings.TrimSpace(html.UnescapeString(matches[1])); t != "" {
				return t, nil
			}
		}
	}

	return "", fmt.Errorf("title not found in first %d bytes", maxTitleScan)
}
