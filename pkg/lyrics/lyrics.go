// Package lyrics searches Genius and scrapes lyrics text from song pages.
package lyrics

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/imbecility/ytmp3-gateway/pkg/errs"
	"github.com/imbecility/ytmp3-gateway/pkg/providers"
)

const DefaultBaseURL = "https://genius.com"

type Song struct {
	ID        int64  `json:"id"`
	Title     string `json:"title"`
	Artist    string `json:"artist"`
	URL       string `json:"url"`
	Thumbnail string `json:"thumbnail,omitempty"`
}

type Lyrics struct {
	Title  string `json:"title"`
	Artist string `json:"artist,omitempty"`
	URL    string `json:"url"`
	Lyrics string `json:"lyrics"`
}

type Client struct {
	HTTP    providers.HTTPClient
	BaseURL string
}

func New(client providers.HTTPClient, baseURL string) *Client {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	return &Client{HTTP: client, BaseURL: strings.TrimRight(baseURL, "/")}
}

// Search returns song hits for a free-text query, best match first.
func (c *Client) Search(ctx context.Context, query string) ([]Song, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, errs.Invalid("missing search query")
	}

	q := url.Values{}
	q.Set("q", query)
	resp, err := c.get(ctx, c.BaseURL+"/api/search/multi?"+q.Encode(), "search")
	if err != nil {
		return nil, err
	}
	defer closeBody(resp.Body)

	var payload struct {
		Response struct {
			Sections []struct {
				Type string `json:"type"`
				Hits []struct {
					Type   string `json:"type"`
					Result struct {
						ID            int64  `json:"id"`
						Title         string `json:"title"`
						URL           string `json:"url"`
						Thumbnail     string `json:"song_art_image_thumbnail_url"`
						PrimaryArtist struct {
							Name string `json:"name"`
						} `json:"primary_artist"`
					} `json:"result"`
				} `json:"hits"`
			} `json:"sections"`
		} `json:"response"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return nil, errs.Upstream("malformed lyrics search response: %v", err)
	}

	seen := map[int64]bool{}
	songs := []Song{}
	for _, section := range payload.Response.Sections {
		for _, hit := range section.Hits {
			if hit.Type != "song" || seen[hit.Result.ID] || hit.Result.URL == "" {
				continue
			}
			seen[hit.Result.ID] = true
			songs = append(songs, Song{
				ID:        hit.Result.ID,
				Title:     hit.Result.Title,
				Artist:    hit.Result.PrimaryArtist.Name,
				URL:       hit.Result.URL,
				Thumbnail: hit.Result.Thumbnail,
			})
		}
	}

	slog.Debug("Lyrics search", "query", query, "hits", len(songs))
	return songs, nil
}

// Fetch scrapes the lyrics text from a song page on the configured site.
func (c *Client) Fetch(ctx context.Context, pageURL string) (*Lyrics, error) {
	if err := c.checkPageURL(pageURL); err != nil {
		return nil, err
	}

	resp, err := c.get(ctx, pageURL, "lyrics page")
	if err != nil {
		return nil, err
	}
	defer closeBody(resp.Body)

	doc, err := goquery.NewDocumentFromReader(resp.Body)
	if err != nil {
		return nil, errs.Upstream("failed to parse lyrics page: %v", err)
	}

	containers := doc.Find(`div[data-lyrics-container="true"]`)
	if containers.Length() == 0 {
		return nil, errs.Upstream("no lyrics found on %s", pageURL)
	}

	var parts []string
	containers.Each(func(_ int, s *goquery.Selection) {
		s.Find(`[data-exclude-from-selection="true"]`).Remove()
		if text := strings.TrimSpace(containerText(s)); text != "" {
			parts = append(parts, text)
		}
	})

	title, _ := doc.Find(`meta[property="og:title"]`).Attr("content")
	if title == "" {
		title = doc.Find("title").First().Text()
	}
	artist := doc.Find(`a[href*="/artists/"]`).First().Text()

	return &Lyrics{
		Title:  strings.TrimSpace(title),
		Artist: strings.TrimSpace(artist),
		URL:    pageURL,
		Lyrics: strings.Join(parts, "\n"),
	}, nil
}

// containerText flattens a lyrics container, turning <br> into newlines.
func containerText(s *goquery.Selection) string {
	var b strings.Builder
	var walk func(*goquery.Selection)
	walk = func(sel *goquery.Selection) {
		sel.Contents().Each(func(_ int, n *goquery.Selection) {
			switch goquery.NodeName(n) {
			case "br":
				b.WriteString("\n")
			case "#text":
				b.WriteString(n.Text())
			default:
				walk(n)
			}
		})
	}
	walk(s)
	return b.String()
}

func (c *Client) checkPageURL(pageURL string) error {
	u, err := url.Parse(strings.TrimSpace(pageURL))
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return errs.Invalid("invalid lyrics url: %q", pageURL)
	}
	base, err := url.Parse(c.BaseURL)
	if err != nil {
		return fmt.Errorf("bad lyrics base url: %w", err)
	}
	if trimWWW(u.Host) != trimWWW(base.Host) {
		return errs.Invalid("lyrics url must be on %s", base.Host)
	}
	return nil
}

func (c *Client) get(ctx context.Context, rawURL, desc string) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, errs.Invalid("bad %s url: %v", desc, err)
	}
	req.Header.Set("Accept-Language", "en-US,en;q=0.9")

	resp, err := c.HTTP.Do(req)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		return nil, errs.Upstream("fetch failed on %s | %v", desc, err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		closeBody(resp.Body)
		return nil, errs.Upstream("fetch failed on %s | %s", desc, resp.Status)
	}
	return resp, nil
}

func closeBody(body io.ReadCloser) {
	if cerr := body.Close(); cerr != nil {
		slog.Warn("Failed to close response body", "err", cerr)
	}
}

func trimWWW(host string) string {
	return strings.TrimPrefix(strings.ToLower(host), "www.")
}
