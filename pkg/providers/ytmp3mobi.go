package providers

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"math/rand/v2"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/imbecility/ytmp3-gateway/pkg/errs"
	"github.com/imbecility/ytmp3-gateway/pkg/models"
	"github.com/imbecility/ytmp3-gateway/pkg/utils"
)

const (
	YTMP3InitURL = "https://d.ymcdn.org/api/v1/init?p=y&23=1llum1n471"
	YTMP3Referer = "https://id.ytmp3.mobi/"

	// progressReady is the vendor's progress code for a finished job.
	progressReady = 3

	maxVendorBody = 1 << 20
)

// SupportedFormats lists the output formats the vendor accepts.
var SupportedFormats = []string{"mp3", "mp4"}

// PollPolicy bounds the progress loop. A zero MaxAttempts or MaxElapsed leaves
// that dimension unbounded.
type PollPolicy struct {
	Interval    time.Duration
	MaxAttempts int
	MaxElapsed  time.Duration
}

func DefaultPollPolicy() PollPolicy {
	return PollPolicy{
		Interval:    time.Second,
		MaxAttempts: 300,
		MaxElapsed:  5 * time.Minute,
	}
}

// YTMP3Mobi drives the ytmp3.mobi handshake: init -> convert -> poll progress.
// It holds configuration only, every Convert call owns its own session.
type YTMP3Mobi struct {
	Client  HTTPClient
	InitURL string
	Referer string
	Poll    PollPolicy

	// Rand produces the cache-busting "_" values.
	Rand func() float64
	// Sleep waits between polls and must return early when ctx is done.
	Sleep func(ctx context.Context, d time.Duration) error
	Now   func() time.Time
}

func NewYTMP3Mobi(client HTTPClient, policy PollPolicy) *YTMP3Mobi {
	return &YTMP3Mobi{
		Client:  client,
		InitURL: YTMP3InitURL,
		Referer: YTMP3Referer,
		Poll:    policy,
	}
}

func (p *YTMP3Mobi) Name() string { return "ytmp3.mobi" }

type sessionState int

const (
	stateStart sessionState = iota
	stateIdentifierExtracted
	stateFormatValidated
	stateNegotiated
	stateJobCreated
	statePolling
	stateComplete
	stateFailed
)

func (s sessionState) String() string {
	switch s {
	case stateStart:
		return "start"
	case stateIdentifierExtracted:
		return "identifier_extracted"
	case stateFormatValidated:
		return "format_validated"
	case stateNegotiated:
		return "negotiated"
	case stateJobCreated:
		return "job_created"
	case statePolling:
		return "polling"
	case stateComplete:
		return "complete"
	case stateFailed:
		return "failed"
	default:
		return "unknown"
	}
}

type session struct {
	videoID     string
	format      string
	convertURL  string
	progressURL string
	downloadURL string
	progress    int
	title       string
	errMsg      string
	polls       int
	state       sessionState
}

func (s *session) advance(next sessionState) {
	slog.Debug("Conversion session", "video_id", s.videoID, "from", s.state, "to", next)
	s.state = next
}

// ValidateFormat lower-cases format and checks it against SupportedFormats.
func ValidateFormat(format string) (string, error) {
	f := strings.ToLower(strings.TrimSpace(format))
	for _, allowed := range SupportedFormats {
		if f == allowed {
			return f, nil
		}
	}
	return "", errs.Invalid("invalid format: %s. Available: %s", format, strings.Join(SupportedFormats, ", "))
}

func (p *YTMP3Mobi) Convert(ctx context.Context, ytURL, format string) (*models.ConversionResult, error) {
	s := &session{state: stateStart}

	vidID, err := utils.ExtractVideoID(ytURL)
	if err != nil {
		return nil, err
	}
	s.videoID = vidID
	s.advance(stateIdentifierExtracted)

	f, err := ValidateFormat(format)
	if err != nil {
		return nil, err
	}
	s.format = f
	s.advance(stateFormatValidated)

	if err := p.negotiate(ctx, s); err != nil {
		return nil, p.fail(s, err)
	}
	if err := p.createJob(ctx, s); err != nil {
		return nil, p.fail(s, err)
	}
	if err := p.pollProgress(ctx, s); err != nil {
		return nil, p.fail(s, err)
	}

	s.advance(stateComplete)
	slog.Info("Conversion ready", "provider", p.Name(), "video_id", s.videoID, "format", s.format, "polls", s.polls)

	return &models.ConversionResult{
		Title:       s.title,
		DownloadURL: s.downloadURL,
		VideoID:     s.videoID,
		Format:      s.format,
	}, nil
}

func (p *YTMP3Mobi) fail(s *session, err error) error {
	prev := s.state
	s.advance(stateFailed)
	slog.Warn("Conversion failed", "provider", p.Name(), "video_id", s.videoID, "state", prev, "err", err)
	return err
}

// negotiate asks the vendor which convert endpoint this session should use.
func (p *YTMP3Mobi) negotiate(ctx context.Context, s *session) error {
	initURL := p.InitURL
	if initURL == "" {
		initURL = YTMP3InitURL
	}
	sep := "?"
	if strings.Contains(initURL, "?") {
		sep = "&"
	}

	var res struct {
		ConvertURL *string `json:"convertURL"`
	}
	if err := p.fetchJSON(ctx, initURL+sep+"_="+p.random(), "init convertURL", &res); err != nil {
		return err
	}
	if res.ConvertURL == nil || *res.ConvertURL == "" {
		return errs.Upstream("malformed response on init convertURL: missing convertURL")
	}

	s.convertURL = *res.ConvertURL
	s.advance(stateNegotiated)
	return nil
}

// createJob submits the video to the convert endpoint.
func (p *YTMP3Mobi) createJob(ctx context.Context, s *session) error {
	u, err := url.Parse(s.convertURL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") {
		return errs.Upstream("malformed response on init convertURL: bad convertURL %q", s.convertURL)
	}
	q := u.Query()
	q.Set("v", s.videoID)
	q.Set("f", s.format)
	q.Set("_", p.random())
	u.RawQuery = q.Encode()

	var res struct {
		ProgressURL *string `json:"progressURL"`
		DownloadURL *string `json:"downloadURL"`
	}
	if err := p.fetchJSON(ctx, u.String(), "get progress/downloadURL", &res); err != nil {
		return err
	}
	if res.ProgressURL == nil || *res.ProgressURL == "" {
		return errs.Upstream("malformed response on get progress/downloadURL: missing progressURL")
	}
	if res.DownloadURL == nil || *res.DownloadURL == "" {
		return errs.Upstream("malformed response on get progress/downloadURL: missing downloadURL")
	}

	s.progressURL = *res.ProgressURL
	s.downloadURL = *res.DownloadURL
	s.advance(stateJobCreated)
	return nil
}

// pollProgress re-reads progressURL until the job is ready, the vendor
// reports an error or the poll policy runs out.
func (p *YTMP3Mobi) pollProgress(ctx context.Context, s *session) error {
	s.advance(statePolling)
	started := p.now()

	for attempt := 1; ; attempt++ {
		var res struct {
			Error    json.RawMessage `json:"error"`
			Progress *float64        `json:"progress"`
			Title    *string         `json:"title"`
		}
		if err := p.fetchJSON(ctx, s.progressURL, "progressURL", &res); err != nil {
			return err
		}
		s.polls++

		if msg, failed := vendorError(res.Error); failed {
			s.errMsg = msg
			return errs.Upstream("%s", msg)
		}
		if res.Progress == nil {
			return errs.Upstream("malformed response on progressURL: missing progress")
		}
		s.progress = int(*res.Progress)
		if res.Title != nil {
			s.title = *res.Title
		}

		slog.Debug("Progress polled", "video_id", s.videoID, "attempt", attempt, "progress", s.progress)
		if s.progress == progressReady {
			return nil
		}

		if p.Poll.MaxAttempts > 0 && attempt >= p.Poll.MaxAttempts {
			return errs.Timeout("conversion not ready after %d polls", attempt)
		}
		if p.Poll.MaxElapsed > 0 && p.now().Sub(started) >= p.Poll.MaxElapsed {
			return errs.Timeout("conversion not ready after %s", p.Poll.MaxElapsed)
		}

		if err := p.sleep(ctx, p.Poll.Interval); err != nil {
			return err
		}
	}
}

func (p *YTMP3Mobi) fetchJSON(ctx context.Context, rawURL, desc string, dst any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return errs.Upstream("fetch failed on %s | %v", desc, err)
	}
	referer := p.Referer
	if referer == "" {
		referer = YTMP3Referer
	}
	req.Header.Set("Referer", referer)

	resp, err := p.Client.Do(req)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return fmt.Errorf("fetch %s: %w", desc, ctxErr)
		}
		return errs.Upstream("fetch failed on %s | %v", desc, err)
	}
	defer func(Body io.ReadCloser) {
		cerr := Body.Close()
		if cerr != nil {
			slog.Warn("Failed to close response body", "err", cerr)
		}
	}(resp.Body)

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return errs.Upstream("fetch failed on %s | %s", desc, resp.Status)
	}

	if err := json.NewDecoder(io.LimitReader(resp.Body, maxVendorBody)).Decode(dst); err != nil {
		return errs.Upstream("malformed response on %s: %v", desc, err)
	}
	return nil
}

// vendorError reports whether the progress payload's error field is truthy
// and returns it as a message.
func vendorError(raw json.RawMessage) (string, bool) {
	if len(raw) == 0 {
		return "", false
	}
	var v any
	if err := json.Unmarshal(raw, &v); err != nil {
		return string(raw), true
	}
	switch e := v.(type) {
	case nil:
		return "", false
	case bool:
		if !e {
			return "", false
		}
		return "vendor reported an error", true
	case string:
		if e == "" {
			return "", false
		}
		return e, true
	case float64:
		if e == 0 {
			return "", false
		}
		return strconv.FormatFloat(e, 'f', -1, 64), true
	default:
		return string(raw), true
	}
}

func (p *YTMP3Mobi) random() string {
	r := rand.Float64
	if p.Rand != nil {
		r = p.Rand
	}
	return strconv.FormatFloat(r(), 'f', -1, 64)
}

func (p *YTMP3Mobi) sleep(ctx context.Context, d time.Duration) error {
	if p.Sleep != nil {
		return p.Sleep(ctx, d)
	}
	return SleepContext(ctx, d)
}

func (p *YTMP3Mobi) now() time.Time {
	if p.Now != nil {
		return p.Now()
	}
	return time.Now()
}

// SleepContext waits for d or until ctx is done.
func SleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
