package providers

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/imbecility/ytmp3-gateway/pkg/errs"
)

const testVideoURL = "https://www.youtube.com/watch?v=dQw4w9WgXcQ"

// fakeVendor mimics the three ytmp3.mobi endpoints. Each job created through
// /convert gets its own progress sequence.
type fakeVendor struct {
	srv *httptest.Server

	mu            sync.Mutex
	initCalls     int
	convertCalls  int
	progressCalls int
	initQuery     url.Values
	convertQuery  url.Values
	referers      []string

	initStatus int
	initBody   string
	jobBody    string
	// progress returns the body for the n-th poll (0-based) of job.
	progress func(job, n int) string
}

func newFakeVendor(t *testing.T) *fakeVendor {
	t.Helper()
	v := &fakeVendor{initStatus: http.StatusOK}
	v.progress = func(job, n int) string { return `{"progress":3,"title":"Never Gonna Give You Up"}` }

	mux := http.NewServeMux()
	mux.HandleFunc("/api/v1/init", func(w http.ResponseWriter, r *http.Request) {
		v.mu.Lock()
		v.initCalls++
		v.initQuery = r.URL.Query()
		v.referers = append(v.referers, r.Header.Get("Referer"))
		status, body := v.initStatus, v.initBody
		v.mu.Unlock()

		if body == "" {
			body = fmt.Sprintf(`{"convertURL":"%s/convert?sig=abc"}`, v.srv.URL)
		}
		w.WriteHeader(status)
		_, _ = w.Write([]byte(body))
	})
	mux.HandleFunc("/convert", func(w http.ResponseWriter, r *http.Request) {
		v.mu.Lock()
		v.convertCalls++
		job := v.convertCalls
		v.convertQuery = r.URL.Query()
		v.referers = append(v.referers, r.Header.Get("Referer"))
		body := v.jobBody
		v.mu.Unlock()

		if body == "" {
			body = fmt.Sprintf(`{"progressURL":"%s/progress?job=%d","downloadURL":"https://cdn.example/dl/%d.mp3"}`, v.srv.URL, job, job)
		}
		_, _ = w.Write([]byte(body))
	})
	polls := map[int]int{}
	mux.HandleFunc("/progress", func(w http.ResponseWriter, r *http.Request) {
		job, _ := strconv.Atoi(r.URL.Query().Get("job"))
		v.mu.Lock()
		v.progressCalls++
		n := polls[job]
		polls[job]++
		v.referers = append(v.referers, r.Header.Get("Referer"))
		v.mu.Unlock()

		_, _ = w.Write([]byte(v.progress(job, n)))
	})

	v.srv = httptest.NewServer(mux)
	t.Cleanup(v.srv.Close)
	return v
}

func (v *fakeVendor) calls() (initCalls, convertCalls, progressCalls int) {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.initCalls, v.convertCalls, v.progressCalls
}

type sleepRecorder struct {
	mu    sync.Mutex
	waits []time.Duration
}

func (s *sleepRecorder) Sleep(ctx context.Context, d time.Duration) error {
	s.mu.Lock()
	s.waits = append(s.waits, d)
	s.mu.Unlock()
	return ctx.Err()
}

func newTestConverter(v *fakeVendor, policy PollPolicy) (*YTMP3Mobi, *sleepRecorder) {
	rec := &sleepRecorder{}
	p := NewYTMP3Mobi(v.srv.Client(), policy)
	p.InitURL = v.srv.URL + "/api/v1/init?p=y&23=1llum1n471"
	p.Rand = func() float64 { return 0.25 }
	p.Sleep = rec.Sleep
	return p, rec
}

func sequence(bodies ...string) func(job, n int) string {
	return func(job, n int) string {
		if n >= len(bodies) {
			return bodies[len(bodies)-1]
		}
		return bodies[n]
	}
}

func TestYTMP3MobiConvert(t *testing.T) {
	t.Run("polls until ready and returns the job download url", func(t *testing.T) {
		v := newFakeVendor(t)
		v.progress = sequence(`{"progress":1}`, `{"progress":2,"title":null}`, `{"progress":3,"title":"X"}`)
		p, rec := newTestConverter(v, PollPolicy{Interval: time.Second})

		res, err := p.Convert(context.Background(), testVideoURL, "mp3")
		require.NoError(t, err)

		assert.Equal(t, "X", res.Title)
		assert.Equal(t, "https://cdn.example/dl/1.mp3", res.DownloadURL)
		assert.Equal(t, "dQw4w9WgXcQ", res.VideoID)

		_, _, progressCalls := v.calls()
		assert.Equal(t, 3, progressCalls)
		assert.Equal(t, []time.Duration{time.Second, time.Second}, rec.waits)
	})

	t.Run("builds vendor requests exactly", func(t *testing.T) {
		v := newFakeVendor(t)
		p, _ := newTestConverter(v, PollPolicy{Interval: time.Second})

		_, err := p.Convert(context.Background(), "https://youtu.be/dQw4w9WgXcQ", "MP4")
		require.NoError(t, err)

		assert.Equal(t, "y", v.initQuery.Get("p"))
		assert.Equal(t, "1llum1n471", v.initQuery.Get("23"))
		assert.Equal(t, "0.25", v.initQuery.Get("_"))

		assert.Equal(t, "abc", v.convertQuery.Get("sig"))
		assert.Equal(t, "dQw4w9WgXcQ", v.convertQuery.Get("v"))
		assert.Equal(t, "mp4", v.convertQuery.Get("f"))
		assert.Equal(t, "0.25", v.convertQuery.Get("_"))

		require.Len(t, v.referers, 3)
		for _, ref := range v.referers {
			assert.Equal(t, YTMP3Referer, ref)
		}
	})

	t.Run("rejects unsupported formats before any call", func(t *testing.T) {
		v := newFakeVendor(t)
		p, _ := newTestConverter(v, DefaultPollPolicy())

		for _, f := range []string{"wav", "FLAC", "", "mp3x"} {
			_, err := p.Convert(context.Background(), testVideoURL, f)
			require.ErrorIs(t, err, errs.ErrInvalidInput, f)
			assert.Contains(t, err.Error(), "mp3, mp4")
		}

		i, c, pr := v.calls()
		assert.Zero(t, i+c+pr)
	})

	t.Run("rejects unrecognized links before any call", func(t *testing.T) {
		v := newFakeVendor(t)
		p, _ := newTestConverter(v, DefaultPollPolicy())

		_, err := p.Convert(context.Background(), "https://vimeo.com/1", "mp3")
		require.ErrorIs(t, err, errs.ErrInvalidInput)

		i, c, pr := v.calls()
		assert.Zero(t, i+c+pr)
	})

	t.Run("missing convertURL stops before job creation", func(t *testing.T) {
		v := newFakeVendor(t)
		v.initBody = `{"status":"ok"}`
		p, _ := newTestConverter(v, DefaultPollPolicy())

		_, err := p.Convert(context.Background(), testVideoURL, "mp3")
		require.ErrorIs(t, err, errs.ErrUpstream)
		assert.Contains(t, err.Error(), "convertURL")

		i, c, _ := v.calls()
		assert.Equal(t, 1, i)
		assert.Zero(t, c)
	})

	t.Run("mistyped convertURL is an upstream error", func(t *testing.T) {
		v := newFakeVendor(t)
		v.initBody = `{"convertURL":42}`
		p, _ := newTestConverter(v, DefaultPollPolicy())

		_, err := p.Convert(context.Background(), testVideoURL, "mp3")
		require.ErrorIs(t, err, errs.ErrUpstream)
	})

	t.Run("non-success status is an upstream error", func(t *testing.T) {
		v := newFakeVendor(t)
		v.initStatus = http.StatusInternalServerError
		v.initBody = `{}`
		p, _ := newTestConverter(v, DefaultPollPolicy())

		_, err := p.Convert(context.Background(), testVideoURL, "mp3")
		require.ErrorIs(t, err, errs.ErrUpstream)
		assert.Equal(t, "fetch failed on init convertURL | 500 Internal Server Error", err.Error())
	})

	t.Run("missing downloadURL stops before polling", func(t *testing.T) {
		v := newFakeVendor(t)
		v.jobBody = `{"progressURL":"http://example.invalid/p"}`
		p, _ := newTestConverter(v, DefaultPollPolicy())

		_, err := p.Convert(context.Background(), testVideoURL, "mp3")
		require.ErrorIs(t, err, errs.ErrUpstream)
		assert.Contains(t, err.Error(), "downloadURL")

		_, _, pr := v.calls()
		assert.Zero(t, pr)
	})

	t.Run("vendor error terminates polling", func(t *testing.T) {
		v := newFakeVendor(t)
		v.progress = sequence(`{"progress":1}`, `{"progress":1,"error":"blocked"}`, `{"progress":3,"title":"late"}`)
		p, rec := newTestConverter(v, PollPolicy{Interval: time.Second})

		_, err := p.Convert(context.Background(), testVideoURL, "mp3")
		require.ErrorIs(t, err, errs.ErrUpstream)
		assert.Equal(t, "blocked", err.Error())

		_, _, pr := v.calls()
		assert.Equal(t, 2, pr)
		assert.Len(t, rec.waits, 1)
	})

	t.Run("missing progress is an upstream error", func(t *testing.T) {
		v := newFakeVendor(t)
		v.progress = sequence(`{"title":"no progress"}`)
		p, _ := newTestConverter(v, DefaultPollPolicy())

		_, err := p.Convert(context.Background(), testVideoURL, "mp3")
		require.ErrorIs(t, err, errs.ErrUpstream)
		assert.Contains(t, err.Error(), "missing progress")
	})

	t.Run("mistyped progress is an upstream error", func(t *testing.T) {
		v := newFakeVendor(t)
		v.progress = sequence(`{"progress":"three"}`)
		p, _ := newTestConverter(v, DefaultPollPolicy())

		_, err := p.Convert(context.Background(), testVideoURL, "mp3")
		require.ErrorIs(t, err, errs.ErrUpstream)
	})

	t.Run("max attempts yields a timeout", func(t *testing.T) {
		v := newFakeVendor(t)
		v.progress = sequence(`{"progress":1}`)
		p, rec := newTestConverter(v, PollPolicy{Interval: time.Second, MaxAttempts: 4})

		_, err := p.Convert(context.Background(), testVideoURL, "mp3")
		require.ErrorIs(t, err, errs.ErrTimeout)

		_, _, pr := v.calls()
		assert.Equal(t, 4, pr)
		assert.Len(t, rec.waits, 3)
	})

	t.Run("max elapsed yields a timeout", func(t *testing.T) {
		v := newFakeVendor(t)
		v.progress = sequence(`{"progress":2}`)
		p, _ := newTestConverter(v, PollPolicy{Interval: time.Second, MaxElapsed: 3 * time.Minute})

		clock := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
		p.Now = func() time.Time {
			clock = clock.Add(time.Minute)
			return clock
		}

		_, err := p.Convert(context.Background(), testVideoURL, "mp3")
		require.ErrorIs(t, err, errs.ErrTimeout)

		_, _, pr := v.calls()
		assert.Equal(t, 3, pr)
	})

	t.Run("cancellation interrupts the wait", func(t *testing.T) {
		v := newFakeVendor(t)
		v.progress = sequence(`{"progress":1}`)
		p, _ := newTestConverter(v, PollPolicy{Interval: time.Hour})

		ctx, cancel := context.WithCancel(context.Background())
		p.Sleep = func(ctx context.Context, d time.Duration) error {
			cancel()
			return SleepContext(ctx, d)
		}

		_, err := p.Convert(ctx, testVideoURL, "mp3")
		require.ErrorIs(t, err, context.Canceled)

		_, _, pr := v.calls()
		assert.Equal(t, 1, pr)
	})

	t.Run("each call returns its own title", func(t *testing.T) {
		v := newFakeVendor(t)
		v.progress = func(job, n int) string {
			if n == 0 {
				return `{"progress":1}`
			}
			return fmt.Sprintf(`{"progress":3,"title":"run-%d"}`, job)
		}
		p, _ := newTestConverter(v, PollPolicy{Interval: time.Second})

		first, err := p.Convert(context.Background(), testVideoURL, "mp3")
		require.NoError(t, err)
		second, err := p.Convert(context.Background(), testVideoURL, "mp3")
		require.NoError(t, err)

		assert.Equal(t, "run-1", first.Title)
		assert.Equal(t, "https://cdn.example/dl/1.mp3", first.DownloadURL)
		assert.Equal(t, "run-2", second.Title)
		assert.Equal(t, "https://cdn.example/dl/2.mp3", second.DownloadURL)
	})

	t.Run("concurrent calls run independent handshakes", func(t *testing.T) {
		v := newFakeVendor(t)
		v.progress = func(job, n int) string {
			return fmt.Sprintf(`{"progress":3,"title":"run-%d"}`, job)
		}
		p, _ := newTestConverter(v, PollPolicy{Interval: time.Second})

		const n = 8
		titles := make([]string, n)
		var wg sync.WaitGroup
		for i := 0; i < n; i++ {
			wg.Add(1)
			go func(i int) {
				defer wg.Done()
				res, err := p.Convert(context.Background(), testVideoURL, "mp3")
				if assert.NoError(t, err) {
					titles[i] = res.Title
				}
			}(i)
		}
		wg.Wait()

		seen := map[string]bool{}
		for _, title := range titles {
			assert.False(t, seen[title], "duplicate title %q", title)
			seen[title] = true
		}
		i, c, pr := v.calls()
		assert.Equal(t, n, i)
		assert.Equal(t, n, c)
		assert.Equal(t, n, pr)
	})
}

func TestVendorError(t *testing.T) {
	tests := []struct {
		raw    string
		msg    string
		failed bool
	}{
		{``, "", false},
		{`null`, "", false},
		{`false`, "", false},
		{`""`, "", false},
		{`0`, "", false},
		{`"blocked"`, "blocked", true},
		{`true`, "vendor reported an error", true},
		{`429`, "429", true},
		{`{"code":1}`, `{"code":1}`, true},
	}
	for _, tt := range tests {
		t.Run(tt.raw, func(t *testing.T) {
			msg, failed := vendorError(json.RawMessage(tt.raw))
			assert.Equal(t, tt.failed, failed)
			assert.Equal(t, tt.msg, msg)
		})
	}
}

func TestValidateFormat(t *testing.T) {
	f, err := ValidateFormat("Mp3")
	require.NoError(t, err)
	assert.Equal(t, "mp3", f)

	_, err = ValidateFormat("ogg")
	assert.ErrorIs(t, err, errs.ErrInvalidInput)
}

func TestSleepContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.ErrorIs(t, SleepContext(ctx, time.Hour), context.Canceled)
	assert.NoError(t, SleepContext(context.Background(), time.Millisecond))
}
