package gateway

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/imbecility/ytmp3-gateway/pkg/errs"
	"github.com/imbecility/ytmp3-gateway/pkg/lyrics"
	"github.com/imbecility/ytmp3-gateway/pkg/models"
)

type fakeConverter struct {
	res   *models.ConversionResult
	err   error
	calls int
}

func (f *fakeConverter) Name() string { return "fake" }

func (f *fakeConverter) Convert(ctx context.Context, youtubeURL, format string) (*models.ConversionResult, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	res := *f.res
	return &res, nil
}

type fakeLyrics struct{ query, page string }

func (f *fakeLyrics) Search(ctx context.Context, query string) ([]lyrics.Song, error) {
	f.query = query
	return []lyrics.Song{{ID: 1, Title: "Hello"}}, nil
}

func (f *fakeLyrics) Fetch(ctx context.Context, pageURL string) (*lyrics.Lyrics, error) {
	f.page = pageURL
	return &lyrics.Lyrics{Title: "Hello", Lyrics: "Hello, it's me"}, nil
}

func TestServiceConvert(t *testing.T) {
	titleCalls := 0
	titles := func(ctx context.Context, id string) (string, error) {
		titleCalls++
		return "Real Title", nil
	}

	t.Run("keeps a good vendor title", func(t *testing.T) {
		titleCalls = 0
		conv := &fakeConverter{res: &models.ConversionResult{Title: "Song", DownloadURL: "https://dl/1", VideoID: "abc"}}
		s := NewService(conv, nil, nil, titles)

		res, err := s.Convert(context.Background(), "https://youtu.be/abc", "mp3")
		require.NoError(t, err)
		assert.Equal(t, "Song", res.Title)
		assert.Equal(t, "https://dl/1", res.DownloadURL)
		assert.Zero(t, titleCalls)
	})

	t.Run("replaces an empty title", func(t *testing.T) {
		titleCalls = 0
		conv := &fakeConverter{res: &models.ConversionResult{DownloadURL: "https://dl/1", VideoID: "abc"}}
		s := NewService(conv, nil, nil, titles)

		res, err := s.Convert(context.Background(), "https://youtu.be/abc", "mp3")
		require.NoError(t, err)
		assert.Equal(t, "Real Title", res.Title)
		assert.Equal(t, 1, titleCalls)
	})

	t.Run("title lookup failure never fails the conversion", func(t *testing.T) {
		conv := &fakeConverter{res: &models.ConversionResult{DownloadURL: "https://dl/1", VideoID: "abc"}}
		s := NewService(conv, nil, nil, func(ctx context.Context, id string) (string, error) {
			return "", errors.New("oembed down")
		})

		res, err := s.Convert(context.Background(), "https://youtu.be/abc", "mp3")
		require.NoError(t, err)
		assert.Equal(t, "video_abc", res.Title)
	})

	t.Run("errors pass through unchanged", func(t *testing.T) {
		conv := &fakeConverter{err: errs.Upstream("blocked")}
		s := NewService(conv, nil, nil, titles)

		_, err := s.Convert(context.Background(), "https://youtu.be/abc", "mp3")
		assert.EqualError(t, err, "blocked")
		assert.ErrorIs(t, err, errs.ErrUpstream)
	})
}

func TestServiceLyrics(t *testing.T) {
	lc := &fakeLyrics{}
	s := NewService(nil, lc, nil, nil)

	songs, err := s.SearchLyrics(context.Background(), "hello")
	require.NoError(t, err)
	assert.Len(t, songs, 1)
	assert.Equal(t, "hello", lc.query)

	l, err := s.FetchLyrics(context.Background(), "https://genius.com/x")
	require.NoError(t, err)
	assert.Equal(t, "Hello, it's me", l.Lyrics)
	assert.Equal(t, "https://genius.com/x", lc.page)
}

func TestNeedsBetterTitle(t *testing.T) {
	s := &Service{}
	assert.True(t, s.needsBetterTitle(""))
	assert.True(t, s.needsBetterTitle("  "))
	assert.True(t, s.needsBetterTitle("YouTube Video"))
	assert.True(t, s.needsBetterTitle("ytmp3.mobi - download"))
	assert.False(t, s.needsBetterTitle("Rick Astley - Never Gonna Give You Up"))
}
