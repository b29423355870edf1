package providers

import (
	"context"
	"net/http"

	"github.com/imbecility/ytmp3-gateway/pkg/models"
)

type HTTPClient interface {
	Do(req *http.Request) (*http.Response, error)
}

// Converter turns a YouTube link into a vendor-hosted download in the requested format.
type Converter interface {
	Name() string
	Convert(ctx context.Context, youtubeURL, format string) (*models.ConversionResult, error)
}
