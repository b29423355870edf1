package client

import (
	"fmt"
	"net/http"

	fhttp "github.com/bogdanfinn/fhttp"
	tls_client "github.com/bogdanfinn/tls-client"
	"github.com/bogdanfinn/tls-client/profiles"

	"github.com/imbecility/ytmp3-gateway/pkg/providers"
)

// DefaultUserAgent matches the Chrome profile the TLS fingerprint imitates.
const DefaultUserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/133.0.0.0 Safari/537.36"

type Options struct {
	// TimeoutSec caps a single request including body transfer.
	TimeoutSec int
	// InsecureSkipVerify tolerates vendors that proxy links through broken certificates.
	InsecureSkipVerify bool
	UserAgent          string
}

type tlsWrapper struct {
	innerClient tls_client.HttpClient
	userAgent   string
}

func (w *tlsWrapper) Do(req *http.Request) (*http.Response, error) {
	fReq := &fhttp.Request{
		Method:        req.Method,
		URL:           req.URL,
		Proto:         req.Proto,
		ProtoMajor:    req.ProtoMajor,
		ProtoMinor:    req.ProtoMinor,
		Header:        make(fhttp.Header),
		Body:          req.Body,
		ContentLength: req.ContentLength,
		Host:          req.Host,
	}
	fReq = fReq.WithContext(req.Context())

	for k, v := range req.Header {
		fReq.Header[k] = v
	}
	if fReq.Header.Get("User-Agent") == "" && w.userAgent != "" {
		fReq.Header.Set("User-Agent", w.userAgent)
	}

	resp, err := w.innerClient.Do(fReq)
	if err != nil {
		return nil, err
	}

	netResp := &http.Response{
		Status:           resp.Status,
		StatusCode:       resp.StatusCode,
		Proto:            resp.Proto,
		ProtoMajor:       resp.ProtoMajor,
		ProtoMinor:       resp.ProtoMinor,
		ContentLength:    resp.ContentLength,
		Body:             resp.Body,
		Header:           make(http.Header),
		Uncompressed:     resp.Uncompressed,
		TransferEncoding: resp.TransferEncoding,
		Request:          req,
	}

	for k, v := range resp.Header {
		netResp.Header[k] = v
	}

	return netResp, nil
}

func NewHttpClient(opts Options) (providers.HTTPClient, error) {
	if opts.TimeoutSec <= 0 {
		opts.TimeoutSec = 60
	}
	if opts.UserAgent == "" {
		opts.UserAgent = DefaultUserAgent
	}

	jar := tls_client.NewCookieJar()

	options := []tls_client.HttpClientOption{
		tls_client.WithTimeoutSeconds(opts.TimeoutSec),
		tls_client.WithClientProfile(profiles.DefaultClientProfile),
		tls_client.WithRandomTLSExtensionOrder(),
		tls_client.WithCookieJar(jar),
	}
	if opts.InsecureSkipVerify {
		options = append(options, tls_client.WithInsecureSkipVerify())
	}

	c, err := tls_client.NewHttpClient(tls_client.NewNoopLogger(), options...)
	if err != nil {
		return nil, fmt.Errorf("failed to create tls client: %w", err)
	}

	return &tlsWrapper{innerClient: c, userAgent: opts.UserAgent}, nil
}
