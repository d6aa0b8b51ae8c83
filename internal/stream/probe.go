// Package stream checks radio stream URLs before they are queued on the
// daemon. A probe fetches the first byte of the resource and looks at the
// response headers; it never decodes audio.
package stream

import (
	"context"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/hashicorp/go-retryablehttp"
)

// Defaults used when the Prober fields are zero.
const (
	DefaultTimeout  = 5 * time.Second
	DefaultRetryMax = 2
)

// ErrNotAudio is returned when the URL answers but does not serve a stream.
var ErrNotAudio = errors.New("not an audio stream")

// playlistTypes are content types of playlist files the daemon can expand.
var playlistTypes = map[string]bool{
	"audio/x-mpegurl":               true,
	"audio/mpegurl":                 true,
	"application/x-mpegurl":         true,
	"application/vnd.apple.mpegurl": true,
	"audio/x-scpls":                 true,
	"application/pls+xml":           true,
}

// ///////////////////////////////////////////////
// Types
// ///////////////////////////////////////////////

// Info describes an accepted stream.
type Info struct {
	URL         string
	ContentType string
	// Name is the station name from icy-name, if sent.
	Name string
	// Playlist is true when the URL is a playlist rather than the stream itself.
	Playlist bool
}

// Prober probes stream URLs over HTTP with retries.
type Prober struct {
	// Timeout bounds each attempt.
	Timeout time.Duration
	// RetryMax is the number of retries after the first attempt.
	RetryMax int
	// RetryWaitMin and RetryWaitMax bound the backoff between attempts.
	// Zero keeps the retryablehttp defaults.
	RetryWaitMin time.Duration
	RetryWaitMax time.Duration
}

func (p Prober) client() *retryablehttp.Client {
	c := retryablehttp.NewClient()
	c.RetryMax = p.RetryMax
	if c.RetryMax < 0 {
		c.RetryMax = 0
	}
	if p.RetryWaitMin > 0 {
		c.RetryWaitMin = p.RetryWaitMin
	}
	if p.RetryWaitMax > 0 {
		c.RetryWaitMax = p.RetryWaitMax
	}
	c.HTTPClient.Timeout = p.Timeout
	if c.HTTPClient.Timeout <= 0 {
		c.HTTPClient.Timeout = DefaultTimeout
	}
	c.Logger = nil // suppress retryablehttp's default logging
	return c
}

// Probe checks rawURL with the default settings.
func Probe(ctx context.Context, rawURL string) (Info, error) {
	return Prober{RetryMax: DefaultRetryMax}.Probe(ctx, rawURL)
}

// ///////////////////////////////////////////////
// Probe
// ///////////////////////////////////////////////

// Probe requests the first byte of rawURL and accepts it when the response
// is 2xx and carries an audio or playlist content type, or any Icecast
// icy-* header.
func (p Prober) Probe(ctx context.Context, rawURL string) (Info, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return Info{}, fmt.Errorf("parsing %q: %w", rawURL, err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return Info{}, fmt.Errorf("unsupported scheme %q in %s", u.Scheme, rawURL)
	}

	req, err := retryablehttp.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return Info{}, fmt.Errorf("building request for %s: %w", rawURL, err)
	}
	req.Header.Set("Range", "bytes=0-0")
	req.Header.Set("Icy-MetaData", "1")

	resp, err := p.client().Do(req)
	if err != nil {
		return Info{}, fmt.Errorf("GET %s: %w", rawURL, err)
	}
	defer resp.Body.Close()
	// Live streams never end; read at most the byte we asked for.
	io.Copy(io.Discard, io.LimitReader(resp.Body, 1))

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return Info{}, fmt.Errorf("GET %s: status %d", rawURL, resp.StatusCode)
	}
	return classify(rawURL, resp.Header)
}

func classify(rawURL string, h http.Header) (Info, error) {
	info := Info{URL: rawURL, Name: h.Get("icy-name")}

	ct := h.Get("Content-Type")
	if ct != "" {
		if mt, _, err := mime.ParseMediaType(ct); err == nil {
			ct = mt
		}
	}
	info.ContentType = strings.ToLower(ct)

	switch {
	case playlistTypes[info.ContentType]:
		info.Playlist = true
		return info, nil
	case strings.HasPrefix(info.ContentType, "audio/"),
		info.ContentType == "application/ogg",
		info.ContentType == "application/octet-stream":
		return info, nil
	case hasIcyHeader(h):
		return info, nil
	}
	if info.ContentType == "" {
		return Info{}, fmt.Errorf("%s: %w: no content type", rawURL, ErrNotAudio)
	}
	return Info{}, fmt.Errorf("%s: %w: content type %s", rawURL, ErrNotAudio, info.ContentType)
}

func hasIcyHeader(h http.Header) bool {
	for k := range h {
		if strings.HasPrefix(strings.ToLower(k), "icy-") {
			return true
		}
	}
	return false
}
