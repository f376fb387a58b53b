package upstream

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"
	"unicode"
	"unicode/utf8"

	"github.com/ev119/erlocator/internal/metrics"
)

const (
	// DefaultTimeout bounds one upstream call when no client is supplied.
	DefaultTimeout = 10 * time.Second

	maxBodyBytes   = 8 << 20
	logBodyLimit   = 1000
	truncateSuffix = "...(truncated)"
)

func httpClient(client *http.Client) *http.Client {
	if client != nil {
		return client
	}
	return &http.Client{Timeout: DefaultTimeout}
}

// buildURL appends params to base. A service key that is already
// percent-encoded is decoded first so it is not encoded twice.
func buildURL(base string, serviceKey string, params url.Values) (string, error) {
	base = strings.TrimSpace(base)
	if base == "" {
		return "", errors.New("upstream url is not configured")
	}

	parsed, err := url.Parse(base)
	if err != nil {
		return "", fmt.Errorf("invalid upstream url: %w", err)
	}

	query := parsed.Query()
	if key := strings.TrimSpace(serviceKey); key != "" {
		if strings.Contains(key, "%") {
			if decoded, err := url.QueryUnescape(key); err == nil {
				key = decoded
			}
		}
		query.Set("serviceKey", key)
	}
	for name, values := range params {
		for _, v := range values {
			query.Add(name, v)
		}
	}
	parsed.RawQuery = query.Encode()
	return parsed.String(), nil
}

func get(ctx context.Context, client *http.Client, name string, rawURL string) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/xml, application/json;q=0.9")

	start := time.Now()
	resp, err := httpClient(client).Do(req)
	metrics.RecordUpstreamDuration(name, time.Since(start))
	return resp, err
}

func readBody(resp *http.Response) ([]byte, error) {
	return io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
}

func retryAfterHeader(resp *http.Response) time.Duration {
	if resp == nil || resp.Header == nil {
		return 0
	}

	retry := strings.TrimSpace(resp.Header.Get("Retry-After"))
	if retry == "" {
		return 0
	}

	// delay-seconds is a non-negative integer; anything else must be an HTTP date.
	if seconds, err := strconv.Atoi(retry); err == nil {
		if seconds <= 0 {
			return 0
		}
		return time.Duration(seconds) * time.Second
	}
	if parsed, err := http.ParseTime(retry); err == nil {
		if wait := time.Until(parsed); wait > 0 {
			return wait
		}
	}

	return 0
}

// truncateForLog caps a response body for logging without splitting a rune.
func truncateForLog(body []byte) string {
	if len(body) <= logBodyLimit {
		return string(body)
	}
	cut := logBodyLimit
	for cut > 0 && !utf8.RuneStart(body[cut]) {
		cut--
	}
	return string(body[:cut]) + truncateSuffix
}

func removeSpaces(s string) string {
	return strings.Map(func(r rune) rune {
		if unicode.IsSpace(r) {
			return -1
		}
		return r
	}, s)
}

func redactURL(rawURL string) string {
	parsed, err := url.Parse(rawURL)
	if err != nil {
		return rawURL
	}
	query := parsed.Query()
	if query.Has("serviceKey") {
		query.Set("serviceKey", "REDACTED")
		parsed.RawQuery = query.Encode()
	}
	return parsed.String()
}
