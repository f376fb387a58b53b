package upstream

import (
	"net/http"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestBuildURL(t *testing.T) {
	t.Run("EncodesParams", func(t *testing.T) {
		raw, err := buildURL("https://apis.example.test/getEmrrmRltmAvailInfo", "abc+/=", url.Values{
			"STAGE1": {"경기"},
			"STAGE2": {"수원시 영통구"},
		})
		require.NoError(t, err)

		parsed, err := url.Parse(raw)
		require.NoError(t, err)
		require.Equal(t, "abc+/=", parsed.Query().Get("serviceKey"))
		require.Equal(t, "수원시 영통구", parsed.Query().Get("STAGE2"))
	})

	t.Run("PreEncodedServiceKeyNotDoubleEncoded", func(t *testing.T) {
		raw, err := buildURL("https://apis.example.test/x", "abc%2B%2F%3D", nil)
		require.NoError(t, err)

		parsed, err := url.Parse(raw)
		require.NoError(t, err)
		require.Equal(t, "abc+/=", parsed.Query().Get("serviceKey"))
	})

	t.Run("MissingBase", func(t *testing.T) {
		_, err := buildURL("  ", "k", nil)
		require.Error(t, err)
	})
}

func TestTruncateForLog(t *testing.T) {
	short := []byte("bad request")
	require.Equal(t, "bad request", truncateForLog(short))

	long := []byte(strings.Repeat("가", 400))
	out := truncateForLog(long)
	require.True(t, strings.HasSuffix(out, truncateSuffix))
	require.LessOrEqual(t, len(out), logBodyLimit+len(truncateSuffix))
	require.True(t, strings.HasPrefix(out, "가가"))
	require.NotContains(t, strings.TrimSuffix(out, truncateSuffix), "�")
}

func TestRedactURL(t *testing.T) {
	out := redactURL("https://apis.example.test/x?serviceKey=secret&pageNo=1")
	require.NotContains(t, out, "secret")
	require.Contains(t, out, "pageNo=1")
}

func TestRemoveSpaces(t *testing.T) {
	require.Equal(t, "수원시영통구", removeSpaces(" 수원시  영통구\t"))
}

func TestRetryAfterHeader(t *testing.T) {
	withHeader := func(value string) *http.Response {
		resp := &http.Response{Header: http.Header{}}
		if value != "" {
			resp.Header.Set("Retry-After", value)
		}
		return resp
	}

	require.Equal(t, 120*time.Second, retryAfterHeader(withHeader("120")))
	require.Zero(t, retryAfterHeader(withHeader("")))
	require.Zero(t, retryAfterHeader(withHeader("-30")))
	require.Zero(t, retryAfterHeader(withHeader("0")))
	require.Zero(t, retryAfterHeader(withHeader("1.5")))
	require.Zero(t, retryAfterHeader(withHeader("soon")))
	require.Zero(t, retryAfterHeader(withHeader(time.Now().Add(-time.Hour).UTC().Format(http.TimeFormat))))
	require.Zero(t, retryAfterHeader(nil))

	future := retryAfterHeader(withHeader(time.Now().Add(time.Hour).UTC().Format(http.TimeFormat)))
	require.Greater(t, future, 50*time.Minute)
	require.LessOrEqual(t, future, time.Hour)
}
