package telegram

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type timeoutErr struct{}

func (timeoutErr) Error() string   { return "i/o timeout" }
func (timeoutErr) Timeout() bool   { return true }
func (timeoutErr) Temporary() bool { return true }

type flakyTransport struct {
	fails int32
	calls atomic.Int32
}

func (f *flakyTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	if f.calls.Add(1) <= f.fails {
		return nil, timeoutErr{}
	}
	return http.DefaultTransport.RoundTrip(req)
}

func TestRetryTransportRecoversFromTimeouts(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	base := &flakyTransport{fails: 2}
	client := &http.Client{Transport: &retryTransport{base: base, maxRetries: 3, backoff: time.Millisecond}}

	resp, err := client.Get(srv.URL)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, int32(3), base.calls.Load())
}

func TestRetryTransportGivesUp(t *testing.T) {
	base := &flakyTransport{fails: 100}
	client := &http.Client{Transport: &retryTransport{base: base, maxRetries: 2, backoff: time.Millisecond}}

	_, err := client.Get("http://127.0.0.1:1/")
	require.Error(t, err)
	assert.True(t, errors.As(err, new(timeoutErr)))
	assert.Equal(t, int32(3), base.calls.Load())
}

func TestBuildHTTPClientTimeouts(t *testing.T) {
	c := BuildHTTPClient(HTTPOptions{Timeout: 5 * time.Minute, LongPollWindow: 10 * time.Second})
	assert.Equal(t, 5*time.Minute, c.Timeout)

	tr := c.Transport.(*retryTransport).base.(*http.Transport)
	assert.Equal(t, defaultResponseTimeout+10*time.Second, tr.ResponseHeaderTimeout)

	assert.Equal(t, defaultClientTimeout, BuildHTTPClient(HTTPOptions{}).Timeout)
}
