package http

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/klauspost/compress/gzip"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bicycledata/sensorship/internal/domain"
)

var identity = domain.DeviceIdentity{Hash: "abc123", Sensor: "lidar"}

func job(contents string) domain.UploadJob {
	return domain.UploadJob{Name: "20240501_101500.000_lidar.csv", Contents: []byte(contents)}
}

func TestTransport_UploadPostsJSON(t *testing.T) {
	var got payload
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		assert.Equal(t, "Bearer secret", r.Header.Get("Authorization"))
		assert.Equal(t, "20240501_101500.000_lidar.csv", r.Header.Get("X-Buffer-Name"))
		assert.NotEmpty(t, r.Header.Get("X-Request-Id"))
		assert.NotEmpty(t, r.Header.Get("X-Agent-OSArch"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.WriteHeader(http.StatusOK)
	}))
	defer ts.Close()

	tr := NewTransport(ts.Client(), Options{ServiceURL: ts.URL, AuthKey: "secret"})
	require.NoError(t, tr.Upload(context.Background(), identity, job("timestamp,d\nt1,5\nt2,6\n")))

	assert.Equal(t, "abc123", got.Hash)
	assert.Equal(t, "lidar", got.Sensor)
	assert.Equal(t, []string{"timestamp,d\n", "t1,5\n", "t2,6\n"}, got.CSVData)
}

func TestTransport_UploadGzip(t *testing.T) {
	var got payload
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "gzip", r.Header.Get("Content-Encoding"))
		assert.Empty(t, r.Header.Get("Authorization"))
		zr, err := gzip.NewReader(r.Body)
		require.NoError(t, err)
		require.NoError(t, json.NewDecoder(zr).Decode(&got))
		w.WriteHeader(http.StatusNoContent)
	}))
	defer ts.Close()

	tr := NewTransport(ts.Client(), Options{ServiceURL: ts.URL, Gzip: true})
	require.NoError(t, tr.Upload(context.Background(), identity, job("h\nv\n")))
	assert.Equal(t, []string{"h\n", "v\n"}, got.CSVData)
}

func TestTransport_RejectionIsUploadError(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
		_, _ = io.WriteString(w, "  unknown device \n")
	}))
	defer ts.Close()

	tr := NewTransport(ts.Client(), Options{ServiceURL: ts.URL})
	err := tr.Upload(context.Background(), identity, job("h\n"))

	var ue *domain.UploadError
	require.True(t, errors.As(err, &ue))
	assert.Equal(t, http.StatusForbidden, ue.StatusCode)
	assert.Equal(t, "unknown device", ue.Body)
	assert.False(t, domain.IsFatal(err))
}

func TestTransport_NetworkErrorAndTimeout(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(2 * time.Second):
		}
	}))
	defer ts.Close()

	tr := NewTransport(ts.Client(), Options{ServiceURL: ts.URL})
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	err := tr.Upload(ctx, identity, job("h\n"))
	var ue *domain.UploadError
	require.True(t, errors.As(err, &ue))
	assert.Zero(t, ue.StatusCode)

	ts.Close()
	err = tr.Upload(context.Background(), identity, job("h\n"))
	require.True(t, errors.As(err, &ue))
}

func TestSplitLines(t *testing.T) {
	assert.Equal(t, []string{}, splitLines(nil))
	assert.Equal(t, []string{"a\n", "b"}, splitLines([]byte("a\nb")))
	assert.Equal(t, []string{"a\n", "\n"}, splitLines([]byte("a\n\n")))
}

func TestNewTransport_DefaultURL(t *testing.T) {
	tr := NewTransport(http.DefaultClient, Options{})
	assert.Equal(t, DefaultServiceURL, tr.opts.ServiceURL)
}
