// Package http implements ports.Transport as a JSON POST to the collection
// server.
package http

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"runtime"
	"strings"

	"github.com/google/uuid"
	"github.com/klauspost/compress/gzip"

	"github.com/bicycledata/sensorship/internal/domain"
	"github.com/bicycledata/sensorship/internal/ports"
)

// DefaultServiceURL is the collection endpoint used when none is configured.
const DefaultServiceURL = "https://bicycledata.vti.se/api/sensor/update"

// maxErrorBody bounds how much of a rejection body is kept in an UploadError.
const maxErrorBody = 512

// payload is the JSON body expected by the collection server. CSVData holds
// the buffer's lines, each with its trailing newline.
type payload struct {
	Hash    string   `json:"hash"`
	Sensor  string   `json:"sensor"`
	CSVData []string `json:"csv_data"`
}

// Options configures a Transport.
type Options struct {
	// ServiceURL is the full upload endpoint.
	ServiceURL string

	// AuthKey is sent as a bearer token when set.
	AuthKey string

	// Gzip compresses the request body.
	Gzip bool
}

// Transport implements ports.Transport over HTTP.
type Transport struct {
	client   ports.HTTPClient
	opts     Options
	hostname string
}

// NewTransport creates a transport. Timeouts are enforced by the caller's
// context and by the client.
func NewTransport(client ports.HTTPClient, opts Options) *Transport {
	if opts.ServiceURL == "" {
		opts.ServiceURL = DefaultServiceURL
	}
	return &Transport{client: client, opts: opts, hostname: hostname()}
}

// Upload posts one buffer. Any transport error or non-2xx status is returned
// as a *domain.UploadError.
func (t *Transport) Upload(ctx context.Context, identity domain.DeviceIdentity, job domain.UploadJob) error {
	body, err := json.Marshal(payload{
		Hash:    identity.Hash,
		Sensor:  identity.Sensor,
		CSVData: splitLines(job.Contents),
	})
	if err != nil {
		return &domain.UploadError{Buffer: job.Name, Err: fmt.Errorf("marshal payload: %w", err)}
	}

	var reader io.Reader = bytes.NewReader(body)
	if t.opts.Gzip {
		var buf bytes.Buffer
		zw := gzip.NewWriter(&buf)
		if _, err := zw.Write(body); err != nil {
			return &domain.UploadError{Buffer: job.Name, Err: fmt.Errorf("compress payload: %w", err)}
		}
		if err := zw.Close(); err != nil {
			return &domain.UploadError{Buffer: job.Name, Err: fmt.Errorf("compress payload: %w", err)}
		}
		reader = &buf
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, t.opts.ServiceURL, reader)
	if err != nil {
		return &domain.UploadError{Buffer: job.Name, Err: fmt.Errorf("create request: %w", err)}
	}
	req.Header.Set("Content-Type", "application/json")
	if t.opts.Gzip {
		req.Header.Set("Content-Encoding", "gzip")
	}
	if t.opts.AuthKey != "" {
		req.Header.Set("Authorization", "Bearer "+t.opts.AuthKey)
	}
	req.Header.Set("X-Request-Id", uuid.NewString())
	req.Header.Set("X-Buffer-Name", job.Name)
	req.Header.Set("X-Agent-Hostname", t.hostname)
	req.Header.Set("X-Agent-OSArch", runtime.GOOS+"/"+runtime.GOARCH)

	resp, err := t.client.Do(req)
	if err != nil {
		return &domain.UploadError{Buffer: job.Name, Err: fmt.Errorf("send request: %w", err)}
	}
	defer resp.Body.Close()

	if resp.StatusCode/100 != 2 {
		respBody, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return &domain.UploadError{
			Buffer:     job.Name,
			StatusCode: resp.StatusCode,
			Body:       strings.TrimSpace(string(respBody)),
		}
	}
	_, _ = io.Copy(io.Discard, resp.Body)
	return nil
}

// splitLines splits content into lines, keeping each line's newline.
func splitLines(content []byte) []string {
	lines := make([]string, 0, bytes.Count(content, []byte{'\n'})+1)
	for len(content) > 0 {
		i := bytes.IndexByte(content, '\n')
		if i < 0 {
			lines = append(lines, string(content))
			break
		}
		lines = append(lines, string(content[:i+1]))
		content = content[i+1:]
	}
	return lines
}

func hostname() string {
	if h, err := os.Hostname(); err == nil {
		return h
	}
	return "unknown"
}

var _ ports.Transport = (*Transport)(nil)
