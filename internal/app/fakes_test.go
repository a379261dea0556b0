package app

import (
	"context"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/bicycledata/sensorship/internal/adapters/fs"
	"github.com/bicycledata/sensorship/internal/clock"
	"github.com/bicycledata/sensorship/internal/domain"
)

var t0 = time.Date(2024, 5, 1, 10, 15, 0, 0, time.UTC)

var identity = domain.DeviceIdentity{Hash: "abc123", Sensor: "button"}

// seqSensor returns readings numbered 1, 2, 3... stamped with the clock.
// errs overrides the outcome of the given reading numbers.
type seqSensor struct {
	clk clock.Clock

	mu    sync.Mutex
	n     int
	errs  map[int]error
	block chan struct{}
	// stuck makes a blocked read ignore its context, like a hung bus.
	stuck bool

	// onRead, when set, is called at the start of every Measure.
	onRead  func()
	active  atomic.Int32
	overlap atomic.Bool
}

func (*seqSensor) Header() []string { return []string{"seq"} }

func (s *seqSensor) Measure(ctx context.Context) (domain.Measurement, error) {
	if s.active.Add(1) > 1 {
		s.overlap.Store(true)
	}
	defer s.active.Add(-1)
	if s.onRead != nil {
		s.onRead()
	}

	s.mu.Lock()
	s.n++
	n := s.n
	err := s.errs[n]
	block := s.block
	stuck := s.stuck
	s.mu.Unlock()

	if block != nil && stuck {
		<-block
	} else if block != nil {
		select {
		case <-block:
		case <-ctx.Done():
			return domain.Measurement{}, ctx.Err()
		}
	}
	if err != nil {
		return domain.Measurement{}, err
	}
	return domain.NewMeasurement(s.clk.Now(), strconv.Itoa(n)), nil
}

func (s *seqSensor) Reads() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.n
}

// fakeTransport records delivered jobs. fail decides the outcome of each
// attempt; nil means every attempt succeeds.
type fakeTransport struct {
	mu        sync.Mutex
	attempts  int
	delivered []domain.UploadJob
	fail      func(attempt int, job domain.UploadJob) error
	notify    chan string
}

func newFakeTransport() *fakeTransport {
	return &fakeTransport{notify: make(chan string, 64)}
}

func (f *fakeTransport) Upload(_ context.Context, id domain.DeviceIdentity, job domain.UploadJob) error {
	f.mu.Lock()
	f.attempts++
	attempt := f.attempts
	fail := f.fail
	f.mu.Unlock()

	if id != identity {
		return &domain.UploadError{Buffer: job.Name, StatusCode: 400, Body: "bad identity"}
	}
	if fail != nil {
		if err := fail(attempt, job); err != nil {
			return err
		}
	}

	f.mu.Lock()
	f.delivered = append(f.delivered, job)
	f.mu.Unlock()
	select {
	case f.notify <- job.Name:
	default:
	}
	return nil
}

func (f *fakeTransport) Attempts() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.attempts
}

func (f *fakeTransport) Delivered() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	names := make([]string, len(f.delivered))
	for i, j := range f.delivered {
		names[i] = j.Name
	}
	return names
}

func (f *fakeTransport) Job(i int) domain.UploadJob {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.delivered[i]
}

func (f *fakeTransport) waitDelivered(t *testing.T, name string) {
	t.Helper()
	select {
	case got := <-f.notify:
		require.Equal(t, name, got)
	case <-time.After(5 * time.Second):
		t.Fatalf("timed out waiting for upload of %s", name)
	}
}

func newTestStore(t *testing.T, dir string) *fs.BufferStore {
	t.Helper()
	s := fs.NewBufferStore(dir, identity.Sensor, nil, mockLogger{})
	require.NoError(t, s.Init())
	return s
}

// sealBuffer writes a sealed buffer with n records created at ts.
func sealBuffer(t *testing.T, s *fs.BufferStore, ts time.Time, n int) string {
	t.Helper()
	buf, err := s.Create([]string{"timestamp", "seq"}, ts)
	require.NoError(t, err)
	for i := 1; i <= n; i++ {
		require.NoError(t, buf.Append(domain.NewMeasurement(ts.Add(time.Duration(i)*time.Second), strconv.Itoa(i))))
	}
	require.NoError(t, buf.Seal())
	return buf.Name()
}

// records returns the data rows of a buffer file, header excluded.
func records(t *testing.T, path string) []string {
	t.Helper()
	b, err := os.ReadFile(path)
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSuffix(string(b), "\n"), "\n")
	require.NotEmpty(t, lines)
	require.Equal(t, "timestamp,seq", lines[0])
	return lines[1:]
}

// seqs extracts the seq column of each record.
func seqs(rows []string) []string {
	out := make([]string, len(rows))
	for i, r := range rows {
		out[i] = r[strings.LastIndexByte(r, ',')+1:]
	}
	return out
}

func listNames(t *testing.T, dir string) []string {
	t.Helper()
	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	var names []string
	for _, e := range entries {
		names = append(names, e.Name())
	}
	return names
}

// waitTicker returns the manual ticker with the given period once the loop
// under test has created it.
func waitTicker(t *testing.T, clk *clock.Manual, period time.Duration) *clock.ManualTicker {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		for _, tk := range clk.Tickers() {
			if tk.Period() == period {
				return tk
			}
		}
		time.Sleep(time.Millisecond)
	}
	t.Fatalf("no ticker with period %v", period)
	return nil
}

func pendingPath(dir string) string  { return filepath.Join(dir, fs.PendingDir) }
func uploadedPath(dir string) string { return filepath.Join(dir, fs.UploadedDir) }
