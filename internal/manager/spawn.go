package manager

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/exec"
	"sync"
	"syscall"
	"time"

	"github.com/cenkalti/backoff/v4"

	"inferd/internal/engine"
	"inferd/pkg/types"
)

// Spawner launches backend server processes. The concrete command-line
// mechanics live behind this interface so the serializer and eviction
// policy never depend on engine identity; tests inject fakes.
type Spawner interface {
	Spawn(ctx context.Context, eng engine.Engine, m types.Model, ov engine.Overrides) (*Backend, error)
}

// Backend is a handle to one running backend server process.
type Backend struct {
	PID     int
	Port    int
	BaseURL string

	stopFn   func() error
	exitedFn func() bool
}

// Stop terminates the backend process. Safe to call more than once.
func (b *Backend) Stop() error {
	if b.stopFn == nil {
		return nil
	}
	return b.stopFn()
}

// Exited reports whether the backend process has terminated.
func (b *Backend) Exited() bool {
	if b.exitedFn == nil {
		return false
	}
	return b.exitedFn()
}

// execSpawner spawns real processes via os/exec.
type execSpawner struct {
	host       string
	portStart  int
	portEnd    int
	readyWait  time.Duration
	httpClient *http.Client
}

func newExecSpawner(cfg ManagerConfig) *execSpawner {
	return &execSpawner{
		host:       cfg.Host,
		portStart:  cfg.PortStart,
		portEnd:    cfg.PortEnd,
		readyWait:  cfg.ReadyTimeout,
		httpClient: &http.Client{Timeout: 2 * time.Second},
	}
}

func (s *execSpawner) Spawn(ctx context.Context, eng engine.Engine, m types.Model, ov engine.Overrides) (*Backend, error) {
	if fi, err := os.Stat(m.Checkpoint); err != nil || fi.IsDir() {
		return nil, ErrFileNotFound(m.Checkpoint)
	}

	var port int
	var err error
	if s.portStart > 0 && s.portEnd >= s.portStart {
		port, err = pickPortInRange(s.host, s.portStart, s.portEnd)
	} else {
		port, err = pickFreePort(s.host)
	}
	if err != nil {
		return nil, ErrLoadFailed(err.Error())
	}
	baseURL := fmt.Sprintf("http://%s:%d", s.host, port)

	bin, args := eng.Command(m, s.host, port, ov)
	cmd := exec.Command(bin, args...)
	// Keep a bounded stderr tail for the failure message.
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	if err := cmd.Start(); err != nil {
		return nil, ErrLoadFailed(fmt.Sprintf("start %s: %v", bin, err))
	}

	exitCh := make(chan struct{})
	go func() {
		_ = cmd.Wait()
		close(exitCh)
	}()
	exited := func() bool {
		select {
		case <-exitCh:
			return true
		default:
			return false
		}
	}

	b := &Backend{
		PID:      cmd.Process.Pid,
		Port:     port,
		BaseURL:  baseURL,
		exitedFn: exited,
		stopFn:   stopOnce(cmd, exitCh),
	}

	if err := s.waitReady(ctx, b, baseURL+eng.ReadyPath()); err != nil {
		_ = b.Stop()
		if tail := tailOf(stderr.Bytes(), 2048); tail != "" {
			return nil, ErrLoadFailed(fmt.Sprintf("%v: %s", err, tail))
		}
		return nil, ErrLoadFailed(err.Error())
	}
	return b, nil
}

// waitReady polls the backend's ready endpoint with exponential backoff
// until it answers 2xx, the process exits, or the bounded timeout
// elapses.
func (s *execSpawner) waitReady(ctx context.Context, b *Backend, readyURL string) error {
	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = 100 * time.Millisecond
	bo.MaxInterval = 2 * time.Second
	bo.MaxElapsedTime = s.readyWait

	check := func() error {
		if b.Exited() {
			return backoff.Permanent(errors.New("backend process exited before becoming ready"))
		}
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, readyURL, nil)
		if err != nil {
			return backoff.Permanent(err)
		}
		resp, err := s.httpClient.Do(req)
		if err != nil {
			if ctx.Err() != nil {
				return backoff.Permanent(ctx.Err())
			}
			return err
		}
		defer resp.Body.Close()
		if resp.StatusCode >= 200 && resp.StatusCode < 300 {
			return nil
		}
		return fmt.Errorf("backend not ready: %s", resp.Status)
	}
	return backoff.Retry(check, backoff.WithContext(bo, ctx))
}

// stopOnce returns a stop func that sends SIGTERM and escalates to
// SIGKILL if the process has not exited after a grace period.
func stopOnce(cmd *exec.Cmd, exitCh chan struct{}) func() error {
	var once sync.Once
	return func() error {
		once.Do(func() {
			if cmd.Process == nil {
				return
			}
			_ = cmd.Process.Signal(syscall.SIGTERM)
			select {
			case <-exitCh:
			case <-time.After(5 * time.Second):
				_ = cmd.Process.Kill()
				<-exitCh
			}
		})
		return nil
	}
}

func pickFreePort(host string) (int, error) {
	l, err := net.Listen("tcp", net.JoinHostPort(host, "0"))
	if err != nil {
		return 0, err
	}
	port := l.Addr().(*net.TCPAddr).Port
	_ = l.Close()
	return port, nil
}

func pickPortInRange(host string, start, end int) (int, error) {
	for p := start; p <= end; p++ {
		l, err := net.Listen("tcp", fmt.Sprintf("%s:%d", host, p))
		if err != nil {
			continue
		}
		_ = l.Close()
		return p, nil
	}
	return 0, fmt.Errorf("no free port in range %d-%d", start, end)
}

func tailOf(b []byte, n int) string {
	if len(b) > n {
		b = b[len(b)-n:]
	}
	return string(bytes.TrimSpace(b))
}

// newBackendClient builds the client used to proxy requests to backend
// processes. Timeout is deliberately zero: streaming responses are
// open-ended, so deadlines come from request contexts.
func newBackendClient() *http.Client {
	return &http.Client{Timeout: 0}
}
