package nmeahost

import (
	"errors"
	"io"
	"os"
	"sync"
	"testing"
	"time"

	serial "github.com/jacobsa/go-serial/serial"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
	"periph.io/x/conn/v3/gpio"

	"github.com/relabs-tech/location_bridge/internal/bridge"
	"github.com/relabs-tech/location_bridge/internal/gps"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

// pipePort is a serial port whose receive side is fed by the test.
type pipePort struct {
	r *io.PipeReader
}

func (p *pipePort) Read(b []byte) (int, error)  { return p.r.Read(b) }
func (p *pipePort) Write(b []byte) (int, error) { return len(b), nil }
func (p *pipePort) Close() error                { return p.r.Close() }

type fakePin struct {
	mu     sync.Mutex
	levels []gpio.Level
}

func (f *fakePin) Out(l gpio.Level) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.levels = append(f.levels, l)
	return nil
}

func (f *fakePin) history() []gpio.Level {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]gpio.Level(nil), f.levels...)
}

func newPipeService(t *testing.T, pin PowerPin) (*Service, *io.PipeWriter, *serial.OpenOptions) {
	t.Helper()
	r, w := io.Pipe()
	var opened serial.OpenOptions
	svc := New(Options{
		PortName:  "/dev/ttyTEST0",
		BaudRate:  9600,
		EnablePin: pin,
		Open: func(o serial.OpenOptions) (io.ReadWriteCloser, error) {
			opened = o
			return &pipePort{r: r}, nil
		},
	})
	return svc, w, &opened
}

func waitFor(t *testing.T, l *recordingListener, n int) {
	t.Helper()
	deadline := time.After(2 * time.Second)
	for len(l.kinds()) < n {
		select {
		case <-l.notify:
		case <-deadline:
			t.Fatalf("timed out waiting for %d events, got %v", n, l.kinds())
		}
	}
}

func waitDone(t *testing.T, svc *Service) {
	t.Helper()
	select {
	case <-svc.Done():
	case <-time.After(2 * time.Second):
		t.Fatal("delivery goroutines did not exit")
	}
}

func TestServiceDeliversInOrder(t *testing.T) {
	pin := &fakePin{}
	svc, w, opened := newPipeService(t, pin)
	l := newRecordingListener()

	require.NoError(t, svc.RequestLocationUpdates(gps.ProviderGPS, 0, 0, l))
	assert.Equal(t, "/dev/ttyTEST0", opened.PortName)
	assert.Equal(t, uint(9600), opened.BaudRate)

	go func() {
		_, _ = io.WriteString(w, ggaFix+"\r\n"+rmcValid+"\r\n"+rmcValidLater+"\r\n"+rmcVoid+"\r\n")
	}()
	waitFor(t, l, 4)

	events := l.snapshot()
	assert.Equal(t, []string{"enabled", "location", "location", "disabled"}, l.kinds())
	assert.LessOrEqual(t, events[1].loc.ElapsedRealtimeNanos, events[2].loc.ElapsedRealtimeNanos)
	assert.InDelta(t, 1.2*DefaultUERE, events[1].loc.Accuracy, 1e-9)

	svc.RemoveUpdates(l)
	_ = w.Close()
	waitDone(t, svc)
	assert.Equal(t, []gpio.Level{gpio.High, gpio.Low}, pin.history())
}

func TestServiceStreamEndDisablesProvider(t *testing.T) {
	svc, w, _ := newPipeService(t, nil)
	l := newRecordingListener()

	require.NoError(t, svc.RequestLocationUpdates(gps.ProviderGPS, 0, 0, l))
	go func() {
		_, _ = io.WriteString(w, rmcValid+"\r\n")
		_ = w.Close()
	}()
	waitFor(t, l, 3)
	waitDone(t, svc)

	assert.Equal(t, []string{"enabled", "location", "disabled"}, l.kinds())
	svc.RemoveUpdates(l)
}

func TestServiceFlushAfterPendingLines(t *testing.T) {
	svc, w, _ := newPipeService(t, nil)
	l := newRecordingListener()
	require.NoError(t, svc.RequestLocationUpdates(gps.ProviderGPS, 0, 0, l))

	_, err := io.WriteString(w, rmcValid+"\r\n")
	require.NoError(t, err)
	waitFor(t, l, 2)

	require.True(t, svc.Flush(9))
	waitFor(t, l, 3)
	events := l.snapshot()
	assert.Equal(t, hostEvent{kind: "flushed", arg: "9"}, events[2])

	svc.RemoveUpdates(l)
	_ = w.Close()
	waitDone(t, svc)
	assert.False(t, svc.Flush(10))
}

func TestServiceNoDeliveryAfterRemove(t *testing.T) {
	svc, w, _ := newPipeService(t, nil)
	l := newRecordingListener()
	require.NoError(t, svc.RequestLocationUpdates(gps.ProviderGPS, 0, 0, l))

	svc.RemoveUpdates(l)
	waitDone(t, svc)

	_, err := io.WriteString(w, rmcValid+"\r\n")
	assert.Error(t, err, "port is closed")
	assert.Empty(t, l.kinds())
}

func TestServiceRegistrationRules(t *testing.T) {
	svc, w, _ := newPipeService(t, nil)
	defer w.Close()
	a, b := newRecordingListener(), newRecordingListener()

	require.ErrorIs(t, svc.RequestLocationUpdates("network", 0, 0, a), ErrUnknownProvider)
	require.NoError(t, svc.RequestLocationUpdates(gps.ProviderGPS, 0, 0, a))
	require.NoError(t, svc.RequestLocationUpdates(gps.ProviderGPS, 0, 0, a), "same listener is a no-op")
	require.ErrorIs(t, svc.RequestLocationUpdates(gps.ProviderGPS, 0, 0, b), ErrBusy)

	svc.RemoveUpdates(b) // unknown listener
	svc.RemoveUpdates(a)
	svc.RemoveUpdates(a)
	waitDone(t, svc)
}

func TestServicePermissionDenied(t *testing.T) {
	svc := New(Options{
		PortName: "/dev/serial0",
		BaudRate: 9600,
		Open: func(serial.OpenOptions) (io.ReadWriteCloser, error) {
			return nil, &os.PathError{Op: "open", Path: "/dev/serial0", Err: os.ErrPermission}
		},
	})

	err := svc.RequestLocationUpdates(gps.ProviderGPS, 0, 0, newRecordingListener())
	require.ErrorIs(t, err, bridge.ErrAuthorizationDenied)
	require.ErrorIs(t, err, os.ErrPermission)
}

func TestServiceOpenFailure(t *testing.T) {
	svc := New(Options{
		PortName: "/dev/missing",
		Open: func(serial.OpenOptions) (io.ReadWriteCloser, error) {
			return nil, &os.PathError{Op: "open", Path: "/dev/missing", Err: os.ErrNotExist}
		},
	})

	err := svc.RequestLocationUpdates(gps.ProviderGPS, 0, 0, newRecordingListener())
	require.Error(t, err)
	assert.False(t, errors.Is(err, bridge.ErrAuthorizationDenied))
}
