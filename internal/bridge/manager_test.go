package bridge

import (
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/relabs-tech/location_bridge/internal/gps"
)

func TestStopWithoutStartIsNoop(t *testing.T) {
	svc := newFakeService(t)
	native := &recordingNative{}
	m := newTestManager(svc, inlineExecutor{}, native)

	m.Stop()
	m.Stop()

	requests, removals, _ := svc.stats()
	assert.Zero(t, requests)
	assert.Zero(t, removals)
	assert.Empty(t, native.snapshot())
	assert.False(t, m.Active())
}

func TestStartRequestsEveryFixFromGPS(t *testing.T) {
	svc := newFakeService(t)
	m := newTestManager(svc, inlineExecutor{}, &recordingNative{})

	m.Start()
	defer m.Stop()

	assert.Equal(t, gps.ProviderGPS, svc.lastRequest.provider)
	assert.Zero(t, svc.lastRequest.minInterval)
	assert.Zero(t, svc.lastRequest.minDistance)
	assert.True(t, m.Active())
}

func TestStartTwiceRegistersOnce(t *testing.T) {
	t.Run("registered", func(t *testing.T) {
		svc := newFakeService(t)
		m := newTestManager(svc, inlineExecutor{}, &recordingNative{})

		m.Start()
		m.Start()

		requests, _, live := svc.stats()
		assert.Equal(t, 1, requests)
		assert.Equal(t, 1, live)
		m.Stop()
	})

	t.Run("pending", func(t *testing.T) {
		svc := newFakeService(t)
		ex := &queueExecutor{}
		m := newTestManager(svc, ex, &recordingNative{})

		m.Start()
		m.Start()
		assert.Equal(t, 1, ex.pending())
		ex.runAll()

		requests, _, live := svc.stats()
		assert.Equal(t, 1, requests)
		assert.Equal(t, 1, live)
		m.Stop()
	})
}

func TestStartReturnsBeforeRegistration(t *testing.T) {
	svc := newFakeService(t)
	ex := &queueExecutor{}
	m := newTestManager(svc, ex, &recordingNative{})

	m.Start()
	requests, _, _ := svc.stats()
	assert.Zero(t, requests, "registration must run on the executor")
	assert.True(t, m.Active())

	ex.runAll()
	requests, _, _ = svc.stats()
	assert.Equal(t, 1, requests)
	m.Stop()
}

func TestStopBeforeRegistrationRuns(t *testing.T) {
	svc := newFakeService(t)
	ex := &queueExecutor{}
	native := &recordingNative{}
	m := newTestManager(svc, ex, native)

	m.Start()
	m.Stop()
	ex.runAll()

	requests, removals, live := svc.stats()
	assert.Zero(t, requests)
	assert.Zero(t, removals)
	assert.Zero(t, live)
	assert.False(t, m.Active())
	assert.Empty(t, native.snapshot())
}

func TestStopDuringRegistrationRemovesListener(t *testing.T) {
	svc := newFakeService(t)
	m := newTestManager(svc, inlineExecutor{}, &recordingNative{})
	svc.onRequest = m.Stop

	m.Start()

	requests, removals, live := svc.stats()
	assert.Equal(t, 1, requests)
	assert.Equal(t, 1, removals)
	assert.Zero(t, live)
	assert.False(t, m.Active())
}

func TestExecutorRejectsRegistration(t *testing.T) {
	svc := newFakeService(t)
	ex := &queueExecutor{reject: true}
	native := &recordingNative{}
	m := newTestManager(svc, ex, native)

	m.Start()

	assert.False(t, m.Active())
	assert.Empty(t, native.snapshot())
}

func TestForwardingPreservesHostOrder(t *testing.T) {
	svc := newFakeService(t)
	native := &recordingNative{}
	m := newTestManager(svc, inlineExecutor{}, native)
	m.Start()
	defer m.Stop()

	l := svc.listener()
	require.NotNil(t, l)

	const n = 500
	for i := 0; i < n; i++ {
		l.OnLocationChanged(Location{
			Latitude:             float64(i),
			Longitude:            -float64(i),
			Accuracy:             float64(i % 7),
			ElapsedRealtimeNanos: int64(i) * 1_000_000,
		})
	}

	calls := native.snapshot()
	require.Len(t, calls, n)
	for i, c := range calls {
		assert.Equal(t, "location", c.name)
		assert.Equal(t, float64(i), c.args[0])
		assert.Equal(t, -float64(i), c.args[1])
		assert.Equal(t, float64(i%7), c.args[2])
		assert.Equal(t, gps.SecondsFromElapsed(int64(i)*1_000_000), c.args[3])
	}
}

func TestProviderEventsFilteredToGPS(t *testing.T) {
	svc := newFakeService(t)
	native := &recordingNative{}
	m := newTestManager(svc, inlineExecutor{}, native)
	m.Start()
	defer m.Stop()

	before := testutil.ToFloat64(EventsDropped.WithLabelValues(dropFilteredProvider))

	l := svc.listener()
	l.OnProviderEnabled("network")
	l.OnProviderDisabled("passive")
	l.OnProviderEnabled("fused")
	l.OnProviderDisabled(gps.ProviderGPS)
	l.OnProviderEnabled(gps.ProviderGPS)
	l.OnProviderDisabled("GPS")

	calls := native.snapshot()
	require.Len(t, calls, 2)
	assert.Equal(t, "disabled", calls[0].name)
	assert.Equal(t, "enabled", calls[1].name)
	assert.Equal(t, before+4, testutil.ToFloat64(EventsDropped.WithLabelValues(dropFilteredProvider)))
}

func TestAuthorizationDenied(t *testing.T) {
	svc := newFakeService(t)
	svc.err = fmt.Errorf("open /dev/serial0: %w", ErrAuthorizationDenied)
	native := &recordingNative{}
	m := newTestManager(svc, inlineExecutor{}, native)

	require.NotPanics(t, m.Start)

	assert.Equal(t, 1, native.count("denied"))
	assert.Zero(t, native.count("location"))
	assert.Zero(t, native.count("granted"))
	assert.False(t, m.Active())

	// the slot is free again: the consumer may retry
	svc.err = nil
	m.Start()
	assert.True(t, m.Active())
	assert.Equal(t, 1, native.count("denied"))
	m.Stop()
}

func TestOtherRegistrationErrorsStayOnHostSide(t *testing.T) {
	svc := newFakeService(t)
	svc.err = errors.New("service unavailable")
	native := &recordingNative{}
	m := newTestManager(svc, inlineExecutor{}, native)

	m.Start()

	assert.Empty(t, native.snapshot())
	assert.False(t, m.Active())
}

func TestBatchFlushNotForwarded(t *testing.T) {
	svc := newFakeService(t)
	native := &recordingNative{}
	m := newTestManager(svc, inlineExecutor{}, native)
	m.Start()
	defer m.Stop()

	before := testutil.ToFloat64(BatchFlushes)
	svc.listener().OnBatchFlushed(42)

	assert.Empty(t, native.snapshot())
	assert.Equal(t, before+1, testutil.ToFloat64(BatchFlushes))
	assert.True(t, m.Active())
}

func TestStartFixStopScenario(t *testing.T) {
	svc := newFakeService(t)
	native := &recordingNative{}
	m := newTestManager(svc, inlineExecutor{}, native)

	m.Start()
	l := svc.listener()
	require.NotNil(t, l)

	l.OnLocationChanged(Location{Latitude: 37.7, Longitude: -122.4, Accuracy: 5.0, ElapsedRealtimeNanos: 2_500_000_000})
	m.Stop()

	droppedBefore := testutil.ToFloat64(EventsDropped.WithLabelValues(dropAfterStop))
	// host keeps delivering through the stale listener
	l.OnLocationChanged(Location{Latitude: 1, Longitude: 2, Accuracy: 3, ElapsedRealtimeNanos: 3_000_000_000})
	l.OnProviderDisabled(gps.ProviderGPS)

	calls := native.snapshot()
	require.Len(t, calls, 1)
	assert.Equal(t, call{name: "location", handle: 7, args: [4]float64{37.7, -122.4, 5.0, 2.5}}, calls[0])
	assert.Equal(t, droppedBefore+2, testutil.ToFloat64(EventsDropped.WithLabelValues(dropAfterStop)))

	_, removals, live := svc.stats()
	assert.Equal(t, 1, removals)
	assert.Zero(t, live)
}

func TestRestartUsesFreshListener(t *testing.T) {
	svc := newFakeService(t)
	native := &recordingNative{}
	m := newTestManager(svc, inlineExecutor{}, native)

	m.Start()
	first := svc.listener()
	m.Stop()
	m.Start()
	second := svc.listener()
	defer m.Stop()

	require.NotSame(t, first, second)
	first.OnLocationChanged(Location{Latitude: 1})
	second.OnLocationChanged(Location{Latitude: 2})

	calls := native.snapshot()
	require.Len(t, calls, 1)
	assert.Equal(t, 2.0, calls[0].args[0])
}

func TestConcurrentStartStop(t *testing.T) {
	svc := newFakeService(t)
	native := &recordingNative{}
	m := newTestManager(svc, inlineExecutor{}, native)

	var wg sync.WaitGroup
	for g := 0; g < 8; g++ {
		wg.Add(1)
		go func(g int) {
			defer wg.Done()
			for i := 0; i < 200; i++ {
				if (i+g)%2 == 0 {
					m.Start()
				} else {
					m.Stop()
				}
			}
		}(g)
	}

	// deliver from a host goroutine while the control plane churns
	done := make(chan struct{})
	go func() {
		defer close(done)
		deadline := time.Now().Add(50 * time.Millisecond)
		for time.Now().Before(deadline) {
			if l := svc.listener(); l != nil {
				l.OnLocationChanged(Location{Latitude: 1})
			}
		}
	}()

	wg.Wait()
	<-done
	m.Stop()

	requests, removals, live := svc.stats()
	assert.Zero(t, live)
	assert.Equal(t, requests, removals)
	assert.False(t, m.Active())
}
