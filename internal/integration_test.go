package internal

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/sweeney/pump-controller/internal/gpio"
	"github.com/sweeney/pump-controller/internal/logic"
	"github.com/sweeney/pump-controller/internal/mqtt"
	"github.com/sweeney/pump-controller/internal/settings"
	"github.com/sweeney/pump-controller/internal/status"
	"github.com/sweeney/pump-controller/internal/web"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m,
		// Keep-alive client connections wind down after the test server closes.
		goleak.IgnoreAnyFunction("net/http.(*persistConn).readLoop"),
		goleak.IgnoreAnyFunction("net/http.(*persistConn).writeLoop"),
	)
}

var startTime = time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)

const poll = 100 * time.Millisecond

// system wires the controller, facade, relay fake and publisher fake the
// way the daemon does, but is stepped by hand.
type system struct {
	state     *logic.State
	ctrl      *logic.Controller
	relay     *gpio.FakeWriter
	store     settings.Store
	tracker   *status.Tracker
	publisher *mqtt.FakePublisher
	now       time.Time
}

func newSystem(t *testing.T, store settings.Store, pulse, pause float64) *system {
	t.Helper()
	p, q := settings.LoadDurations(store, pulse, pause)
	st := logic.NewState(logic.Durations{Pulse: logic.Seconds(p), Pause: logic.Seconds(q)})
	relay := gpio.NewFakeWriter()
	return &system{
		state:     st,
		ctrl:      logic.NewController(st, relay, logic.WithPoll(poll), logic.WithEvents(256)),
		relay:     relay,
		store:     store,
		tracker:   status.NewTracker(startTime, status.Config{PollMs: poll.Milliseconds()}, st, store),
		publisher: mqtt.NewFakePublisher(),
		now:       startTime,
	}
}

// start performs the startup entry into ON.
func (s *system) start() {
	s.ctrl.Start(s.now)
	s.flush()
}

// run advances the clock by d in poll steps, stepping the controller the
// way Run does and forwarding events to the publisher.
func (s *system) run(d time.Duration) {
	end := s.now.Add(d)
	for s.now.Before(end) {
		s.now = s.now.Add(poll)
		for s.ctrl.Step(s.now) {
		}
		s.flush()
	}
}

func (s *system) flush() {
	for {
		select {
		case ev := <-s.ctrl.Events():
			s.publisher.Publish(ev)
		default:
			return
		}
	}
}

func (s *system) eventTypes() []logic.EventType {
	var out []logic.EventType
	for _, ev := range s.publisher.Events {
		out = append(out, ev.Type)
	}
	return out
}

func TestIntegrationFullCycle(t *testing.T) {
	sys := newSystem(t, settings.NewMemoryStore(), 5, 10)
	sys.start()

	sys.run(15 * time.Second)

	snap := sys.state.Snapshot()
	assert.Equal(t, logic.PhaseOn, snap.Phase)
	assert.Equal(t, 1, snap.Cycles)

	assert.Equal(t, []logic.EventType{logic.EventPumpOn, logic.EventPumpOff, logic.EventPumpOn}, sys.eventTypes())
	assert.Equal(t, []gpio.Level{gpio.Low, gpio.High, gpio.Low}, sys.relay.Levels())

	var p mqtt.Payload
	require.NoError(t, json.Unmarshal(sys.publisher.Payloads[2], &p))
	assert.Equal(t, "PUMP_ON", p.Pump.Event)
	assert.Equal(t, 1, p.Pump.Cycles)
	assert.Equal(t, 5.0, p.Pump.Pulse)
	assert.Equal(t, 10.0, p.Pump.Pause)
	assert.Equal(t, "2026-01-01T12:00:15Z", p.Pump.Timestamp)
}

func TestIntegrationCycleCount(t *testing.T) {
	sys := newSystem(t, settings.NewMemoryStore(), 2, 3)
	sys.start()

	sys.run(50 * time.Second)

	// 10 full cycles of 5s; the startup entry is not counted.
	assert.Equal(t, 10, sys.state.Snapshot().Cycles)
	assert.Len(t, sys.relay.Levels(), 21)
}

func TestIntegrationElapsedNeverExceedsDuration(t *testing.T) {
	sys := newSystem(t, settings.NewMemoryStore(), 1.5, 2.5)
	sys.start()

	for i := 0; i < 200; i++ {
		sys.run(poll)
		snap := sys.state.Snapshot()
		require.LessOrEqual(t, snap.Elapsed, snap.PhaseDuration, "tick %d", i)
		require.Equal(t, snap.Durations.For(snap.Phase), snap.PhaseDuration, "tick %d", i)
	}
}

func TestIntegrationRestartKeepsDurations(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "settings.db")

	store, err := settings.OpenSQLite(dbPath)
	require.NoError(t, err)
	sys := newSystem(t, store, settings.DefaultPulse, settings.DefaultPause)
	sys.start()

	require.NoError(t, sys.tracker.SetDurations(7, 30))
	sys.run(60 * time.Second)
	require.Greater(t, sys.state.Snapshot().Cycles, 0)
	require.NoError(t, store.Close())

	// Restart
	store, err = settings.OpenSQLite(dbPath)
	require.NoError(t, err)
	defer store.Close()
	restarted := newSystem(t, store, settings.DefaultPulse, settings.DefaultPause)

	snap := restarted.state.Snapshot()
	assert.Equal(t, 7*time.Second, snap.Durations.Pulse)
	assert.Equal(t, 30*time.Second, snap.Durations.Pause)
	assert.Equal(t, 0, snap.Cycles)
	assert.Equal(t, logic.PhaseOff, snap.Phase)
	assert.Equal(t, time.Duration(0), snap.Elapsed)
}

func TestIntegrationFirstBootUsesDefaults(t *testing.T) {
	store, err := settings.OpenSQLite(filepath.Join(t.TempDir(), "settings.db"))
	require.NoError(t, err)
	defer store.Close()

	sys := newSystem(t, store, settings.DefaultPulse, settings.DefaultPause)
	d := sys.state.Durations()
	assert.Equal(t, 79*time.Second, d.Pulse)
	assert.Equal(t, 359*time.Second, d.Pause)
}

func TestIntegrationActuatorFailureKeepsCycling(t *testing.T) {
	sys := newSystem(t, settings.NewMemoryStore(), 1, 1)
	sys.relay.SetWriteError(errors.New("line busy"))
	sys.start()

	sys.run(4 * time.Second)

	snap := sys.state.Snapshot()
	assert.Equal(t, 2, snap.Cycles)
	assert.Equal(t, 5, snap.ActuatorErrors)
	assert.Len(t, sys.publisher.Events, 5, "events still published")
}

func TestIntegrationPublishFailureDoesNotStopController(t *testing.T) {
	sys := newSystem(t, settings.NewMemoryStore(), 1, 1)
	sys.publisher.PublishError = errors.New("broker down")
	sys.start()

	sys.run(4 * time.Second)
	assert.Equal(t, 2, sys.state.Snapshot().Cycles)
	assert.Empty(t, sys.publisher.Events)
}

// --- HTTP surface against a stepped controller ---

func serve(t *testing.T, sys *system) *httptest.Server {
	t.Helper()
	ts := httptest.NewServer(web.New(":0", sys.tracker).Handler())
	t.Cleanup(ts.Close)
	return ts
}

func getCompact(t *testing.T, ts *httptest.Server) status.CompactJSON {
	t.Helper()
	resp, err := http.Get(ts.URL + "/status")
	require.NoError(t, err)
	defer resp.Body.Close()
	var c status.CompactJSON
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&c))
	return c
}

func TestIntegrationLiveReconfigurationOverHTTP(t *testing.T) {
	sys := newSystem(t, settings.NewMemoryStore(), 10, 10)
	ts := serve(t, sys)
	sys.start()
	sys.run(3 * time.Second)

	resp, err := http.PostForm(ts.URL+"/", url.Values{"pulse": {"4"}, "pause": {"10"}})
	require.NoError(t, err)
	resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode, "redirect followed to the page")

	// Current phase shortened immediately.
	c := getCompact(t, ts)
	assert.Equal(t, 4, c.Duration)
	assert.Equal(t, "Aan", c.Status)

	sys.run(time.Second)
	c = getCompact(t, ts)
	assert.Equal(t, "Uit", c.Status)
	assert.Equal(t, 10, c.Duration)

	v, err := sys.store.Load(settings.KeyPulse, 0)
	require.NoError(t, err)
	assert.Equal(t, 4.0, v)
}

func TestIntegrationRejectedConfigurationChangesNothing(t *testing.T) {
	sys := newSystem(t, settings.NewMemoryStore(), 5, 10)
	ts := serve(t, sys)
	sys.start()

	resp, err := http.PostForm(ts.URL+"/", url.Values{"pulse": {"-1"}, "pause": {"10"}})
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	c := getCompact(t, ts)
	assert.Equal(t, 5, c.Pulse)
	assert.Equal(t, 10, c.Pause)
}

func TestIntegrationResetOverHTTP(t *testing.T) {
	sys := newSystem(t, settings.NewMemoryStore(), 2, 3)
	ts := serve(t, sys)
	sys.start()
	sys.run(18 * time.Second) // 3 cycles, 1s into the next OFF phase

	before := getCompact(t, ts)
	require.Equal(t, 3, before.Cycles)
	require.Equal(t, "Uit", before.Status)

	resp, err := http.Post(ts.URL+"/reset", "", nil)
	require.NoError(t, err)
	resp.Body.Close()
	require.Equal(t, http.StatusNoContent, resp.StatusCode)

	// Counter zeroed right away, timer restarts on the next tick.
	assert.Equal(t, 0, getCompact(t, ts).Cycles)

	sys.run(poll)
	snap := sys.state.Snapshot()
	assert.Equal(t, logic.PhaseOff, snap.Phase, "reset does not change phase")
	assert.Equal(t, time.Duration(0), snap.Elapsed)

	sys.run(3 * time.Second)
	snap = sys.state.Snapshot()
	assert.Equal(t, logic.PhaseOn, snap.Phase)
	assert.Equal(t, 1, snap.Cycles)

	types := sys.eventTypes()
	assert.Contains(t, types, logic.EventReset)
}

// --- full goroutine wiring ---

func TestIntegrationRunWithForwarder(t *testing.T) {
	st := logic.NewState(logic.Durations{Pulse: time.Second, Pause: time.Second})
	relay := gpio.NewFakeWriter()

	var mu sync.Mutex
	now := startTime
	clock := func() time.Time {
		mu.Lock()
		defer mu.Unlock()
		return now
	}
	ctrl := logic.NewController(st, relay, logic.WithClock(clock), logic.WithEvents(16))
	pub := mqtt.NewFakePublisher()

	ctx, cancel := context.WithCancel(context.Background())
	tick := make(chan time.Time)
	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		ctrl.Run(ctx, tick)
	}()
	go func() {
		defer wg.Done()
		mqtt.Forward(ctx, ctrl.Events(), pub)
	}()

	require.Eventually(t, func() bool { return pub.EventCount() == 1 }, 2*time.Second, time.Millisecond)

	for i := 1; i <= 4; i++ {
		mu.Lock()
		now = startTime.Add(time.Duration(i) * time.Second)
		mu.Unlock()
		tick <- now
		want := i + 1
		require.Eventually(t, func() bool { return pub.EventCount() == want }, 2*time.Second, time.Millisecond)
	}

	cancel()
	wg.Wait()

	assert.Equal(t, 2, st.Snapshot().Cycles)
	last, ok := relay.Last()
	require.True(t, ok)
	assert.Equal(t, gpio.High, last, "relay idle after shutdown")

	var types []logic.EventType
	for _, ev := range pub.Events {
		types = append(types, ev.Type)
	}
	assert.Equal(t, []logic.EventType{
		logic.EventPumpOn, logic.EventPumpOff, logic.EventPumpOn, logic.EventPumpOff, logic.EventPumpOn,
	}, types)
}

func TestIntegrationLifecyclePayloads(t *testing.T) {
	sys := newSystem(t, settings.NewMemoryStore(), 5, 10)
	sys.tracker.SetNetwork(&status.NetworkInfo{Type: "eth", IP: "10.0.0.2", Status: "connected"})
	sys.start()
	sys.run(7 * time.Second)

	snap := sys.tracker.Snapshot()
	for _, ev := range []string{"STARTUP", "HEARTBEAT", "SHUTDOWN"} {
		require.NoError(t, sys.publisher.PublishSystem(mqtt.SystemEvent{
			Timestamp:  snap.Now,
			Event:      ev,
			RawPayload: status.FormatStatusEvent(snap, ev, ""),
		}))
	}

	require.Len(t, sys.publisher.SystemPayloads, 3)
	var sj status.StatusJSON
	require.NoError(t, json.Unmarshal(sys.publisher.SystemPayloads[1], &sj))
	assert.Equal(t, "HEARTBEAT", sj.Status.Event)
	assert.Equal(t, "OFF", sj.Status.Pump.Phase)
	assert.Equal(t, "Uit", sj.Status.Pump.Label)
	assert.Equal(t, 2.0, sj.Status.Pump.Elapsed)
	assert.Equal(t, "10.0.0.2", sj.Status.Network.IP)
}
