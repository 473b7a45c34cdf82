// internal/service/collector_test.go
package service

import (
	"context"
	"encoding/binary"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tamzrod/sensorbox/internal/config"
	"github.com/tamzrod/sensorbox/internal/lock"
	"github.com/tamzrod/sensorbox/internal/metrics"
	"github.com/tamzrod/sensorbox/internal/rtu"
	"github.com/tamzrod/sensorbox/internal/serialport"
	"github.com/tamzrod/sensorbox/internal/status"
)

// ------------------------------------------------------------
// fakes
// ------------------------------------------------------------

type key struct {
	slave, function uint8
	address         uint16
}

// fakePort answers every request from a table keyed by slave, function
// and address. Unknown requests stay silent.
type fakePort struct {
	mu      sync.Mutex
	answers map[key][]byte
	pending []byte
	closed  bool
}

func (p *fakePort) Flush() error { return nil }

func (p *fakePort) Write(b []byte) (int, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	k := key{b[0], b[1], binary.BigEndian.Uint16(b[2:4])}
	payload, ok := p.answers[k]
	if !ok {
		p.pending = nil
		return len(b), nil
	}
	f := append([]byte{b[0], b[1], byte(len(payload))}, payload...)
	p.pending = append(f, rtu.CRC16(f)...)
	return len(b), nil
}

func (p *fakePort) ReadAvailable() ([]byte, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := p.pending
	p.pending = nil
	return out, nil
}

func (p *fakePort) Close() error {
	p.closed = true
	return nil
}

type manualClock struct{ now time.Time }

func (c *manualClock) Now() time.Time { return c.now }

// recordingLocks records lock entry and exit around a real Locker.
type recordingLocks struct {
	*lock.Locker
	mu     sync.Mutex
	events []string
}

func (r *recordingLocks) With(ctx context.Context, name string, fn func() error) error {
	r.record("+" + name)
	err := r.Locker.With(ctx, name, fn)
	r.record("-" + name)
	return err
}

func (r *recordingLocks) record(e string) {
	r.mu.Lock()
	r.events = append(r.events, e)
	r.mu.Unlock()
}

func (r *recordingLocks) take() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := r.events
	r.events = nil
	return out
}

type recordingSink struct{ paths []string }

func (r *recordingSink) SetFile(path string) error {
	r.paths = append(r.paths, path)
	return nil
}

// ------------------------------------------------------------
// fixture
// ------------------------------------------------------------

const settingsTemplate = `{
  "box": {
    "id": "017",
    "port": "/dev/fake",
    "baudrate": 9600,
    "tries": 2,
    "settle_ms": 1,
    "sensor_address": "68",
    "arduino_address": "69",
    "user_data_data_step": 1
  },
  "raw_data": {
    "registers": {
      %s
    },
    "arduino_registers": {
      "Temp": {"address": "0x0001", "data_length_bytes": 2, "keep_in": "decimal", "data_type": "signed", "register_type": "IR"}
    }
  },
  "sensor_info": {"Location_string_of_the_Integrated_box": "NPC"},
  "local_files": {
    "raw_data": %q,
    "calc_data": %q,
    "sensor_data": %q,
    "logs": %q
  }
}`

const alphaRegister = `"Alpha": {"address": "0x001A", "data_length_bytes": 1, "keep_in": "hex"}`

type fixture struct {
	dir      string
	settings string
	raw      string
	calc     string
	logs     string
	port     *fakePort
	clock    *manualClock
	locks    *recordingLocks
	c        *Collector
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	dir := t.TempDir()
	f := &fixture{
		dir:      dir,
		settings: filepath.Join(dir, "settings.json"),
		raw:      filepath.Join(dir, "data", "raw.csv"),
		calc:     filepath.Join(dir, "data", "calc.csv"),
		logs:     filepath.Join(dir, "logs", "dc.log"),
		port: &fakePort{answers: map[key][]byte{
			{0x68, 0x44, 0x001A}: {0x2A},
			{0x69, 0x04, 0x0001}: {0x00, 0xFA},
		}},
		clock: &manualClock{now: time.Date(2024, 10, 1, 8, 0, 0, 0, time.UTC)},
	}
	f.writeSettings(t, alphaRegister, time.Now().Add(-time.Hour))

	locker := lock.New(filepath.Join(dir, "locks"), "datacollection", zerolog.Nop())
	locker.SetPollInterval(time.Millisecond)
	f.locks = &recordingLocks{Locker: locker}

	conf := config.Default()
	conf.Settings = f.settings

	f.c = New(Options{
		Config: conf,
		Locks:  f.locks,
		Open: func(serialport.Config, zerolog.Logger) (Port, error) {
			return f.port, nil
		},
		Clock:   f.clock,
		Metrics: metrics.New(),
		Log:     zerolog.Nop(),
	})
	return f
}

func (f *fixture) writeSettings(t *testing.T, registers string, mtime time.Time) {
	t.Helper()
	body := fmt.Sprintf(settingsTemplate, registers, f.raw, f.calc,
		filepath.Join(f.dir, "sensor.txt"), f.logs)
	require.NoError(t, os.WriteFile(f.settings, []byte(body), 0o644))
	require.NoError(t, os.Chtimes(f.settings, mtime, mtime))
}

func readLines(t *testing.T, path string) []string {
	t.Helper()
	b, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return nil
	}
	require.NoError(t, err)
	return strings.Split(strings.TrimRight(string(b), "\n"), "\n")
}

// ------------------------------------------------------------
// tests
// ------------------------------------------------------------

func TestCollector_StartWritesHeader(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	require.NoError(t, f.c.Start(ctx))
	require.NotNil(t, f.c.Settings())

	assert.Equal(t, []string{"Timestamp,Location,Alpha,Temp"}, readLines(t, f.raw))
	assert.Nil(t, readLines(t, f.calc))
}

func TestCollector_StartMissingSettings(t *testing.T) {
	conf := config.Default()
	conf.Settings = filepath.Join(t.TempDir(), "absent.json")

	c := New(Options{
		Config: conf,
		Locks:  lock.New(t.TempDir(), "datacollection", zerolog.Nop()),
		Log:    zerolog.Nop(),
	})
	assert.Error(t, c.Start(context.Background()))
}

func TestCollector_FlushAfterPortRelease(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	require.NoError(t, f.c.Start(ctx))

	// Two samples inside the window: nothing is written.
	for i := 0; i < 2; i++ {
		require.NoError(t, f.c.Cycle(ctx))
		f.clock.now = f.clock.now.Add(30 * time.Second)
	}
	assert.Len(t, readLines(t, f.raw), 1)
	assert.Nil(t, readLines(t, f.calc))
	assert.Equal(t, status.HealthOK, f.c.Status().Health)

	f.locks.take()

	// Third sample closes the one minute window.
	require.NoError(t, f.c.Cycle(ctx))

	assert.Equal(t, []string{
		"+port", "+rawdata", "-rawdata", "-port",
		"+calcdata", "-calcdata",
	}, f.locks.take())

	raw := readLines(t, f.raw)
	require.Len(t, raw, 4)
	assert.Equal(t, "2024-10-01T08:00:00,NPC,0x2A,250", raw[1])
	assert.Equal(t, "2024-10-01T08:01:00,NPC,0x2A,250", raw[3])

	assert.Equal(t, raw[1:], readLines(t, f.calc))
	assert.True(t, f.port.closed)

	// The window restarts empty.
	f.clock.now = f.clock.now.Add(30 * time.Second)
	require.NoError(t, f.c.Cycle(ctx))
	assert.Len(t, readLines(t, f.raw), 4)
}

func TestCollector_PortNotOpened(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	require.NoError(t, f.c.Start(ctx))

	f.c.open = func(cfg serialport.Config, _ zerolog.Logger) (Port, error) {
		return nil, fmt.Errorf("%w: %s", serialport.ErrNotOpened, cfg.Port)
	}

	require.NoError(t, f.c.Cycle(ctx))
	st := f.c.Status()
	assert.Equal(t, status.HealthError, st.Health)
	assert.Equal(t, status.ErrorPortNotOpened, st.LastErrorCode)

	f.clock.now = f.clock.now.Add(10 * time.Second)
	require.NoError(t, f.c.Cycle(ctx))
	assert.Equal(t, uint16(10), f.c.Status().SecondsInError)

	// Nothing was polled, nothing accumulates.
	assert.Equal(t, 0, f.c.pipe.Pending())
}

func TestCollector_DegradedWhenRegisterSilent(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	require.NoError(t, f.c.Start(ctx))

	delete(f.port.answers, key{0x69, 0x04, 0x0001})

	require.NoError(t, f.c.Cycle(ctx))
	st := f.c.Status()
	assert.Equal(t, status.HealthDegraded, st.Health)
	assert.Equal(t, 1, st.Missing)
	assert.Equal(t, status.ErrorNoResponse, st.LastErrorCode)
}

func TestCollector_Reload(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	require.NoError(t, f.c.Start(ctx))
	require.NoError(t, f.c.Cycle(ctx))

	f.port.answers[key{0x68, 0x44, 0x0020}] = []byte{0x01, 0x90}
	f.writeSettings(t, alphaRegister+`,
      "Beta": {"address": "0x0020", "data_length_bytes": 2, "keep_in": "decimal", "data_type": "signed"}`,
		time.Now())

	require.NoError(t, f.c.Cycle(ctx))
	require.Len(t, f.c.Settings().RawData.Registers, 2)
	assert.Equal(t, "Beta", f.c.Settings().RawData.Registers[1].Name)
	assert.Equal(t, 2, f.c.pipe.Pending())

	// A broken file keeps the previous settings.
	require.NoError(t, os.WriteFile(f.settings, []byte("{"), 0o644))
	later := time.Now().Add(time.Hour)
	require.NoError(t, os.Chtimes(f.settings, later, later))

	require.NoError(t, f.c.Cycle(ctx))
	assert.Len(t, f.c.Settings().RawData.Registers, 2)
	assert.Equal(t, 3, f.c.pipe.Pending())
}

func TestCollector_RunStopsOnCancel(t *testing.T) {
	f := newFixture(t)
	f.c.cfg.PollIntervalMs = 5

	ctx, cancel := context.WithCancel(context.Background())
	require.NoError(t, f.c.Start(ctx))

	done := make(chan error, 1)
	go func() { done <- f.c.Run(ctx) }()

	time.Sleep(30 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return after cancel")
	}
	assert.Greater(t, f.c.Status().Cycles, uint64(0))
}

func TestCollector_FollowsSettingsLogFile(t *testing.T) {
	f := newFixture(t)
	sink := &recordingSink{}
	f.c.sink = sink
	ctx := context.Background()

	require.NoError(t, f.c.Start(ctx))
	assert.Equal(t, []string{filepath.Join("logs", "dc.log")}, sink.paths)

	f.logs = filepath.Join(f.dir, "logs", "20241002-dc.log")
	f.writeSettings(t, alphaRegister, time.Now())
	require.NoError(t, f.c.Cycle(ctx))

	assert.Equal(t, []string{
		filepath.Join("logs", "dc.log"),
		filepath.Join("logs", "20241002-dc.log"),
	}, sink.paths)
}

func TestCollector_ConfiguredLogFileWins(t *testing.T) {
	f := newFixture(t)
	sink := &recordingSink{}
	f.c.sink = sink
	f.c.cfg.Log.File = filepath.Join(f.dir, "service.log")

	require.NoError(t, f.c.Start(context.Background()))
	assert.Empty(t, sink.paths)
}
