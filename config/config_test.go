package config

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/librescoot/tickfsm"
	"github.com/librescoot/tickfsm/loop"
)

func writeFile(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "tickfsm.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)

	assert.True(t, strings.HasPrefix(cfg.Machine.Name, "fsm-"), "generated name %q", cfg.Machine.Name)
	assert.Len(t, cfg.Machine.Name, len("fsm-")+8)
	assert.Equal(t, DuplicateReject, cfg.Machine.OnDuplicate)
	assert.True(t, cfg.Machine.SameStateNoop)
	assert.Equal(t, loop.DefaultTickRate, cfg.Loop.TickRate)
	assert.Equal(t, ":9090", cfg.Metrics.ListenAddr)
}

func TestLoadYAML(t *testing.T) {
	path := writeFile(t, `
machine:
  name: goblin
  on_duplicate: replace
  same_state_noop: false
loop:
  tick_rate: 33ms
  max_delta: 100ms
  stop_on_error: true
metrics:
  enabled: false
log:
  level: debug
  format: json
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "goblin", cfg.Machine.Name)
	assert.Equal(t, DuplicateReplace, cfg.Machine.OnDuplicate)
	assert.False(t, cfg.Machine.SameStateNoop)
	assert.Equal(t, 33*time.Millisecond, cfg.Loop.TickRate)
	assert.Equal(t, 100*time.Millisecond, cfg.Loop.MaxDelta)
	assert.True(t, cfg.Loop.StopOnError)
	assert.Equal(t, loop.DefaultQueueSize, cfg.Loop.QueueSize, "unset keys keep their defaults")
	assert.False(t, cfg.Metrics.Enabled)
	assert.Equal(t, LevelDebug, cfg.Log.Level)
}

func TestEnvironmentOverridesFile(t *testing.T) {
	path := writeFile(t, "machine:\n  name: from-file\nloop:\n  tick_rate: 20ms\n")
	t.Setenv("TICKFSM_MACHINE_NAME", "from-env")
	t.Setenv("TICKFSM_LOOP_QUEUE_SIZE", "8")
	t.Setenv("TICKFSM_METRICS_LISTEN_ADDR", "127.0.0.1:9999")

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "from-env", cfg.Machine.Name)
	assert.Equal(t, 20*time.Millisecond, cfg.Loop.TickRate)
	assert.Equal(t, 8, cfg.Loop.QueueSize)
	assert.Equal(t, "127.0.0.1:9999", cfg.Metrics.ListenAddr)
}

func TestLoadErrors(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.ErrorIs(t, err, os.ErrNotExist)

	_, err = Load(writeFile(t, "machine: [not, a, map]"))
	assert.Error(t, err)

	t.Setenv("TICKFSM_LOOP_TICK_RATE", "soon")
	_, err = Load("")
	assert.Error(t, err)
}

func TestValidateCollectsAllErrors(t *testing.T) {
	cfg := Default()
	cfg.Machine.OnDuplicate = "merge"
	cfg.Loop.TickRate = 0
	cfg.Loop.MaxDelta = -time.Second
	cfg.Metrics.ListenAddr = ""
	cfg.Log.Format = "xml"

	err := cfg.Validate()
	require.Error(t, err)

	for _, field := range []string{"machine.on_duplicate", "loop.tick_rate", "loop.max_delta", "metrics.listen_addr", "log.format"} {
		assert.Contains(t, err.Error(), field)
	}

	cfg = Default()
	cfg.Log.Level = "loud"
	assert.ErrorContains(t, cfg.Validate(), "log.level")
}

type replaceable struct {
	destroyed bool
}

func (r *replaceable) ID() tickfsm.StateID { return "r" }
func (r *replaceable) Destroy()            { r.destroyed = true }

func TestMachineOptions(t *testing.T) {
	cfg := Default()
	cfg.Machine.Name = "npc-1"
	cfg.Machine.OnDuplicate = DuplicateReplace

	m := tickfsm.NewMachine(cfg.MachineOptions(nil)...)
	first := &replaceable{}
	require.NoError(t, m.RegisterState(first))
	require.NoError(t, m.RegisterState(&replaceable{}))

	assert.Equal(t, "npc-1", m.Name())
	assert.True(t, first.destroyed)

	cfg.Machine.OnDuplicate = DuplicateReject
	m = tickfsm.NewMachine(cfg.MachineOptions(nil)...)
	require.NoError(t, m.RegisterState(&replaceable{}))
	assert.True(t, errors.Is(m.RegisterState(&replaceable{}), tickfsm.ErrDuplicateState))
}

func TestDuplicatePolicyIgnoresCase(t *testing.T) {
	cfg := Default()
	cfg.Machine.OnDuplicate = "Replace"
	require.NoError(t, cfg.Validate())

	m := tickfsm.NewMachine(cfg.MachineOptions(nil)...)
	first := &replaceable{}
	require.NoError(t, m.RegisterState(first))
	require.NoError(t, m.RegisterState(&replaceable{}))
	assert.True(t, first.destroyed)

	cfg.Machine.OnDuplicate = "REJECT"
	assert.NoError(t, cfg.Validate())
}

func TestLoopConfig(t *testing.T) {
	cfg := Default()
	cfg.Loop.StopOnError = true

	lc := cfg.LoopConfig()

	assert.Equal(t, loop.Config{
		TickRate:    loop.DefaultTickRate,
		MaxDelta:    loop.DefaultMaxDelta,
		StopOnError: true,
		QueueSize:   loop.DefaultQueueSize,
	}, lc)
}

func TestLogBuild(t *testing.T) {
	for _, format := range []string{FormatConsole, FormatJSON} {
		logger, err := LogConfig{Level: LevelWarn, Format: format}.Build()
		require.NoError(t, err)
		assert.False(t, logger.Core().Enabled(-1), "debug must be disabled at warn level")
		assert.True(t, logger.Core().Enabled(2), "error must be enabled at warn level")
	}

	_, err := LogConfig{Level: "chatty"}.Build()
	assert.Error(t, err)
}
