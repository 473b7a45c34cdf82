// internal/config/settings_test.go
package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tamzrod/sensorbox/internal/register"
	"github.com/tamzrod/sensorbox/internal/rtu"
)

const sampleSettings = `{
  "box": {
    "id": "017",
    "port": "/dev/ttyAMA0",
    "baudrate": 9600,
    "tries": 5,
    "sensor_address": "68",
    "arduino_address": "0x69",
    "user_data_data_step": 10,
    "modbus_functions": {
      "READ_RAM": "44",
      "READ_EPROM": "46",
      "READ_MULTIPLE_HR": "03",
      "READ_MULTIPLE_IR": "04",
      "WRITE_SINGLE_HR": "06",
      "WRITE_MULTIPLE_HR": "10"
    }
  },
  "raw_data": {
    "registers": {
      "Zeta":  {"address": "0x0008", "data_length_bytes": 2, "keep_in": "decimal", "data_type": "signed"},
      "Alpha": {"address": "0x001A", "data_length_bytes": 1, "keep_in": "hex"},
      "Mid":   {"address": 64, "data_length_bytes": 4, "keep_in": "decimal", "data_type": "unsigned", "measurement": "Pressure"}
    },
    "arduino_registers": {
      "Temp": {"address": "0x0001", "data_length_bytes": 2, "keep_in": "decimal", "data_type": "signed", "register_type": "IR"},
      "Fan":  {"address": "0x0002", "data_length_bytes": 2, "keep_in": "decimal", "data_type": "unsigned"}
    }
  },
  "sensor_info": {
    "Location_string_of_the_Integrated_box": "NPC",
    "EPROM_statuses": {"Serial": {"address": "0x0028", "data_length_bytes": 4, "keep_in": "hex"}}
  },
  "local_files": {
    "raw_data": "data/raw.csv",
    "calc_data": "data/calc.csv",
    "sensor_data": "data/sensor.txt",
    "logs": "logs/datacollection.log"
  },
  "last_known_date": 20241001,
  "server": {"host": "ignored"}
}`

func TestParseSettings_PreservesRegisterOrder(t *testing.T) {
	s, err := ParseSettings([]byte(sampleSettings))
	require.NoError(t, err)

	var names []string
	for _, e := range s.RawData.Registers {
		names = append(names, e.Name)
	}
	assert.Equal(t, []string{"Zeta", "Alpha", "Mid"}, names)

	assert.Equal(t, []string{"Timestamp", "Location", "Zeta", "Alpha", "Pressure", "Temp", "Fan"}, s.Columns())
}

func TestParseSettings_HexScalars(t *testing.T) {
	s, err := ParseSettings([]byte(sampleSettings))
	require.NoError(t, err)

	assert.Equal(t, HexByte(0x68), s.Box.SensorAddress)
	assert.Equal(t, HexByte(0x69), s.Box.ArduinoAddress)
	assert.Equal(t, HexByte(0x44), s.Box.Functions.ReadRAM)
	assert.Equal(t, HexByte(0x10), s.Box.Functions.WriteMultiple)

	zeta, ok := s.RawData.Registers.Lookup("Zeta")
	require.True(t, ok)
	assert.Equal(t, HexUint16(0x0008), zeta.Address)

	mid, _ := s.RawData.Registers.Lookup("Mid")
	assert.Equal(t, HexUint16(64), mid.Address)

	assert.Equal(t, 20241001, s.LastKnownDate)
	assert.Equal(t, "NPC", s.SensorInfo.Location)
}

func TestParseSettings_Descriptors(t *testing.T) {
	s, err := ParseSettings([]byte(sampleSettings))
	require.NoError(t, err)

	zeta := s.RawData.Registers[0].Descriptor(register.ClassCustom)
	assert.Equal(t, register.Descriptor{
		Name:       "Zeta",
		Address:    0x0008,
		Length:     2,
		Class:      register.ClassCustom,
		Encoding:   register.EncodingDecimal,
		Signedness: register.Signed,
	}, zeta)

	temp := s.RawData.ArduinoRegisters[0].Descriptor(register.ClassHolding)
	assert.Equal(t, register.ClassInput, temp.Class)
	fan := s.RawData.ArduinoRegisters[1].Descriptor(register.ClassHolding)
	assert.Equal(t, register.ClassHolding, fan.Class)
}

func TestParseSettings_Errors(t *testing.T) {
	_, err := ParseSettings([]byte("  "))
	assert.ErrorIs(t, err, ErrSettingsEmpty)

	_, err = ParseSettings([]byte("null"))
	assert.ErrorIs(t, err, ErrSettingsEmpty)

	_, err = ParseSettings([]byte(`{"box": {`))
	assert.Error(t, err)

	_, err = ParseSettings([]byte(`{"box": {"sensor_address": "0x1FF"}}`))
	assert.Error(t, err)

	_, err = ParseSettings([]byte(`{"raw_data": {"registers": ["a"]}}`))
	assert.Error(t, err)

	_, err = ParseSettings([]byte(`{"box": {"sensor_address": true}}`))
	assert.Error(t, err)
}

func TestNormalizeSettings_Defaults(t *testing.T) {
	s := &Settings{}
	NormalizeSettings(s)

	assert.Equal(t, DefaultTries, s.Box.Tries)
	assert.Equal(t, 15*time.Minute, s.Box.Window())
	assert.Equal(t, 100*time.Millisecond, s.Box.ReadTimeout())
	assert.Equal(t, 100*time.Millisecond, s.Box.Settle())
	assert.Equal(t, 1, s.Box.RawWriteAttempts)
	assert.Equal(t, HexUint16(0x0010), s.Box.RTCAddress)
	assert.Equal(t, HexByte(rtu.FuncReadRAM), s.Box.Functions.ReadRAM)
	assert.Equal(t, HexByte(rtu.FuncReadInputRegisters), s.Box.Functions.ReadInput)

	profiles, err := s.Box.ProtocolProfiles()
	require.NoError(t, err)
	assert.True(t, profiles.For(105).WideReadQuantity)
	assert.False(t, profiles.For(0x68).WideReadQuantity)
}

func TestNormalizeSettings_KeepsExplicitProfiles(t *testing.T) {
	s := &Settings{Box: BoxConfig{Profiles: map[string]ProfileConfig{}}}
	NormalizeSettings(s)

	profiles, err := s.Box.ProtocolProfiles()
	require.NoError(t, err)
	assert.False(t, profiles.For(105).WideReadQuantity)
}

func TestNormalizeSettings_KeepsConfiguredValues(t *testing.T) {
	s, err := ParseSettings([]byte(sampleSettings))
	require.NoError(t, err)
	NormalizeSettings(s)

	assert.Equal(t, 5, s.Box.Tries)
	assert.Equal(t, 10*time.Minute, s.Box.Window())
}

func TestWatcher_LoadIfModified(t *testing.T) {
	path := filepath.Join(t.TempDir(), "settings.json")
	w := NewWatcher(path)

	// missing file is "not modified"
	s, err := w.LoadIfModified()
	require.NoError(t, err)
	assert.Nil(t, s)

	require.NoError(t, os.WriteFile(path, []byte(sampleSettings), 0o644))
	mt := time.Now().Add(-time.Minute)
	require.NoError(t, os.Chtimes(path, mt, mt))

	s, err = w.LoadIfModified()
	require.NoError(t, err)
	require.NotNil(t, s)
	assert.Equal(t, 5, s.Box.Tries)
	assert.Equal(t, 1, s.Box.RawWriteAttempts)

	// unchanged
	s, err = w.LoadIfModified()
	require.NoError(t, err)
	assert.Nil(t, s)

	mt = mt.Add(30 * time.Second)
	require.NoError(t, os.Chtimes(path, mt, mt))
	changed, err := w.Modified()
	require.NoError(t, err)
	assert.True(t, changed)
}

func TestWatcher_InvalidSettings(t *testing.T) {
	path := filepath.Join(t.TempDir(), "settings.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"box": {}}`), 0o644))

	_, err := NewWatcher(path).LoadIfModified()
	assert.Error(t, err)
}

func TestWatcher_RetriesPartialWrite(t *testing.T) {
	path := filepath.Join(t.TempDir(), "settings.json")
	w := NewWatcher(path)

	// Truncated in place, caught before the rewrite completes.
	mt := time.Now().Add(-time.Minute)
	require.NoError(t, os.WriteFile(path, []byte(sampleSettings[:40]), 0o644))
	require.NoError(t, os.Chtimes(path, mt, mt))

	_, err := w.LoadIfModified()
	require.Error(t, err)

	// Same mtime once the write completes: still picked up.
	require.NoError(t, os.WriteFile(path, []byte(sampleSettings), 0o644))
	require.NoError(t, os.Chtimes(path, mt, mt))

	s, err := w.LoadIfModified()
	require.NoError(t, err)
	require.NotNil(t, s)

	s, err = w.LoadIfModified()
	require.NoError(t, err)
	assert.Nil(t, s)
}

func TestLoad_Service(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, DefaultName, cfg.Name)
	assert.Equal(t, DefaultLockDir, cfg.LockDir)

	path := filepath.Join(t.TempDir(), "sensorbox.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
name: sensorinfo
settings: /home/pi/K96Rpi/settings.json
poll_interval_ms: 250
log:
  level: debug
  console: true
metrics:
  listen: ":9108"
`), 0o644))

	cfg, err = Load(path)
	require.NoError(t, err)
	require.NoError(t, Validate(cfg))
	Normalize(cfg)

	assert.Equal(t, "sensorinfo", cfg.Name)
	assert.Equal(t, "/home/pi/K96Rpi/settings.json", cfg.Settings)
	assert.Equal(t, DefaultLockDir, cfg.LockDir)
	assert.Equal(t, 250*time.Millisecond, cfg.PollInterval())
	assert.True(t, cfg.Log.Console)
	assert.Equal(t, ":9108", cfg.Metrics.Listen)

	require.NoError(t, os.WriteFile(path, []byte("unknown_key: 1\n"), 0o644))
	_, err = Load(path)
	assert.Error(t, err)
}
