// internal/config/normalize.go
package config

import (
	"time"

	"github.com/tamzrod/sensorbox/internal/rtu"
)

// Settings defaults.
const (
	DefaultTries            = 3
	DefaultReadTimeoutMs    = 100
	DefaultSettleMs         = 100
	DefaultUserDataStep     = 15 // minutes
	DefaultRawWriteAttempts = 1
	DefaultRTCAddress       = 0x0010

	// DefaultWideSlave is the sensor that expects a 2-byte quantity in
	// register reads.
	DefaultWideSlave = "0x69"
)

// Normalize applies post-validation normalization.
// It is allowed to mutate configuration.
// It MUST be called only after Validate().
func Normalize(cfg *Config) {
	if cfg == nil {
		return
	}

	if cfg.Name == "" {
		cfg.Name = DefaultName
	}
	if cfg.Settings == "" {
		cfg.Settings = DefaultSettings
	}
	if cfg.LockDir == "" {
		cfg.LockDir = DefaultLockDir
	}
	if cfg.Log.Level == "" {
		cfg.Log.Level = DefaultLogLevel
	}
}

// PollInterval returns the pause between cycles.
func (c *Config) PollInterval() time.Duration {
	return time.Duration(c.PollIntervalMs) * time.Millisecond
}

// NormalizeSettings fills settings defaults.
// It MUST be called only after ValidateSettings().
func NormalizeSettings(s *Settings) {
	if s == nil {
		return
	}

	b := &s.Box
	if b.Tries <= 0 {
		b.Tries = DefaultTries
	}
	if b.ReadTimeoutMs <= 0 {
		b.ReadTimeoutMs = DefaultReadTimeoutMs
	}
	if b.SettleMs <= 0 {
		b.SettleMs = DefaultSettleMs
	}
	if b.UserDataStep <= 0 {
		b.UserDataStep = DefaultUserDataStep
	}
	if b.RawWriteAttempts <= 0 {
		b.RawWriteAttempts = DefaultRawWriteAttempts
	}
	if b.RTCAddress == 0 {
		b.RTCAddress = DefaultRTCAddress
	}

	// ------------------------------------------------------------
	// FUNCTION CODES
	// ------------------------------------------------------------

	f := &b.Functions
	setDefault(&f.ReadRAM, rtu.FuncReadRAM)
	setDefault(&f.ReadEPROM, rtu.FuncReadEPROM)
	setDefault(&f.ReadHolding, rtu.FuncReadHoldingRegisters)
	setDefault(&f.ReadInput, rtu.FuncReadInputRegisters)
	setDefault(&f.WriteSingle, rtu.FuncWriteSingleRegister)
	setDefault(&f.WriteMultiple, rtu.FuncWriteMultipleRegisters)

	// ------------------------------------------------------------
	// PROTOCOL PROFILES
	// ------------------------------------------------------------

	// nil means "not configured"; an explicit {} disables every quirk.
	if b.Profiles == nil {
		b.Profiles = map[string]ProfileConfig{
			DefaultWideSlave: {WideReadQuantity: true},
		}
	}
}

func setDefault(h *HexByte, v uint8) {
	if *h == 0 {
		*h = HexByte(v)
	}
}

// Window returns the accumulation window length.
func (b BoxConfig) Window() time.Duration {
	return time.Duration(b.UserDataStep) * time.Minute
}

// ReadTimeout returns the per-read port timeout.
func (b BoxConfig) ReadTimeout() time.Duration {
	return time.Duration(b.ReadTimeoutMs) * time.Millisecond
}

// Settle returns the executor settling delay.
func (b BoxConfig) Settle() time.Duration {
	return time.Duration(b.SettleMs) * time.Millisecond
}
