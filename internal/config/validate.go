// internal/config/validate.go
package config

import (
	"fmt"
	"strings"

	"github.com/rs/zerolog"

	"github.com/tamzrod/sensorbox/internal/register"
)

// Validate checks configuration correctness.
// It performs declarative validation only.
// It MUST NOT mutate configuration.
func Validate(cfg *Config) error {
	if cfg == nil {
		return fmt.Errorf("config: nil configuration")
	}

	// name ends up in lock markers: keep it a single token
	if strings.ContainsAny(cfg.Name, " \t/\\") {
		return fmt.Errorf("name %q must not contain whitespace or path separators", cfg.Name)
	}

	if cfg.PollIntervalMs < 0 {
		return fmt.Errorf("poll_interval_ms must be >= 0, got %d", cfg.PollIntervalMs)
	}

	if cfg.Log.Level != "" {
		if _, err := zerolog.ParseLevel(cfg.Log.Level); err != nil {
			return fmt.Errorf("log.level: %w", err)
		}
	}

	return nil
}

// ValidateSettings checks the shared settings document.
// It performs declarative validation only.
// It MUST NOT mutate settings.
func ValidateSettings(s *Settings) error {
	if s == nil {
		return fmt.Errorf("settings: nil document")
	}

	// ------------------------------------------------------------
	// BOX
	// ------------------------------------------------------------

	b := s.Box
	if b.Port == "" {
		return fmt.Errorf("box.port is required")
	}
	if b.BaudRate <= 0 {
		return fmt.Errorf("box.baudrate must be > 0, got %d", b.BaudRate)
	}
	for name, v := range map[string]int{
		"box.tries":               b.Tries,
		"box.read_timeout_ms":     b.ReadTimeoutMs,
		"box.settle_ms":           b.SettleMs,
		"box.user_data_data_step": b.UserDataStep,
		"box.raw_write_attempts":  b.RawWriteAttempts,
	} {
		if v < 0 {
			return fmt.Errorf("%s must be >= 0, got %d", name, v)
		}
	}
	if _, err := b.ProtocolProfiles(); err != nil {
		return err
	}

	// ------------------------------------------------------------
	// FILES
	// ------------------------------------------------------------

	if s.LocalFiles.RawData == "" {
		return fmt.Errorf("local_files.raw_data is required")
	}
	if s.LocalFiles.CalcData == "" {
		return fmt.Errorf("local_files.calc_data is required")
	}

	// ------------------------------------------------------------
	// REGISTER MAPS
	// ------------------------------------------------------------

	if len(s.RawData.Registers) == 0 {
		return fmt.Errorf("raw_data.registers: no registers specified")
	}

	// column names must be unique across both maps
	seen := make(map[string]string)
	check := func(section string, m RegisterMap, class register.Class) error {
		for _, e := range m {
			d := e.Descriptor(class)
			if err := d.Validate(); err != nil {
				return fmt.Errorf("%s: %w", section, err)
			}
			if e.RegisterType != "" && !strings.EqualFold(e.RegisterType, "IR") && !strings.EqualFold(e.RegisterType, "HR") {
				return fmt.Errorf("%s: register %q: register_type must be IR or HR", section, e.Name)
			}
			if prev, ok := seen[e.Name]; ok {
				return fmt.Errorf("register %q defined in both %s and %s", e.Name, prev, section)
			}
			seen[e.Name] = section
		}
		return nil
	}

	if err := check("raw_data.registers", s.RawData.Registers, register.ClassCustom); err != nil {
		return err
	}
	if err := check("raw_data.arduino_registers", s.RawData.ArduinoRegisters, register.ClassHolding); err != nil {
		return err
	}

	// the sensor info report is a separate namespace
	seen = make(map[string]string)
	if err := check("sensor_info.EPROM_statuses", s.SensorInfo.EPROMStatuses, register.ClassCustom); err != nil {
		return err
	}
	if err := check("sensor_info.RAM_statuses", s.SensorInfo.RAMStatuses, register.ClassCustom); err != nil {
		return err
	}
	if err := check("sensor_info.Arduino_Statuses", s.SensorInfo.ArduinoStatuses, register.ClassHolding); err != nil {
		return err
	}

	return nil
}
