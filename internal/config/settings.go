// internal/config/settings.go
package config

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/tidwall/gjson"

	"github.com/tamzrod/sensorbox/internal/register"
	"github.com/tamzrod/sensorbox/internal/rtu"
)

// Settings is the appliance-wide JSON document shared with the other
// services of the box. Only the keys this service reads are modelled;
// everything else is ignored.
type Settings struct {
	Box           BoxConfig        `json:"box"`
	RawData       RawDataConfig    `json:"raw_data"`
	SensorInfo    SensorInfoConfig `json:"sensor_info"`
	LocalFiles    LocalFiles       `json:"local_files"`
	LastKnownDate int              `json:"last_known_date"`
}

// ---- BOX ----

type BoxConfig struct {
	ID       string `json:"id"`
	Port     string `json:"port"`
	BaudRate int    `json:"baudrate"`
	Tries    int    `json:"tries"`

	ReadTimeoutMs int `json:"read_timeout_ms"`
	SettleMs      int `json:"settle_ms"`

	SensorAddress  HexByte `json:"sensor_address"`
	ArduinoAddress HexByte `json:"arduino_address"`

	// Window length in minutes.
	UserDataStep     int `json:"user_data_data_step"`
	RawWriteAttempts int `json:"raw_write_attempts"`

	Functions FunctionCodes            `json:"modbus_functions"`
	Profiles  map[string]ProfileConfig `json:"protocol_profiles"` // key = slave address (hex)

	RTCAddress HexUint16 `json:"rtc_address"`
}

type FunctionCodes struct {
	ReadRAM       HexByte `json:"READ_RAM"`
	ReadEPROM     HexByte `json:"READ_EPROM"`
	ReadHolding   HexByte `json:"READ_MULTIPLE_HR"`
	ReadInput     HexByte `json:"READ_MULTIPLE_IR"`
	WriteSingle   HexByte `json:"WRITE_SINGLE_HR"`
	WriteMultiple HexByte `json:"WRITE_MULTIPLE_HR"`
}

type ProfileConfig struct {
	WideReadQuantity bool `json:"wide_read_quantity"`
}

// ---- REGISTERS ----

type RawDataConfig struct {
	Registers        RegisterMap `json:"registers"`
	ArduinoRegisters RegisterMap `json:"arduino_registers"`
}

type SensorInfoConfig struct {
	Location        string      `json:"Location_string_of_the_Integrated_box"`
	SoftwareVersion string      `json:"Raspberry_Pi_software_version"`
	EPROMStatuses   RegisterMap `json:"EPROM_statuses"`
	RAMStatuses     RegisterMap `json:"RAM_statuses"`
	ArduinoStatuses RegisterMap `json:"Arduino_Statuses"`
}

type LocalFiles struct {
	RawData    string `json:"raw_data"`
	CalcData   string `json:"calc_data"`
	SensorData string `json:"sensor_data"`
	Logs       string `json:"logs"`
}

// RegisterEntry is one named register of a register map.
type RegisterEntry struct {
	Name         string    `json:"-"`
	Address      HexUint16 `json:"address"`
	Length       int       `json:"data_length_bytes"`
	KeepIn       string    `json:"keep_in"`
	DataType     string    `json:"data_type"`
	RegisterType string    `json:"register_type"` // "IR" or "HR"; Arduino maps only
	Measurement  string    `json:"measurement"`
}

// Descriptor converts the entry for the given register class.
// Arduino entries pick their class from RegisterType.
func (e RegisterEntry) Descriptor(class register.Class) register.Descriptor {
	if class != register.ClassCustom {
		class = register.ClassHolding
		if strings.EqualFold(e.RegisterType, "IR") {
			class = register.ClassInput
		}
	}
	return register.Descriptor{
		Name:        e.Name,
		Address:     uint16(e.Address),
		Length:      e.Length,
		Class:       class,
		Encoding:    register.Encoding(e.KeepIn),
		Signedness:  register.Signedness(e.DataType),
		Measurement: e.Measurement,
	}
}

// RegisterMap keeps the entries in document order; column order of the
// data files follows it.
type RegisterMap []RegisterEntry

// UnmarshalJSON reads a JSON object of name -> entry preserving key order.
func (m *RegisterMap) UnmarshalJSON(b []byte) error {
	res := gjson.ParseBytes(b)
	if res.Type == gjson.Null {
		*m = nil
		return nil
	}
	if !res.IsObject() {
		return fmt.Errorf("register map: expected object, got %s", res.Type)
	}

	var (
		out RegisterMap
		err error
	)
	res.ForEach(func(key, value gjson.Result) bool {
		var e RegisterEntry
		if uerr := json.Unmarshal([]byte(value.Raw), &e); uerr != nil {
			err = fmt.Errorf("register %q: %w", key.String(), uerr)
			return false
		}
		e.Name = key.String()
		out = append(out, e)
		return true
	})
	if err != nil {
		return err
	}
	*m = out
	return nil
}

// Lookup returns the entry called name.
func (m RegisterMap) Lookup(name string) (RegisterEntry, bool) {
	for _, e := range m {
		if e.Name == name {
			return e, true
		}
	}
	return RegisterEntry{}, false
}

// ---- HEX SCALARS ----

// HexByte accepts a hex string ("68", "0x44") or a JSON number.
type HexByte uint8

func (h *HexByte) UnmarshalJSON(b []byte) error {
	v, err := parseHexScalar(b, 8)
	if err != nil {
		return err
	}
	*h = HexByte(v)
	return nil
}

// HexUint16 accepts a hex string ("0x0010") or a JSON number.
type HexUint16 uint16

func (h *HexUint16) UnmarshalJSON(b []byte) error {
	v, err := parseHexScalar(b, 16)
	if err != nil {
		return err
	}
	*h = HexUint16(v)
	return nil
}

func parseHexScalar(b []byte, bits int) (uint64, error) {
	res := gjson.ParseBytes(b)
	switch res.Type {
	case gjson.Null:
		return 0, nil
	case gjson.Number:
		n, err := strconv.ParseUint(res.Raw, 10, bits)
		if err != nil {
			return 0, fmt.Errorf("invalid number %s: %w", res.Raw, err)
		}
		return n, nil
	case gjson.String:
		return ParseHex(res.String(), bits)
	}
	return 0, fmt.Errorf("expected hex string or number, got %s", res.Raw)
}

// ParseHex parses s as base 16, with or without a 0x prefix.
func ParseHex(s string, bits int) (uint64, error) {
	t := strings.TrimSpace(s)
	t = strings.TrimPrefix(strings.TrimPrefix(t, "0x"), "0X")
	if t == "" {
		return 0, fmt.Errorf("invalid hex value %q", s)
	}
	n, err := strconv.ParseUint(t, 16, bits)
	if err != nil {
		return 0, fmt.Errorf("invalid hex value %q: %w", s, err)
	}
	return n, nil
}

// ---- DERIVED ----

// ProtocolProfiles converts the configured profiles.
func (b BoxConfig) ProtocolProfiles() (rtu.Profiles, error) {
	out := make(rtu.Profiles, len(b.Profiles))
	for key, p := range b.Profiles {
		slave, err := ParseHex(key, 8)
		if err != nil {
			return nil, fmt.Errorf("protocol_profiles: %w", err)
		}
		out[uint8(slave)] = rtu.Profile{WideReadQuantity: p.WideReadQuantity}
	}
	return out, nil
}

// Columns returns the data file header titles in column order.
func (s *Settings) Columns() []string {
	cols := []string{"Timestamp", "Location"}
	for _, e := range s.RawData.Registers {
		cols = append(cols, e.Descriptor(register.ClassCustom).Column())
	}
	for _, e := range s.RawData.ArduinoRegisters {
		cols = append(cols, e.Descriptor(register.ClassHolding).Column())
	}
	return cols
}
