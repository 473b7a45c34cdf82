// internal/poller/builder.go
package poller

import (
	"time"

	"github.com/rs/zerolog"

	cfg "github.com/tamzrod/sensorbox/internal/config"
	"github.com/tamzrod/sensorbox/internal/register"
)

// Build constructs the data-collection Poller from normalized settings.
// Sensor registers are read with READ_RAM at the sensor address, Arduino
// registers with read input / read holding at the Arduino address.
func Build(s *cfg.Settings, now func() time.Time, log zerolog.Logger) (*Poller, error) {
	points := SensorPoints(uint8(s.Box.SensorAddress), uint8(s.Box.Functions.ReadRAM), s.RawData.Registers)
	points = append(points, ArduinoPoints(uint8(s.Box.ArduinoAddress), s.Box.Functions, s.RawData.ArduinoRegisters)...)

	return New(
		Config{
			Location: s.SensorInfo.Location,
			Points:   points,
			Now:      now,
		},
		log,
	)
}

// SensorPoints maps a sensor register map onto one function code.
func SensorPoints(slave, function uint8, m cfg.RegisterMap) []Point {
	out := make([]Point, 0, len(m))
	for _, e := range m {
		out = append(out, Point{
			Slave:      slave,
			Function:   function,
			Descriptor: e.Descriptor(register.ClassCustom),
		})
	}
	return out
}

// ArduinoPoints maps an Arduino register map; each entry picks read input
// or read holding from its register type.
func ArduinoPoints(slave uint8, fc cfg.FunctionCodes, m cfg.RegisterMap) []Point {
	out := make([]Point, 0, len(m))
	for _, e := range m {
		d := e.Descriptor(register.ClassHolding)
		function := uint8(fc.ReadHolding)
		if d.Class == register.ClassInput {
			function = uint8(fc.ReadInput)
		}
		out = append(out, Point{
			Slave:      slave,
			Function:   function,
			Descriptor: d,
		})
	}
	return out
}

// Lookup finds the point for a register name in the data-collection maps.
func Lookup(s *cfg.Settings, name string) (Point, bool) {
	if e, ok := s.RawData.Registers.Lookup(name); ok {
		return SensorPoints(uint8(s.Box.SensorAddress), uint8(s.Box.Functions.ReadRAM), cfg.RegisterMap{e})[0], true
	}
	if e, ok := s.RawData.ArduinoRegisters.Lookup(name); ok {
		return ArduinoPoints(uint8(s.Box.ArduinoAddress), s.Box.Functions, cfg.RegisterMap{e})[0], true
	}
	return Point{}, false
}
