// internal/sensorinfo/report.go
package sensorinfo

import (
	"bufio"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"time"

	cfg "github.com/tamzrod/sensorbox/internal/config"
	"github.com/tamzrod/sensorbox/internal/poller"
)

// Values written when a status cannot be decoded.
const (
	NoAnswer        = "No Answer"
	IncorrectAnswer = "Incorrect Answer"

	unknownLocation = "00000000"
)

// Host describes the machine the report is produced on.
type Host struct {
	Hostname  string
	CPUSerial string
	OS        string
}

// DetectHost gathers host details; missing parts stay empty.
func DetectHost() Host {
	h := Host{OS: runtime.GOOS + "/" + runtime.GOARCH}
	if name, err := os.Hostname(); err == nil {
		h.Hostname = name
	}
	h.CPUSerial = cpuSerial("/proc/cpuinfo")
	return h
}

func cpuSerial(path string) string {
	f, err := os.Open(path)
	if err != nil {
		return ""
	}
	defer f.Close()

	sc := bufio.NewScanner(f)
	for sc.Scan() {
		key, val, ok := strings.Cut(sc.Text(), ":")
		if ok && strings.TrimSpace(key) == "Serial" {
			return strings.TrimSpace(val)
		}
	}
	return ""
}

// Entry is one reported status.
type Entry struct {
	Name  string
	Value string
}

// Report is the sensor information document.
type Report struct {
	At              time.Time
	BoxID           string
	SoftwareVersion string
	Host            Host
	Entries         []Entry
}

// Collect reads every configured status: EPROM statuses, RAM statuses,
// then Arduino statuses. A nil tx (port not opened) reports every status
// as NoAnswer.
func Collect(s *cfg.Settings, tx poller.Transactor, at time.Time, host Host) Report {
	r := Report{
		At:              at,
		BoxID:           s.Box.ID,
		SoftwareVersion: s.SensorInfo.SoftwareVersion,
		Host:            host,
	}

	fc := s.Box.Functions
	points := poller.SensorPoints(uint8(s.Box.SensorAddress), uint8(fc.ReadEPROM), s.SensorInfo.EPROMStatuses)
	points = append(points, poller.SensorPoints(uint8(s.Box.SensorAddress), uint8(fc.ReadRAM), s.SensorInfo.RAMStatuses)...)
	points = append(points, poller.ArduinoPoints(uint8(s.Box.ArduinoAddress), fc, s.SensorInfo.ArduinoStatuses)...)

	for _, pt := range points {
		r.Entries = append(r.Entries, Entry{
			Name:  pt.Descriptor.Name,
			Value: answer(tx, pt),
		})
	}
	return r
}

func answer(tx poller.Transactor, pt poller.Point) string {
	if tx == nil {
		return NoAnswer
	}
	v, err := poller.Read(tx, pt)
	switch {
	case errors.Is(err, poller.ErrEmptyPayload):
		return IncorrectAnswer
	case err != nil:
		return NoAnswer
	}
	return v.String()
}

// String renders the report as "Key: value" lines.
func (r Report) String() string {
	location := r.Host.Hostname
	if location == "" {
		location = unknownLocation
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Date: %s, Time: %s\n", r.At.Format(time.DateOnly), r.At.Format(time.TimeOnly))
	fmt.Fprintf(&b, "Integrated_Box_ID: %s\n", r.BoxID)
	fmt.Fprintf(&b, "Raspberry_Pi_CPU_SN: %s\n", r.Host.CPUSerial)
	fmt.Fprintf(&b, "Raspberry_Pi_OS_version: %s\n", r.Host.OS)
	fmt.Fprintf(&b, "Raspberry_Pi_software_version: %s\n", r.SoftwareVersion)
	fmt.Fprintf(&b, "Location_string_of_the_Integrated_box: %s\n", location)
	for _, e := range r.Entries {
		fmt.Fprintf(&b, "%s: %s\n", e.Name, e.Value)
	}
	return b.String()
}

// WriteFile replaces path with the rendered report.
func (r Report) WriteFile(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("sensorinfo: %w", err)
	}
	if err := os.WriteFile(path, []byte(r.String()), 0o644); err != nil {
		return fmt.Errorf("sensorinfo: %w", err)
	}
	return nil
}
