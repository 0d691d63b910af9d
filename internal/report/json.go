package report

import (
	"encoding/json"
	"fmt"
	"time"

	"NetMonitorGo/internal/portscan"
)

// TimeLayout is the timestamp format used in exported reports.
const TimeLayout = "2006-01-02 15:04:05"

type jsonPort struct {
	Port    uint16 `json:"port"`
	Service string `json:"service"`
}

type jsonScan struct {
	Target       string     `json:"target"`
	IP           string     `json:"ip"`
	ScanTime     string     `json:"scan_time"`
	StartTime    time.Time  `json:"start_time"`
	EndTime      time.Time  `json:"end_time"`
	DurationMS   int64      `json:"duration_ms"`
	PortRange    string     `json:"port_range"`
	PortsScanned int        `json:"ports_scanned"`
	ProbeErrors  int        `json:"probe_errors"`
	OpenPorts    []jsonPort `json:"open_ports"`
}

func toJSON(r portscan.ScanRecord) jsonScan {
	ports := make([]jsonPort, 0, len(r.OpenPorts))
	for _, p := range r.OpenPorts {
		ports = append(ports, jsonPort{Port: p.Port, Service: p.Service})
	}
	return jsonScan{
		Target:       r.Target,
		IP:           r.Address.String(),
		ScanTime:     r.StartTime.Format(TimeLayout),
		StartTime:    r.StartTime,
		EndTime:      r.EndTime,
		DurationMS:   r.Duration().Milliseconds(),
		PortRange:    r.Ports.String(),
		PortsScanned: r.PortsScanned,
		ProbeErrors:  r.ProbeErrors,
		OpenPorts:    ports,
	}
}

// MarshalRecords encodes records as an indented JSON array, oldest first.
func MarshalRecords(records []portscan.ScanRecord) ([]byte, error) {
	out := make([]jsonScan, 0, len(records))
	for _, r := range records {
		out = append(out, toJSON(r))
	}
	b, err := json.MarshalIndent(out, "", "    ")
	if err != nil {
		return nil, fmt.Errorf("encode records: %w", err)
	}
	return append(b, '\n'), nil
}

// JSONFile writes the session to Path, replacing any previous export.
type JSONFile struct {
	Path string
}

func (f JSONFile) Save(records []portscan.ScanRecord) error {
	b, err := MarshalRecords(records)
	if err != nil {
		return err
	}
	return writeFile(f.Path, b)
}
