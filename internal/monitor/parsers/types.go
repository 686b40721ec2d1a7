// Package parsers turns the raw text of diagnostic commands into typed
// metrics. Every parser is a pure function of its input and returns a
// *ParseError, never a panic, when the text doesn't match its format.
package parsers

import (
	"encoding/json"
	"fmt"
)

// Metric kinds.
const (
	KindCPU     = "cpu"
	KindMemory  = "memory"
	KindDisk    = "disk"
	KindNetwork = "network"
)

// Metric is one parsed measurement.
type Metric interface {
	Kind() string
}

// CPU is aggregate processor utilization.
type CPU struct {
	BusyPercent   float64 `json:"busy_percent"`
	IdlePercent   float64 `json:"idle_percent"`
	UserPercent   float64 `json:"user_percent"`
	SystemPercent float64 `json:"system_percent"`
	Cores         int     `json:"cores,omitempty"`
}

// Memory is physical memory usage in bytes.
type Memory struct {
	TotalBytes     int64 `json:"total_bytes"`
	UsedBytes      int64 `json:"used_bytes"`
	FreeBytes      int64 `json:"free_bytes"`
	AvailableBytes int64 `json:"available_bytes,omitempty"`
}

// Disk is usage of one mounted filesystem in bytes.
type Disk struct {
	Filesystem     string  `json:"filesystem"`
	MountPoint     string  `json:"mount_point"`
	TotalBytes     int64   `json:"total_bytes"`
	UsedBytes      int64   `json:"used_bytes"`
	AvailableBytes int64   `json:"available_bytes"`
	UsePercent     float64 `json:"use_percent"`
}

// Interface holds cumulative byte counters for one network interface.
type Interface struct {
	Name    string `json:"name"`
	RxBytes int64  `json:"rx_bytes"`
	TxBytes int64  `json:"tx_bytes"`
}

// Network lists every interface the command reported, in report order.
type Network struct {
	Interfaces []Interface `json:"interfaces"`
}

func (CPU) Kind() string     { return KindCPU }
func (Memory) Kind() string  { return KindMemory }
func (Disk) Kind() string    { return KindDisk }
func (Network) Kind() string { return KindNetwork }

// ParseError reports text that doesn't match the parser's format.
// Reason is short and stable so it can be surfaced as a failure reason.
type ParseError struct {
	Parser string
	Reason string
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("%s: %s", e.Parser, e.Reason)
}

func parseErr(parser, format string, args ...any) *ParseError {
	return &ParseError{Parser: parser, Reason: fmt.Sprintf(format, args...)}
}

// Each metric serializes with a "kind" field so Decode can restore it.

func (c CPU) MarshalJSON() ([]byte, error) {
	type plain CPU
	return json.Marshal(struct {
		Kind string `json:"kind"`
		plain
	}{KindCPU, plain(c)})
}

func (m Memory) MarshalJSON() ([]byte, error) {
	type plain Memory
	return json.Marshal(struct {
		Kind string `json:"kind"`
		plain
	}{KindMemory, plain(m)})
}

func (d Disk) MarshalJSON() ([]byte, error) {
	type plain Disk
	return json.Marshal(struct {
		Kind string `json:"kind"`
		plain
	}{KindDisk, plain(d)})
}

func (n Network) MarshalJSON() ([]byte, error) {
	type plain Network
	if n.Interfaces == nil {
		n.Interfaces = []Interface{}
	}
	return json.Marshal(struct {
		Kind string `json:"kind"`
		plain
	}{KindNetwork, plain(n)})
}

// Decode restores a Metric serialized by one of the MarshalJSON methods.
func Decode(data []byte) (Metric, error) {
	var head struct {
		Kind string `json:"kind"`
	}
	if err := json.Unmarshal(data, &head); err != nil {
		return nil, err
	}

	switch head.Kind {
	case KindCPU:
		var m CPU
		err := json.Unmarshal(data, &m)
		return m, err
	case KindMemory:
		var m Memory
		err := json.Unmarshal(data, &m)
		return m, err
	case KindDisk:
		var m Disk
		err := json.Unmarshal(data, &m)
		return m, err
	case KindNetwork:
		var m Network
		err := json.Unmarshal(data, &m)
		return m, err
	default:
		return nil, fmt.Errorf("unknown metric kind %q", head.Kind)
	}
}
