package protocol

import (
	"fmt"
	"strings"
)

// LogType selects a section of the device log.
type LogType int32

const (
	LogTypeInvalid       LogType = -1
	LogTypeUtilizations  LogType = 0
	LogTypeTemperatures  LogType = 1
	LogTypeCapacities    LogType = 2
	LogTypeConfiguration LogType = 3
	LogTypeStatistics    LogType = 4
	LogTypeMessages      LogType = 5
	LogTypeLimits        LogType = 6
	LogTypeDevice        LogType = 7
)

var logTypeNames = map[LogType]string{
	LogTypeUtilizations:  "UTILIZATIONS",
	LogTypeTemperatures:  "TEMPERATURES",
	LogTypeCapacities:    "CAPACITIES",
	LogTypeConfiguration: "CONFIGURATION",
	LogTypeStatistics:    "STATISTICS",
	LogTypeMessages:      "MESSAGES",
	LogTypeLimits:        "LIMITS",
	LogTypeDevice:        "DEVICE",
}

func (t LogType) String() string {
	if name, ok := logTypeNames[t]; ok {
		return name
	}
	return fmt.Sprintf("LogType(%d)", int32(t))
}

// Valid reports whether t is a known log type.
func (t LogType) Valid() bool {
	_, ok := logTypeNames[t]
	return ok
}

// ParseLogType accepts a log type name in any case.
func ParseLogType(name string) (LogType, error) {
	upper := strings.ToUpper(strings.TrimSpace(name))
	for t, n := range logTypeNames {
		if n == upper {
			return t, nil
		}
	}
	return LogTypeInvalid, fmt.Errorf("unknown log type %q", name)
}

// AllLogTypes lists every log type except DEVICE, which needs a device name.
func AllLogTypes() []LogType {
	return []LogType{
		LogTypeUtilizations,
		LogTypeTemperatures,
		LogTypeCapacities,
		LogTypeConfiguration,
		LogTypeStatistics,
		LogTypeMessages,
		LogTypeLimits,
	}
}

// Log is the GETLOG body. Requests set Types (and Device for LogTypeDevice);
// responses fill the matching sections.
type Log struct {
	Types         []LogType      `json:"types"`
	Utilizations  []Utilization  `json:"utilizations,omitempty"`
	Temperatures  []Temperature  `json:"temperatures,omitempty"`
	Capacity      *Capacity      `json:"capacity,omitempty"`
	Configuration *Configuration `json:"configuration,omitempty"`
	Statistics    []Statistics   `json:"statistics,omitempty"`
	Messages      []byte         `json:"messages,omitempty"`
	Limits        *Limits        `json:"limits,omitempty"`
	Device        *DeviceLog     `json:"device,omitempty"`
}

// Utilization is a named usage ratio in [0,1].
type Utilization struct {
	Name  string  `json:"name"`
	Value float32 `json:"value"`
}

// Temperature readings are in degrees Celsius.
type Temperature struct {
	Name    string  `json:"name"`
	Current float32 `json:"current"`
	Minimum float32 `json:"minimum"`
	Maximum float32 `json:"maximum"`
	Target  float32 `json:"target"`
}

type Capacity struct {
	NominalCapacityInBytes uint64  `json:"nominalCapacityInBytes"`
	PortionFull            float32 `json:"portionFull"`
}

type Interface struct {
	Name        string `json:"name"`
	MAC         string `json:"MAC,omitempty"`
	IPv4Address string `json:"ipv4Address,omitempty"`
	IPv6Address string `json:"ipv6Address,omitempty"`
}

type Configuration struct {
	Vendor          string      `json:"vendor"`
	Model           string      `json:"model"`
	SerialNumber    string      `json:"serialNumber"`
	WorldWideName   string      `json:"worldWideName,omitempty"`
	Version         string      `json:"version"`
	CompilationDate string      `json:"compilationDate,omitempty"`
	SourceHash      string      `json:"sourceHash,omitempty"`
	ProtocolVersion string      `json:"protocolVersion,omitempty"`
	Interfaces      []Interface `json:"interface,omitempty"`
	Port            int32       `json:"port"`
	TLSPort         int32       `json:"tlsPort"`
}

// Statistics counts requests per message type.
type Statistics struct {
	MessageType MessageType `json:"messageType"`
	Count       uint64      `json:"count"`
	Bytes       uint64      `json:"bytes"`
}

type Limits struct {
	MaxKeySize                  uint32 `json:"maxKeySize"`
	MaxValueSize                uint32 `json:"maxValueSize"`
	MaxVersionSize              uint32 `json:"maxVersionSize"`
	MaxTagSize                  uint32 `json:"maxTagSize"`
	MaxConnections              uint32 `json:"maxConnections"`
	MaxOutstandingReadRequests  uint32 `json:"maxOutstandingReadRequests"`
	MaxOutstandingWriteRequests uint32 `json:"maxOutstandingWriteRequests"`
	MaxMessageSize              uint32 `json:"maxMessageSize"`
	MaxKeyRangeCount            uint32 `json:"maxKeyRangeCount"`
	MaxIdentityCount            uint32 `json:"maxIdentityCount"`
	MaxPinSize                  uint32 `json:"maxPinSize"`
}

// DeviceLog names a vendor-specific log on request and carries it in the
// response value.
type DeviceLog struct {
	Name string `json:"name"`
}
