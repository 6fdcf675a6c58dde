package operations

import (
	"fmt"

	"github.com/chenchongli/kinetic-go/internal/protocol"
)

// GetLog requests one or more log sections.
type GetLog struct {
	Types []protocol.LogType
}

// NewGetLog requests the given log types.
func NewGetLog(types ...protocol.LogType) *GetLog {
	return &GetLog{Types: types}
}

func (op *GetLog) Name() string { return "getlog" }

func (op *GetLog) Build() (*protocol.Command, []byte, error) {
	if len(op.Types) == 0 {
		return nil, nil, invalid("at least one log type is required")
	}
	for _, t := range op.Types {
		if !t.Valid() {
			return nil, nil, invalid("unknown log type %d", int32(t))
		}
		if t == protocol.LogTypeDevice {
			return nil, nil, invalid("the DEVICE log is fetched by name")
		}
	}

	cmd := protocol.NewCommand(protocol.MessageTypeGetLog)
	cmd.Body.GetLog = &protocol.Log{Types: append([]protocol.LogType(nil), op.Types...)}
	return cmd, nil, nil
}

func (op *GetLog) Parse(cmd *protocol.Command, _ []byte) (*protocol.Log, error) {
	if cmd.Body.GetLog == nil {
		return nil, fmt.Errorf("%w: no log in response", ErrMalformedResponse)
	}
	return cmd.Body.GetLog, nil
}

func (op *GetLog) OnError(err error) (*protocol.Log, error) {
	return nil, &OperationError{Op: op.Name(), Detail: fmt.Sprint(op.Types), Err: err}
}

// GetDeviceLog fetches a named vendor-specific log. The log travels as the
// response value.
type GetDeviceLog struct {
	LogName string
}

// NewGetDeviceLog requests the vendor log called name.
func NewGetDeviceLog(name string) *GetDeviceLog {
	return &GetDeviceLog{LogName: name}
}

func (op *GetDeviceLog) Name() string { return "getdevicelog" }

func (op *GetDeviceLog) Build() (*protocol.Command, []byte, error) {
	if op.LogName == "" {
		return nil, nil, invalid("device log name is required")
	}
	cmd := protocol.NewCommand(protocol.MessageTypeGetLog)
	cmd.Body.GetLog = &protocol.Log{
		Types:  []protocol.LogType{protocol.LogTypeDevice},
		Device: &protocol.DeviceLog{Name: op.LogName},
	}
	return cmd, nil, nil
}

func (op *GetDeviceLog) Parse(_ *protocol.Command, value []byte) ([]byte, error) {
	return value, nil
}

func (op *GetDeviceLog) OnError(err error) ([]byte, error) {
	return nil, &OperationError{Op: op.Name(), Detail: fmt.Sprintf("%q", op.LogName), Err: err}
}
