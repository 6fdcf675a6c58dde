package operations

import (
	"github.com/chenchongli/kinetic-go/internal/protocol"
)

// SetClusterVersion changes the device's cluster version.
type SetClusterVersion struct {
	statusOnly
	Version int64
}

// NewSetClusterVersion moves the device to version.
func NewSetClusterVersion(version int64) *SetClusterVersion {
	return &SetClusterVersion{statusOnly: statusOnly{name: "setclusterversion"}, Version: version}
}

func (op *SetClusterVersion) Build() (*protocol.Command, []byte, error) {
	v := op.Version
	cmd := protocol.NewCommand(protocol.MessageTypeSetup)
	cmd.Body.Setup = &protocol.Setup{NewClusterVersion: &v}
	return cmd, nil, nil
}

// UpdateFirmware sends a firmware image as the request value.
type UpdateFirmware struct {
	statusOnly
	Image []byte
}

// NewUpdateFirmware sends image as a firmware download.
func NewUpdateFirmware(image []byte) *UpdateFirmware {
	return &UpdateFirmware{statusOnly: statusOnly{name: "updatefirmware"}, Image: image}
}

func (op *UpdateFirmware) Build() (*protocol.Command, []byte, error) {
	if len(op.Image) == 0 {
		return nil, nil, invalid("firmware image is empty")
	}
	cmd := protocol.NewCommand(protocol.MessageTypeSetup)
	cmd.Body.Setup = &protocol.Setup{FirmwareDownload: true}
	return cmd, op.Image, nil
}
