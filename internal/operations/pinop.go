package operations

import (
	"github.com/chenchongli/kinetic-go/internal/protocol"
)

// PinOp is a PIN-authenticated device operation. The PIN itself is not part
// of the command; the dispatcher puts the session PIN in the envelope.
type PinOp struct {
	statusOnly
	Type protocol.PinOpType
}

func newPinOp(name string, t protocol.PinOpType) *PinOp {
	return &PinOp{statusOnly: statusOnly{name: name}, Type: t}
}

// UnlockDevice unlocks a device with the lock PIN.
func UnlockDevice() *PinOp { return newPinOp("unlock", protocol.PinOpUnlock) }

// LockDevice locks a device with the lock PIN.
func LockDevice() *PinOp { return newPinOp("lock", protocol.PinOpLock) }

// EraseDevice erases all user data with the erase PIN.
func EraseDevice() *PinOp { return newPinOp("erase", protocol.PinOpErase) }

// SecureEraseDevice cryptographically erases all user data with the erase PIN.
func SecureEraseDevice() *PinOp { return newPinOp("instantsecureerase", protocol.PinOpSecureErase) }

func (op *PinOp) Build() (*protocol.Command, []byte, error) {
	cmd := protocol.NewCommand(protocol.MessageTypePinOp)
	cmd.Body.PinOp = &protocol.PinOperation{Type: op.Type}
	return cmd, nil, nil
}
