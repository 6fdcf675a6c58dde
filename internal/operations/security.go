package operations

import (
	"fmt"

	"github.com/chenchongli/kinetic-go/internal/protocol"
)

// SetPin changes the lock or the erase PIN. An empty new PIN clears it.
type SetPin struct {
	statusOnly
	erase  bool
	OldPIN []byte
	NewPIN []byte
}

// NewSetErasePin changes the erase PIN from oldPIN to newPIN.
func NewSetErasePin(oldPIN, newPIN []byte) *SetPin {
	return &SetPin{statusOnly: statusOnly{name: "seterasepin"}, erase: true, OldPIN: oldPIN, NewPIN: newPIN}
}

// NewSetLockPin changes the lock PIN from oldPIN to newPIN.
func NewSetLockPin(oldPIN, newPIN []byte) *SetPin {
	return &SetPin{statusOnly: statusOnly{name: "setlockpin"}, OldPIN: oldPIN, NewPIN: newPIN}
}

func (op *SetPin) Build() (*protocol.Command, []byte, error) {
	newPIN := op.NewPIN
	if newPIN == nil {
		newPIN = []byte{}
	}
	sec := &protocol.Security{}
	if op.erase {
		sec.OldErasePIN, sec.NewErasePIN = op.OldPIN, newPIN
	} else {
		sec.OldLockPIN, sec.NewLockPIN = op.OldPIN, newPIN
	}
	cmd := protocol.NewCommand(protocol.MessageTypeSecurity)
	cmd.Body.Security = sec
	return cmd, nil, nil
}

// SetACL replaces the device's ACL table.
type SetACL struct {
	statusOnly
	ACLs []protocol.ACL
}

// NewSetACL replaces the ACL table with acls.
func NewSetACL(acls []protocol.ACL) *SetACL {
	return &SetACL{statusOnly: statusOnly{name: "setacl"}, ACLs: acls}
}

func (op *SetACL) Build() (*protocol.Command, []byte, error) {
	return buildACL(op.ACLs)
}

// Security is the legacy ACL update. It is kept apart from SetACL so that
// the two can diverge without touching callers of either.
type Security struct {
	statusOnly
	ACLs []protocol.ACL
}

// NewSecurity replaces the ACL table through the legacy security command.
func NewSecurity(acls []protocol.ACL) *Security {
	return &Security{statusOnly: statusOnly{name: "security"}, ACLs: acls}
}

func (op *Security) Build() (*protocol.Command, []byte, error) {
	return buildACL(op.ACLs)
}

func buildACL(acls []protocol.ACL) (*protocol.Command, []byte, error) {
	if err := protocol.ValidateACLs(acls); err != nil {
		return nil, nil, fmt.Errorf("%w: %w", ErrInvalidArgument, err)
	}
	cmd := protocol.NewCommand(protocol.MessageTypeSecurity)
	cmd.Body.Security = &protocol.Security{ACL: acls}
	return cmd, nil, nil
}
