package protocol

import "fmt"

// MessageType identifies the command carried by a Command header.
// Response types are always one less than their request type.
type MessageType int32

const (
	MessageTypeInvalid          MessageType = -1
	MessageTypeGetLogResponse   MessageType = 23
	MessageTypeGetLog           MessageType = 24
	MessageTypeSetupResponse    MessageType = 25
	MessageTypeSetup            MessageType = 26
	MessageTypeSecurityResponse MessageType = 35
	MessageTypeSecurity         MessageType = 36
	MessageTypePinOpResponse    MessageType = 39
	MessageTypePinOp            MessageType = 40
)

var messageTypeNames = map[MessageType]string{
	MessageTypeInvalid:          "INVALID_MESSAGE_TYPE",
	MessageTypeGetLogResponse:   "GETLOG_RESPONSE",
	MessageTypeGetLog:           "GETLOG",
	MessageTypeSetupResponse:    "SETUP_RESPONSE",
	MessageTypeSetup:            "SETUP",
	MessageTypeSecurityResponse: "SECURITY_RESPONSE",
	MessageTypeSecurity:         "SECURITY",
	MessageTypePinOpResponse:    "PINOP_RESPONSE",
	MessageTypePinOp:            "PINOP",
}

func (t MessageType) String() string {
	if name, ok := messageTypeNames[t]; ok {
		return name
	}
	return fmt.Sprintf("MessageType(%d)", int32(t))
}

// Response returns the response type paired with a request type.
func (t MessageType) Response() MessageType {
	return t - 1
}

// UsesPINAuth reports whether requests of this type authenticate with the
// session PIN instead of an HMAC.
func UsesPINAuth(t MessageType) bool {
	return t == MessageTypePinOp
}

// AuthType selects how a Message envelope is authenticated.
type AuthType int32

const (
	AuthTypeInvalid           AuthType = -1
	AuthTypeHMAC              AuthType = 1
	AuthTypePIN               AuthType = 2
	AuthTypeUnsolicitedStatus AuthType = 3
)

func (a AuthType) String() string {
	switch a {
	case AuthTypeHMAC:
		return "HMACAUTH"
	case AuthTypePIN:
		return "PINAUTH"
	case AuthTypeUnsolicitedStatus:
		return "UNSOLICITEDSTATUS"
	default:
		return "INVALID_AUTH_TYPE"
	}
}

// Message is the authenticated envelope written on the wire.
type Message struct {
	AuthType     AuthType  `json:"authType"`
	HMACAuth     *HMACAuth `json:"hmacAuth,omitempty"`
	PINAuth      *PINAuth  `json:"pinAuth,omitempty"`
	CommandBytes []byte    `json:"commandBytes"`
}

// HMACAuth authenticates a message with an identity and the HMAC of the
// command bytes.
type HMACAuth struct {
	Identity int64  `json:"identity"`
	HMAC     []byte `json:"hmac"`
}

// PINAuth authenticates a message with a device PIN.
type PINAuth struct {
	PIN []byte `json:"pin"`
}

// Command is the decoded content of a Message.
type Command struct {
	Header Header `json:"header"`
	Body   Body   `json:"body"`
	Status Status `json:"status"`
}

// NewCommand returns a request command of the given type.
func NewCommand(t MessageType) *Command {
	return &Command{Header: Header{MessageType: t}}
}

// Header carries per-request correlation data. The connection fills in the
// cluster version, connection ID and sequence before sending.
type Header struct {
	ClusterVersion int64       `json:"clusterVersion"`
	ConnectionID   int64       `json:"connectionID"`
	Sequence       int64       `json:"sequence"`
	AckSequence    int64       `json:"ackSequence"`
	MessageType    MessageType `json:"messageType"`
	TimeoutMs      int64       `json:"timeout,omitempty"`
}

// Body holds the command-specific section. At most one section is set.
type Body struct {
	GetLog   *Log          `json:"getLog,omitempty"`
	Setup    *Setup        `json:"setup,omitempty"`
	Security *Security     `json:"security,omitempty"`
	PinOp    *PinOperation `json:"pinOp,omitempty"`
}

// Status is attached to every response.
type Status struct {
	Code            StatusCode `json:"code"`
	StatusMessage   string     `json:"statusMessage,omitempty"`
	DetailedMessage []byte     `json:"detailedMessage,omitempty"`
}

// Setup changes the cluster version or announces a firmware download. The
// firmware image travels as the message value.
type Setup struct {
	NewClusterVersion *int64 `json:"newClusterVersion,omitempty"`
	FirmwareDownload  bool   `json:"firmwareDownload,omitempty"`
}

// Security replaces the ACL table and/or changes the lock and erase PINs.
// A nil new PIN leaves that PIN alone; an empty one clears it.
type Security struct {
	ACL         []ACL  `json:"acl,omitempty"`
	OldLockPIN  []byte `json:"oldLockPIN,omitempty"`
	NewLockPIN  []byte `json:"newLockPIN"`
	OldErasePIN []byte `json:"oldErasePIN,omitempty"`
	NewErasePIN []byte `json:"newErasePIN"`
}

// PinOpType selects the PIN-protected device operation.
type PinOpType int32

const (
	PinOpInvalid     PinOpType = -1
	PinOpUnlock      PinOpType = 1
	PinOpLock        PinOpType = 2
	PinOpErase       PinOpType = 3
	PinOpSecureErase PinOpType = 4
)

func (p PinOpType) String() string {
	switch p {
	case PinOpUnlock:
		return "UNLOCK_PINOP"
	case PinOpLock:
		return "LOCK_PINOP"
	case PinOpErase:
		return "ERASE_PINOP"
	case PinOpSecureErase:
		return "SECURE_ERASE_PINOP"
	default:
		return "INVALID_PINOP"
	}
}

// PinOperation is the body of a PINOP request.
type PinOperation struct {
	Type PinOpType `json:"pinOpType"`
}

// Request is what the dispatcher hands to a connection: a command whose
// header has been stamped, the optional value, and the PIN when the command
// authenticates with one.
type Request struct {
	Command *Command
	Value   []byte
	PIN     []byte
}

// Response is the single reply correlated with a Request.
type Response struct {
	Message *Message
	Command *Command
	Value   []byte
}
