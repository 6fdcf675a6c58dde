package protocol

import (
	"crypto/hmac"
	"crypto/sha1"
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"io"
)

const (
	frameMagic     byte = 'F'
	frameHeaderLen      = 9

	// MaxMessageSize bounds the encoded envelope of a single frame.
	MaxMessageSize = 1 << 20
	// MaxValueSize bounds the raw value of a single frame. Firmware images
	// are the largest values sent by the admin client.
	MaxValueSize = 64 << 20
)

// ErrInvalidFrame is returned when a frame header is malformed or exceeds
// the size limits.
var ErrInvalidFrame = errors.New("invalid frame")

// WriteFrame writes msg and value as one frame: magic byte, message length,
// value length, message, value.
func WriteFrame(w io.Writer, msg *Message, value []byte) error {
	encoded, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("encode message: %w", err)
	}
	if len(encoded) > MaxMessageSize {
		return fmt.Errorf("%w: message of %d bytes exceeds %d", ErrInvalidFrame, len(encoded), MaxMessageSize)
	}
	if len(value) > MaxValueSize {
		return fmt.Errorf("%w: value of %d bytes exceeds %d", ErrInvalidFrame, len(value), MaxValueSize)
	}

	buf := make([]byte, 0, frameHeaderLen+len(encoded)+len(value))
	buf = append(buf, frameMagic)
	buf = binary.BigEndian.AppendUint32(buf, uint32(len(encoded)))
	buf = binary.BigEndian.AppendUint32(buf, uint32(len(value)))
	buf = append(buf, encoded...)
	buf = append(buf, value...)

	if _, err := w.Write(buf); err != nil {
		return fmt.Errorf("write frame: %w", err)
	}
	return nil
}

// ReadFrame reads one frame written by WriteFrame.
func ReadFrame(r io.Reader) (*Message, []byte, error) {
	var hdr [frameHeaderLen]byte
	if _, err := io.ReadFull(r, hdr[:]); err != nil {
		return nil, nil, fmt.Errorf("read frame header: %w", err)
	}
	if hdr[0] != frameMagic {
		return nil, nil, fmt.Errorf("%w: bad magic 0x%02x", ErrInvalidFrame, hdr[0])
	}
	msgLen := binary.BigEndian.Uint32(hdr[1:5])
	valueLen := binary.BigEndian.Uint32(hdr[5:9])
	if msgLen > MaxMessageSize {
		return nil, nil, fmt.Errorf("%w: message length %d exceeds %d", ErrInvalidFrame, msgLen, MaxMessageSize)
	}
	if valueLen > MaxValueSize {
		return nil, nil, fmt.Errorf("%w: value length %d exceeds %d", ErrInvalidFrame, valueLen, MaxValueSize)
	}

	body := make([]byte, int(msgLen)+int(valueLen))
	if _, err := io.ReadFull(r, body); err != nil {
		return nil, nil, fmt.Errorf("read frame body: %w", err)
	}

	var msg Message
	if err := json.Unmarshal(body[:msgLen], &msg); err != nil {
		return nil, nil, fmt.Errorf("decode message: %w", err)
	}
	var value []byte
	if valueLen > 0 {
		value = body[msgLen:]
	}
	return &msg, value, nil
}

// EncodeCommand returns the bytes carried in Message.CommandBytes.
func EncodeCommand(cmd *Command) ([]byte, error) {
	b, err := json.Marshal(cmd)
	if err != nil {
		return nil, fmt.Errorf("encode command: %w", err)
	}
	return b, nil
}

// DecodeCommand parses Message.CommandBytes.
func DecodeCommand(b []byte) (*Command, error) {
	if len(b) == 0 {
		return nil, fmt.Errorf("decode command: %w", ErrMissingResponse)
	}
	var cmd Command
	if err := json.Unmarshal(b, &cmd); err != nil {
		return nil, fmt.Errorf("decode command: %w", err)
	}
	return &cmd, nil
}

// ComputeHMAC signs command bytes: HMAC-SHA1 over the 4-byte big-endian
// length followed by the bytes.
func ComputeHMAC(key, commandBytes []byte) []byte {
	mac := hmac.New(sha1.New, key)
	var l [4]byte
	binary.BigEndian.PutUint32(l[:], uint32(len(commandBytes)))
	mac.Write(l[:])
	mac.Write(commandBytes)
	return mac.Sum(nil)
}

// VerifyHMAC checks sum against ComputeHMAC(key, commandBytes) in constant time.
func VerifyHMAC(key, commandBytes, sum []byte) bool {
	return hmac.Equal(ComputeHMAC(key, commandBytes), sum)
}

// SignedMessage wraps a command in an HMAC-authenticated envelope.
func SignedMessage(cmd *Command, identity int64, key []byte) (*Message, error) {
	b, err := EncodeCommand(cmd)
	if err != nil {
		return nil, err
	}
	return &Message{
		AuthType:     AuthTypeHMAC,
		HMACAuth:     &HMACAuth{Identity: identity, HMAC: ComputeHMAC(key, b)},
		CommandBytes: b,
	}, nil
}

// PINMessage wraps a command in a PIN-authenticated envelope.
func PINMessage(cmd *Command, pin []byte) (*Message, error) {
	b, err := EncodeCommand(cmd)
	if err != nil {
		return nil, err
	}
	return &Message{
		AuthType:     AuthTypePIN,
		PINAuth:      &PINAuth{PIN: pin},
		CommandBytes: b,
	}, nil
}
