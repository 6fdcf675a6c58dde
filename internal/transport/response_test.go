package transport

import (
	"bufio"
	"context"
	"io"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/chenchongli/kinetic-go/internal/protocol"
)

// scriptedDevice accepts one connection, sends a successful handshake and
// answers the first request with the envelope built by seal.
func scriptedDevice(t *testing.T, seal func(resp *protocol.Command) *protocol.Message) int {
	t.Helper()
	l, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	t.Cleanup(func() { _ = l.Close() })

	go func() {
		conn, err := l.Accept()
		if err != nil {
			return
		}
		defer conn.Close()

		hello, _ := protocol.EncodeCommand(&protocol.Command{
			Header: protocol.Header{ConnectionID: 42},
			Status: protocol.Status{Code: protocol.StatusSuccess},
		})
		if err := protocol.WriteFrame(conn, &protocol.Message{AuthType: protocol.AuthTypeUnsolicitedStatus, CommandBytes: hello}, nil); err != nil {
			return
		}

		reader := bufio.NewReader(conn)
		msg, _, err := protocol.ReadFrame(reader)
		if err != nil {
			return
		}
		req, err := protocol.DecodeCommand(msg.CommandBytes)
		if err != nil {
			return
		}
		resp := &protocol.Command{
			Header: protocol.Header{
				ConnectionID: 42,
				AckSequence:  req.Header.Sequence,
				MessageType:  req.Header.MessageType.Response(),
			},
			Status: protocol.Status{Code: protocol.StatusSuccess},
		}
		if err := protocol.WriteFrame(conn, seal(resp), nil); err != nil {
			return
		}
		_, _ = io.Copy(io.Discard, reader)
	}()

	return l.Addr().(*net.TCPAddr).Port
}

func encode(t *testing.T, cmd *protocol.Command) []byte {
	t.Helper()
	b, err := protocol.EncodeCommand(cmd)
	require.NoError(t, err)
	return b
}

func sendGetLog(t *testing.T, port int) (*Client, *protocol.Response, error) {
	t.Helper()
	c, err := NewClient(Config{Host: "127.0.0.1", Port: port, SocketTimeout: 2 * time.Second})
	require.NoError(t, err)
	t.Cleanup(func() { _ = c.Close() })

	ctx := context.Background()
	require.NoError(t, c.Connect(ctx))
	cmd := protocol.NewCommand(protocol.MessageTypeGetLog)
	cmd.Body.GetLog = &protocol.Log{Types: []protocol.LogType{protocol.LogTypeUtilizations}}
	c.UpdateHeader(cmd)
	resp, err := c.Send(ctx, &protocol.Request{Command: cmd})
	return c, resp, err
}

func TestSendRejectsUnverifiedResponses(t *testing.T) {
	tests := []struct {
		name string
		seal func(t *testing.T, resp *protocol.Command) *protocol.Message
	}{
		{"hmac type without signature", func(t *testing.T, resp *protocol.Command) *protocol.Message {
			return &protocol.Message{AuthType: protocol.AuthTypeHMAC, CommandBytes: encode(t, resp)}
		}},
		{"signed with another key", func(t *testing.T, resp *protocol.Command) *protocol.Message {
			msg, err := protocol.SignedMessage(resp, 1, []byte("not-the-secret"))
			require.NoError(t, err)
			return msg
		}},
		{"unsigned success", func(t *testing.T, resp *protocol.Command) *protocol.Message {
			return &protocol.Message{AuthType: protocol.AuthTypeUnsolicitedStatus, CommandBytes: encode(t, resp)}
		}},
		{"pin response to signed request", func(t *testing.T, resp *protocol.Command) *protocol.Message {
			return &protocol.Message{AuthType: protocol.AuthTypePIN, CommandBytes: encode(t, resp)}
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			port := scriptedDevice(t, func(resp *protocol.Command) *protocol.Message { return tt.seal(t, resp) })

			c, resp, err := sendGetLog(t, port)

			assert.ErrorIs(t, err, ErrHMACMismatch)
			assert.Nil(t, resp)
			assert.False(t, c.IsConnected(), "connection must be dropped")
		})
	}
}

func TestSendAcceptsUnsignedFailureStatus(t *testing.T) {
	port := scriptedDevice(t, func(resp *protocol.Command) *protocol.Message {
		resp.Status = protocol.Status{Code: protocol.StatusHMACFailure, StatusMessage: "unknown identity"}
		return &protocol.Message{AuthType: protocol.AuthTypeUnsolicitedStatus, CommandBytes: encode(t, resp)}
	})

	c, resp, err := sendGetLog(t, port)

	require.NoError(t, err)
	assert.Equal(t, protocol.StatusHMACFailure, resp.Command.Status.Code)
	assert.True(t, c.IsConnected())
}

func TestSendAcceptsSignedResponse(t *testing.T) {
	port := scriptedDevice(t, func(resp *protocol.Command) *protocol.Message {
		msg, err := protocol.SignedMessage(resp, 1, []byte(DefaultSecret))
		require.NoError(t, err)
		return msg
	})

	_, resp, err := sendGetLog(t, port)

	require.NoError(t, err)
	assert.NoError(t, protocol.CheckStatus(resp.Command))
}
