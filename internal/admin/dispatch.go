package admin

import (
	"context"
	"fmt"

	"github.com/chenchongli/kinetic-go/internal/operations"
	"github.com/chenchongli/kinetic-go/internal/protocol"
)

// Dispatch runs one request/response cycle for op over conn. pin is sent
// when the command authenticates with a PIN. Whatever goes wrong, including
// a panic in op or conn, the result comes from op.OnError.
func Dispatch[T any](ctx context.Context, conn Conn, pin []byte, op operations.Operation[T]) (result T, err error) {
	defer func() {
		if r := recover(); r != nil {
			result, err = op.OnError(fmt.Errorf("%s panicked: %v", op.Name(), r))
		}
	}()

	result, err = exchange(ctx, conn, pin, op)
	if err != nil {
		return op.OnError(err)
	}
	return result, nil
}

func exchange[T any](ctx context.Context, conn Conn, pin []byte, op operations.Operation[T]) (T, error) {
	var zero T

	cmd, value, err := op.Build()
	if err != nil {
		return zero, err
	}

	release, err := conn.Acquire(ctx)
	if err != nil {
		return zero, err
	}
	defer release()

	conn.UpdateHeader(cmd)
	req := &protocol.Request{Command: cmd, Value: value}
	if protocol.UsesPINAuth(cmd.Header.MessageType) {
		req.PIN = pin
		if req.PIN == nil {
			req.PIN = []byte{}
		}
	}

	resp, err := conn.Send(ctx, req)
	if err != nil {
		return zero, err
	}
	if err := protocol.CheckStatus(resp.Command); err != nil {
		return zero, err
	}
	return op.Parse(resp.Command, resp.Value)
}
