package admin

import "context"

// Call is a guarded unit of work.
type Call func(ctx context.Context) error

// Guard wraps a Call with a check or a temporary state change.
type Guard func(next Call) Call

// chain wraps call so that guards[0] runs outermost.
func chain(call Call, guards ...Guard) Call {
	for i := len(guards) - 1; i >= 0; i-- {
		call = guards[i](call)
	}
	return call
}

// requirePIN installs the per-call PIN for the duration of next, or fails
// when there is neither an override nor a session PIN. The session PIN is
// restored on every exit path, panics included.
func (c *AdminClient) requirePIN(op string, opts callOptions) Guard {
	return func(next Call) Call {
		return func(ctx context.Context) error {
			if opts.pinSet {
				prev := c.pin
				c.pin = opts.pin
				defer func() { c.pin = prev }()
			} else if len(c.pin) == 0 {
				return &PreconditionError{Op: op, Err: ErrPINRequired}
			}
			return next(ctx)
		}
	}
}

// requireSSL rejects the call unless the connection uses TLS.
func (c *AdminClient) requireSSL(op string) Guard {
	return func(next Call) Call {
		return func(ctx context.Context) error {
			if !c.conn.UseSSL() {
				return &PreconditionError{Op: op, Err: ErrSSLRequired}
			}
			return next(ctx)
		}
	}
}

// warnDeprecated signals a deprecated method once the outer guards have
// admitted the call.
func (c *AdminClient) warnDeprecated(method, replacement string) Guard {
	return func(next Call) Call {
		return func(ctx context.Context) error {
			c.deprecated(method, replacement)
			return next(ctx)
		}
	}
}
