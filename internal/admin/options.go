package admin

// CallOption adjusts a single AdminClient call.
type CallOption func(*callOptions)

type callOptions struct {
	pin    []byte
	pinSet bool
}

// WithPIN uses pin for this call instead of the session PIN. An empty pin
// is still used as given.
func WithPIN(pin []byte) CallOption {
	return func(o *callOptions) {
		o.pin = pin
		o.pinSet = true
	}
}

func applyOptions(opts []CallOption) callOptions {
	var o callOptions
	for _, opt := range opts {
		opt(&o)
	}
	return o
}
