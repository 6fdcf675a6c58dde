// Package protocol defines the Kinetic-style device messages used by the admin
// client and the device simulator.
//
// A request travels as a framed Message envelope (authentication plus the
// encoded Command) followed by an optional raw value. Every response carries a
// Status; CheckStatus turns a non-success status into a *StatusError whose
// class is one of the normalized sentinels (ErrNotAuthorized, ErrDeviceLocked,
// ErrBusy, ErrUnavailable, ErrInvalidRequest, ErrVersion, ErrInternal).
package protocol
