package admin

import (
	"context"
	"time"

	"github.com/chenchongli/kinetic-go/internal/audit"
	"github.com/chenchongli/kinetic-go/internal/protocol"
	"github.com/chenchongli/kinetic-go/internal/transport"
)

// Conn is the connection surface the dispatcher needs.
type Conn interface {
	// Acquire opens a scoped session; release must be called exactly once.
	Acquire(ctx context.Context) (release func(), err error)
	UpdateHeader(cmd *protocol.Command)
	Send(ctx context.Context, req *protocol.Request) (*protocol.Response, error)
	UseSSL() bool
}

// clusterVersionSetter is implemented by connections that stamp a cluster
// version on outgoing headers.
type clusterVersionSetter interface {
	SetClusterVersion(v int64)
}

// AuditLogger interface for writing audit records.
type AuditLogger interface {
	LogAction(ctx context.Context, action, device, outcome, code string, latency time.Duration)
}

// DeprecationFunc receives the name of a deprecated method and what to use
// instead.
type DeprecationFunc func(method, replacement string)

var (
	_ Conn                 = (*transport.Client)(nil)
	_ clusterVersionSetter = (*transport.Client)(nil)
	_ AuditLogger          = (*audit.Logger)(nil)
)
