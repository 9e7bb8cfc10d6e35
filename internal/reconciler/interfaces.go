package reconciler

import (
	"context"
	"time"

	"ipward/internal/sources/lapi"
	"ipward/internal/sources/siem"
)

// LAPISource is the subset of the LAPI client the reconciler depends on.
// Satisfied by *lapi.Client.
type LAPISource interface {
	GetDecisions(ctx context.Context, startup bool) (lapi.Decisions, error)
	Heartbeat(ctx context.Context)
}

// SIEMSource is the subset of the SIEM client the reconciler depends on.
// Satisfied by *siem.Client. ToActions is siem's pure mapping function,
// not a client method, so the reconciler calls it directly rather than
// through this interface.
type SIEMSource interface {
	Authenticate(ctx context.Context) error
	GetAlerts(ctx context.Context, since *time.Time, limit int) ([]siem.Alert, error)
}

// ClusterSink is the subset of the cluster IPSet sink the reconciler
// depends on. Satisfied by *clusterset.Sink.
type ClusterSink interface {
	TestConnection(ctx context.Context) error
	BulkUpdate(ctx context.Context, name string, adds, removes []string) (failed int, err error)
}

// LocalSink is the subset of the local packet-filter sink the reconciler
// depends on. Satisfied by *localfilter.Sink.
type LocalSink interface {
	Add(ctx context.Context, ip string) error
	Remove(ctx context.Context, ip string) error
	List(ctx context.Context) ([]string, error)
}
