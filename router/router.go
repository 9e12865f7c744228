package router

import (
	"context"
	"time"

	"github.com/rs/zerolog"
	"github.com/viant/amgproxy/backend"
	"github.com/viant/amgproxy/dashboard"
	"github.com/viant/amgproxy/downstream"
	"github.com/viant/amgproxy/fault"
	"github.com/viant/amgproxy/internal/collection"
	"golang.org/x/sync/singleflight"
)

// DefaultDashboard is the uid of the demo SRE overview dashboard.
const DefaultDashboard = "afbppudwbhl34b"

const datasourcesKey = "datasources"

// Router routes inbound tool calls across backends.
type Router struct {
	config     Config
	supervisor *backend.Supervisor
	loki       *downstream.Loki
	prometheus *downstream.Prometheus
	grafana    *downstream.Grafana
	templates  *dashboard.Store
	logger     zerolog.Logger
	now        func() time.Time
	cache      *collection.TTLCache[string, *Outcome]
	group      singleflight.Group
}

// New creates a router over supervisor.
func New(config Config, supervisor *backend.Supervisor, options ...Option) *Router {
	config.init()
	ret := &Router{
		config:     config,
		supervisor: supervisor,
		logger:     zerolog.Nop(),
		now:        time.Now,
	}
	for _, option := range options {
		option(ret)
	}
	ret.cache = collection.NewTTLCache[string, *Outcome](config.CacheTTL, ret.now)
	return ret
}

// bounded returns the chain context: it ends ChainMargin before the caller
// gives up.
func (r *Router) bounded(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, r.config.CallerTimeout-r.config.ChainMargin)
}

// clip shortens timeout to what is left of the chain budget.
func clip(ctx context.Context, timeout time.Duration) time.Duration {
	if deadline, ok := ctx.Deadline(); ok {
		return min(timeout, time.Until(deadline))
	}
	return timeout
}

// session calls tool on the supervised amg-mcp session. Transport faults
// invalidate the session that produced them; a remote error is returned as
// fault.RemoteError with the response payload.
func (r *Router) session(ctx context.Context, tool string, args backend.Arguments, timeout time.Duration) (map[string]any, error) {
	if clip(ctx, timeout) <= 0 {
		return nil, fault.New(fault.Timeout, tool, "no time left in the caller budget")
	}
	session, err := r.supervisor.GetOrCreate(ctx)
	if err != nil {
		return nil, err
	}
	timeout = clip(ctx, timeout)
	if timeout <= 0 {
		return nil, fault.New(fault.Timeout, tool, "no time left in the caller budget after amg-mcp start")
	}
	response, err := session.Call(ctx, tool, args, timeout)
	if err != nil {
		if fault.SessionFatal(err) {
			r.supervisor.InvalidateSession(session, tool+": "+err.Error())
		}
		return nil, err
	}
	if response.IsError() {
		return map[string]any{"backend": response.Error}, &fault.Error{Kind: fault.RemoteError, Op: tool, Message: response.Error.Message}
	}
	var result any
	if err = response.Decode(&result); err != nil {
		return nil, fault.Wrap(fault.Framing, tool, err)
	}
	return map[string]any{"result": result}, nil
}

// sessionTier runs the session as the last tier of c and converts its result
// into an outcome; done is false when the chain should advance.
func (r *Router) sessionTier(ctx context.Context, c *chain, tool string, args backend.Arguments, timeout time.Duration) (*Outcome, bool) {
	payload, err := r.session(ctx, tool, args, timeout)
	if err == nil {
		return c.success(SourceSession, payload), true
	}
	if fault.KindOf(err) == fault.RemoteError {
		return c.failure(SourceSession, err, payload), true
	}
	r.logger.Warn().Err(err).Str("tool", tool).Msg("session tier failed")
	c.fail(SourceSession, err)
	return nil, false
}
