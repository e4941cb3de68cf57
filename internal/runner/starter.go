package runner

import (
	"context"

	"github.com/jrcrittenden/conduit/internal/logging"
)

// AdapterStarter binds one Adapter (and therefore one agent kind) to the
// session.Starter interface, so a session.Session can call Start without
// knowing which adapter it is talking to.
type AdapterStarter struct {
	Adapter Adapter
	Logger  *logging.Logger
}

// Start spawns the bound adapter's agent subprocess for cfg.
func (s AdapterStarter) Start(ctx context.Context, cfg Config) (*Handle, error) {
	return Start(ctx, s.Adapter, cfg, s.Logger)
}
