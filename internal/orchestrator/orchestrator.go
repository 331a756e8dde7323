// Package orchestrator sequences one MDFU session: open, run the requested
// operation, close — in that order, and in reverse order on the way out.
package orchestrator

import (
	"context"
	"errors"
	"fmt"

	"github.com/mchp/mdfu-host/internal/imagesource"
	"github.com/mchp/mdfu-host/internal/logging"
	"github.com/mchp/mdfu-host/internal/mdfu"
	"github.com/mchp/mdfu-host/internal/transport"
)

// Orchestrator binds an engine to a transport; it owns no resources of its
// own beyond the engine.
type Orchestrator struct {
	engine *mdfu.Engine
}

// New constructs an Orchestrator over t with the given engine configuration.
func New(t transport.Transport, cfg mdfu.Config) *Orchestrator {
	return &Orchestrator{engine: mdfu.NewEngine(t, cfg)}
}

// ClientInfo opens a session, fetches client info, and closes.
func (o *Orchestrator) ClientInfo(ctx context.Context) (mdfu.ClientInfo, error) {
	ci, err := o.engine.Open(ctx)
	if err != nil {
		return mdfu.ClientInfo{}, fmt.Errorf("client info: %w", err)
	}
	if err := o.engine.Close(); err != nil {
		logging.L().Warn("close_after_client_info_failed", "error", err)
	}
	return ci, nil
}

// Update opens a session, runs the full firmware transfer from r, and
// closes both the MDFU session and the image source. On a failure during
// transfer, the MDFU session is closed before the image source, per the
// orchestrator's resource-ordering discipline; both closes are attempted
// even if the first one fails.
func (o *Orchestrator) Update(ctx context.Context, r imagesource.Reader) error {
	if _, err := o.engine.Open(ctx); err != nil {
		_ = r.Close()
		return fmt.Errorf("update: open: %w", err)
	}

	updateErr := o.engine.RunUpdate(ctx, r)

	closeErr := o.engine.Close()
	imgErr := r.Close()

	if updateErr != nil {
		return fmt.Errorf("update: %w", updateErr)
	}
	return errors.Join(wrapClose("session", closeErr), wrapClose("image source", imgErr))
}

func wrapClose(what string, err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("close %s: %w", what, err)
}
