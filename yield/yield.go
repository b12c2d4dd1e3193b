// package yield holds the external yield/points integrations.  They are
// opaque to us: we poke them at boot and at round close, and we log their
// failures rather than let a flaky integration wedge a round closed.
package yield

import (
	"context"
	"log"
)

// Hook is one external integration.
type Hook interface {
	Name() string
	OnInit(ctx context.Context) error
	OnRoundClose(ctx context.Context, seqNo int64) error
}

// Hooks runs a set of integrations, absorbing their failures.
type Hooks []Hook

func (hs Hooks) RunInit(ctx context.Context) {
	for _, h := range hs {
		if err := h.OnInit(ctx); err != nil {
			log.Printf("warning: yield hook %q init failed: %v", h.Name(), err)
		}
	}
}

// RunRoundClose pulls whatever yield is claimable before the reserve sweep.
// Failures are logged and skipped; round closure must not block on an
// integration.
func (hs Hooks) RunRoundClose(ctx context.Context, seqNo int64) {
	for _, h := range hs {
		if err := h.OnRoundClose(ctx, seqNo); err != nil {
			log.Printf("warning: yield hook %q failed at close of round %d: %v", h.Name(), seqNo, err)
		}
	}
}
