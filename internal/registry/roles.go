package registry

import (
	"context"
	"errors"

	"github.com/jmerrifield20/LandRegistry/internal/ledger"
	"github.com/jmerrifield20/LandRegistry/internal/model"
)

// Resolver answers which capability the ledger assigns to an actor.
type Resolver struct {
	client ledger.Client
}

// NewResolver creates a Resolver over client.
func NewResolver(client ledger.Client) *Resolver {
	return &Resolver{client: client}
}

// Resolve returns the actor's capability. Unregistered actors are
// CapabilityNone. On any error the returned capability is CapabilityNone and
// callers must treat the actor as unprivileged.
func (r *Resolver) Resolve(ctx context.Context, actor string) (model.Capability, error) {
	actor, err := model.NormalizeAccount(actor)
	if err != nil {
		return model.CapabilityNone, err
	}
	c, err := r.client.GetCapability(ctx, actor)
	if err != nil {
		if !errors.Is(err, model.ErrUnavailable) && !errors.Is(err, model.ErrValidation) {
			err = model.Unavailable("resolve capability", err)
		}
		return model.CapabilityNone, err
	}
	return c, nil
}
