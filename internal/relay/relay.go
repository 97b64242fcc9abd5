// Package relay republishes answer tokens from the engine stream into the
// asking user's connection group.
package relay

import (
	"context"

	"github.com/wisegate/wisegate/internal/domain"
	"github.com/wisegate/wisegate/internal/reference"
	"github.com/wisegate/wisegate/pkg/log"
)

// Broadcaster fans an event out to every live connection of one user and
// reports how many received it.
type Broadcaster interface {
	BroadcastToUser(userID string, event interface{}) int
}

// Relay decodes correlation keys and fans tokens out per user. Delivery is
// scoped strictly by the decoded user id, so a token for one user can never
// reach another user's connections.
type Relay struct {
	hub Broadcaster
}

func New(h Broadcaster) *Relay {
	return &Relay{hub: h}
}

// HandleAnswerToken forwards one token fragment to the owning user's group.
// This path is best-effort: decode failures are logged and dropped, and an
// empty group is not an error.
func (r *Relay) HandleAnswerToken(ctx context.Context, ref, token string) {
	l := log.Ctx(ctx)

	userID, requestToken, err := reference.Decode(ref)
	if err != nil {
		l.Warn().Err(err).Str(log.FieldReference, ref).Msg("relay: dropping token with malformed reference")
		return
	}

	delivered := r.hub.BroadcastToUser(userID, domain.NewAnswerTokenEvent(requestToken, token))
	if delivered == 0 {
		l.Debug().
			Str(log.FieldUserID, userID).
			Str(log.FieldRequestToken, requestToken).
			Msg("relay: no live connections for token")
	}
}
