// Package authorize implements the authorization gate placed in front of
// every exported D-Bus method: it maps method names to polkit action
// identifiers and consults an Oracle before letting the method body run.
package authorize

import (
	"context"
	"errors"

	"github.com/rs/zerolog"

	"github.com/droidian/droidian-encryption-service/internal/polkit"
)

// ErrNotAuthorized is returned when the oracle denies the request.
var ErrNotAuthorized = errors.New("not authorized")

// actions maps exported method names to the polkit action they require.
// A method absent from this table is always authorized (e.g.
// RefreshStatus).
var actions = map[string]string{
	"Start": "org.droidian.EncryptionService.EncryptionStart",
}

// Oracle abstracts the authorization backend so it can be swapped for a
// fake in tests; internal/polkit.Authority implements it against the
// real system PolicyKit1 service.
type Oracle interface {
	CheckAuthorization(ctx context.Context, senderBusName, actionID string, details map[string]string, flags polkit.CheckFlags) (bool, error)
}

// Timestamper records the moment of the latest call, authorized or not,
// for the idle-exit supervisor; internal/svcbus.Bus implements it.
type Timestamper interface {
	RegisterTimestamp()
}

// Gate decides whether a method invocation from a given bus name may
// proceed.
type Gate struct {
	oracle Oracle
	clock  Timestamper
	log    zerolog.Logger
}

// New builds a Gate backed by oracle, recording call timestamps on
// clock.
func New(oracle Oracle, clock Timestamper, log zerolog.Logger) *Gate {
	return &Gate{oracle: oracle, clock: clock, log: log}
}

// Authorize records the call timestamp, resolves the action required by
// method, and — if one is required — queries the oracle with user
// interaction permitted. It never executes the method body; the caller
// dispatches only when (true, nil) is returned.
func (g *Gate) Authorize(ctx context.Context, senderBusName, method string) (bool, error) {
	g.clock.RegisterTimestamp()

	action, required := actions[method]
	if !required {
		return true, nil
	}

	ok, err := g.oracle.CheckAuthorization(ctx, senderBusName, action, nil, polkit.CheckAllowInteraction)
	if err != nil {
		g.log.Error().Err(err).Str("method", method).Str("sender", senderBusName).Msg("authorization check failed")
		return false, err
	}
	if !ok {
		g.log.Warn().Str("method", method).Str("sender", senderBusName).Msg("authorization denied")
		return false, ErrNotAuthorized
	}
	return true, nil
}
