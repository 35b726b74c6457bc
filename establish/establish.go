// Package establish walks the ordered technique list for a situation and runs the caller's
// connection logic for each technique until one works.
package establish

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"gotraverse/nat"
	"gotraverse/technique"

	"github.com/rs/zerolog/log"
	"go.uber.org/multierr"
)

var ErrNoTechnique = errors.New("no traversal technique available")

// Selector is satisfied by *decision.Strategy.
type Selector interface {
	TechniquesFor(situation nat.Situation) []technique.Technique
}

// Connector tries to connect using one technique. The actual socket work lives with the caller.
type Connector func(ctx context.Context, t technique.Technique) error

// AttemptError - every technique was tried and none worked, or the context ended first.
type AttemptError struct {
	Situation nat.Situation
	Tried     []string
	Err       error
}

func (e *AttemptError) Error() string {
	return fmt.Sprintf("traversal failed for %s after trying [%s]: %s", e.Situation, strings.Join(e.Tried, ", "), e.Err)
}

func (e *AttemptError) Unwrap() error {
	return e.Err
}

// Errors returns the failure of each technique tried, in attempt order.
func (e *AttemptError) Errors() []error {
	return multierr.Errors(e.Err)
}

// Connect tries the techniques sel returns for situation, in order, and returns the first one connect succeeds with.
func Connect(ctx context.Context, sel Selector, situation nat.Situation, connect Connector) (technique.Technique, error) {
	techniques := sel.TechniquesFor(situation)
	if len(techniques) == 0 {
		return nil, ErrNoTechnique
	}

	var (
		errs  error
		tried []string
	)
	for _, t := range techniques {
		if err := ctx.Err(); err != nil {
			errs = multierr.Append(errs, fmt.Errorf("context cancelled: %w", err))
			break
		}
		name := t.Metadata().Name
		tried = append(tried, name)
		err := connect(ctx, t)
		if err == nil {
			log.Debug().Msgf("Connected using %s for %s", name, situation)
			return t, nil
		}
		log.Debug().Err(err).Msgf("Technique %s failed for %s", name, situation)
		errs = multierr.Append(errs, fmt.Errorf("%s: %w", name, err))
	}
	return nil, &AttemptError{Situation: situation, Tried: tried, Err: errs}
}
