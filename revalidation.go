package authstate

import (
	"context"
	"time"
)

// RunRevalidation checks the current state every RevalidationInterval.
// When a signed in principal is no longer valid the anonymous state is
// published and RunRevalidation returns nil. It returns ctx.Err() once
// ctx is done.
func (p *ServerStateProvider) RunRevalidation(ctx context.Context) error {
	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			valid, err := p.revalidateCurrent(ctx)
			if err != nil {
				return err
			}
			if valid {
				continue
			}

			p.logger.Info("revalidation failed, signing out")
			p.SetAuthenticationState(CompletedState(AnonymousState()))
			return nil
		}
	}
}

// revalidateCurrent reports true when there is nothing to revalidate
func (p *ServerStateProvider) revalidateCurrent(ctx context.Context) (bool, error) {
	task, ok := p.mailbox.Peek()
	if !ok {
		return true, nil
	}

	state, err := task.Await(ctx)
	if err != nil {
		if ctx.Err() != nil {
			return false, ctx.Err()
		}
		p.logger.Warn("revalidation could not read authentication state", "error", err)
		return true, nil
	}

	if !state.IsAuthenticated() {
		return true, nil
	}

	return p.Revalidate(ctx, state), nil
}
