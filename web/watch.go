package web

import (
	"bufio"
	"context"
	"fmt"
	"time"

	"github.com/gofiber/fiber/v2"
	authstate "github.com/goliatone/go-auth-state"
	"github.com/valyala/fasthttp"
)

const (
	EventSignedOut = "signed_out"

	DefaultHeartbeatInterval = 15 * time.Second
)

func WithControllerRevalidationInterval(interval time.Duration) ControllerOption {
	return func(sc *SessionController) {
		if interval > 0 {
			sc.interval = interval
		}
	}
}

func WithControllerHeartbeat(interval time.Duration) ControllerOption {
	return func(sc *SessionController) {
		if interval > 0 {
			sc.heartbeat = interval
		}
	}
}

// Watch streams server sent events for as long as the request principal
// stays valid. The revalidation loop runs for the lifetime of the
// connection and a signed_out event ends the stream. Mount it on the
// wrapped fiber app behind FiberPrincipalMiddleware.
func (sc *SessionController) Watch(c *fiber.Ctx) error {
	principal := PrincipalFromFiber(c)
	if !principal.IsAuthenticated() {
		return c.Status(fiber.StatusUnauthorized).JSON(revalidateResponse{Valid: false})
	}

	subject, _ := sc.claimTypes.SubjectIDOf(principal)
	state := authstate.AuthenticationState{Principal: principal}

	c.Set(fiber.HeaderContentType, "text/event-stream")
	c.Set(fiber.HeaderCacheControl, "no-cache")
	c.Set(fiber.HeaderConnection, "keep-alive")

	c.Context().SetBodyStreamWriter(fasthttp.StreamWriter(func(w *bufio.Writer) {
		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()

		opts := append(sc.serverOptions(), authstate.WithRevalidationInterval(sc.interval))
		provider := authstate.NewServerStateProvider(sc.scopes, nil, opts...)
		defer provider.Close()

		provider.SetAuthenticationState(authstate.CompletedState(state))

		done := make(chan error, 1)
		go func() {
			done <- provider.RunRevalidation(ctx)
		}()

		heartbeat := time.NewTicker(sc.heartbeat)
		defer heartbeat.Stop()

		if err := writeEvent(w, "ready", subject); err != nil {
			return
		}

		for {
			select {
			case err := <-done:
				if err == nil {
					sc.logger.Info("watch signed out", "subject", subject)
					_ = writeEvent(w, EventSignedOut, subject)
				}
				return
			case <-heartbeat.C:
				if _, err := fmt.Fprint(w, ": ping\n\n"); err != nil {
					return
				}
				if err := w.Flush(); err != nil {
					sc.logger.Debug("watch client went away", "subject", subject)
					return
				}
			}
		}
	}))

	return nil
}

func writeEvent(w *bufio.Writer, event, data string) error {
	if _, err := fmt.Fprintf(w, "event: %s\ndata: %s\n\n", event, data); err != nil {
		return err
	}
	return w.Flush()
}
