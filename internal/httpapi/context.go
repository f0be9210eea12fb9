package httpapi

import "context"

// serverBaseCtx ties handler lifetimes to process shutdown. Long-lived
// SSE relays must stop when the daemon stops, not only when the client
// hangs up, so dispatch runs under the join of this and the request
// context.
var serverBaseCtx = context.Background()

// SetBaseContext installs the process-level context. Passing nil resets
// to Background.
func SetBaseContext(ctx context.Context) {
	if ctx == nil {
		serverBaseCtx = context.Background()
		return
	}
	serverBaseCtx = ctx
}

// joinContexts derives a context cancelled as soon as either parent is
// done. Callers must invoke the returned cancel to release the watcher
// goroutine.
func joinContexts(a, b context.Context) (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		select {
		case <-a.Done():
		case <-b.Done():
		}
		cancel()
	}()
	return ctx, cancel
}
