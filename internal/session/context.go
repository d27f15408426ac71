package session

import "context"

// contextFromChannels returns a context that is cancelled as soon as
// either done or disconnect closes, for collaborator calls (like
// FrameSource.Next) that accept a context for suspension (§5).
func contextFromChannels(done, disconnect <-chan struct{}) (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		select {
		case <-done:
		case <-disconnect:
		case <-ctx.Done():
		}
		cancel()
	}()
	return ctx, cancel
}
