package changefeed

import (
	"context"

	"billtracker/internal/remote"
)

// Watch calls reload for every signal on table until ctx is done or the
// subscription is cancelled. The returned stop function unsubscribes and
// waits for the loop to exit.
func Watch(ctx context.Context, feed remote.ChangeFeed, table string, reload func(context.Context)) (stop func()) {
	ctx, cancel := context.WithCancel(ctx)
	ch, unsubscribe := feed.Subscribe(table)
	done := make(chan struct{})

	go func() {
		defer close(done)
		for {
			select {
			case <-ctx.Done():
				return
			case _, ok := <-ch:
				if !ok {
					return
				}
				reload(ctx)
			}
		}
	}()

	return func() {
		cancel()
		unsubscribe()
		<-done
	}
}
