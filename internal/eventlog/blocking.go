package eventlog

import (
	"context"
	"time"
)

// WaitForCommit blocks until a new commit group becomes durable, the timeout
// elapses or ctx is done. It returns true if woken by a commit.
func (l *Log) WaitForCommit(ctx context.Context, timeout time.Duration) bool {
	l.notifyMu.Lock()
	ch := l.notifyCh
	l.notifyMu.Unlock()
	if timeout <= 0 {
		select {
		case <-ch:
			return true
		case <-ctx.Done():
			return false
		}
	}
	t := time.NewTimer(timeout)
	defer t.Stop()
	select {
	case <-ch:
		return true
	case <-t.C:
		return false
	case <-ctx.Done():
		return false
	}
}
