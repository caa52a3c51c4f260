package tracker

import "sync"

// CompletionKey identifies one (account, game) pair for completion
// deduplication.
type CompletionKey struct {
	SteamID string
	AppID   int
}

// CompletionTracker remembers which pairs have already produced a
// 100%-completion notification.
//
// State is process-lifetime only: created empty at startup, entries are
// added on notify and never removed, and a restart re-arms every pair.
// Re-arming on restart is part of the contract; persisting this set would
// change observable behavior, not just performance.
type CompletionTracker struct {
	mu   sync.Mutex
	seen map[CompletionKey]struct{}
}

func NewCompletionTracker() *CompletionTracker {
	return &CompletionTracker{seen: map[CompletionKey]struct{}{}}
}

// MarkNotified records the pair and reports whether it was newly recorded.
// A pair already present never re-notifies.
func (t *CompletionTracker) MarkNotified(k CompletionKey) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if _, ok := t.seen[k]; ok {
		return false
	}
	t.seen[k] = struct{}{}
	return true
}

// Notified reports whether the pair has already been announced.
func (t *CompletionTracker) Notified(k CompletionKey) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	_, ok := t.seen[k]
	return ok
}

// Len reports how many pairs have been announced so far.
func (t *CompletionTracker) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.seen)
}
