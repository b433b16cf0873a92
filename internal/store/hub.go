package store

import (
	"sync"

	"plancal/internal/model"
)

type subscriber struct {
	ch chan []model.Plan
}

// hub fans plan snapshots out to per-user subscribers. Every channel holds
// at most one pending snapshot; delivering drops the stale one first.
type hub struct {
	mu   sync.Mutex
	subs map[string]map[*subscriber]struct{}
}

func newHub() *hub {
	return &hub{subs: make(map[string]map[*subscriber]struct{})}
}

func (h *hub) add(userID string) *subscriber {
	sub := &subscriber{ch: make(chan []model.Plan, 1)}
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.subs[userID] == nil {
		h.subs[userID] = make(map[*subscriber]struct{})
	}
	h.subs[userID][sub] = struct{}{}
	return sub
}

func (h *hub) remove(userID string, sub *subscriber) {
	h.mu.Lock()
	defer h.mu.Unlock()
	set, ok := h.subs[userID]
	if !ok {
		return
	}
	if _, ok := set[sub]; !ok {
		return
	}
	delete(set, sub)
	if len(set) == 0 {
		delete(h.subs, userID)
	}
	close(sub.ch)
}

func (h *hub) has(userID string) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.subs[userID]) > 0
}

func (h *hub) broadcast(userID string, plans []model.Plan) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for sub := range h.subs[userID] {
		h.send(sub, plans)
	}
}

func (h *hub) deliver(sub *subscriber, plans []model.Plan) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.send(sub, plans)
}

// send must be called with h.mu held; the lock also guards against sending
// on a channel that remove already closed.
func (h *hub) send(sub *subscriber, plans []model.Plan) {
	for _, set := range h.subs {
		if _, ok := set[sub]; ok {
			snapshot := append([]model.Plan(nil), plans...)
			select {
			case <-sub.ch:
			default:
			}
			select {
			case sub.ch <- snapshot:
			default:
			}
			return
		}
	}
}
