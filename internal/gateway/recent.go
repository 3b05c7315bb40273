package gateway

// recentIDs remembers the last N correlation ids whose calls ended without a
// response, so a response that shows up afterwards can be told apart from a
// genuinely unsolicited event.
type recentIDs struct {
	ring []string
	next int
	set  map[string]struct{}
}

func newRecentIDs(limit int) *recentIDs {
	if limit <= 0 {
		return &recentIDs{}
	}
	return &recentIDs{ring: make([]string, limit), set: make(map[string]struct{}, limit)}
}

func (r *recentIDs) add(id string) {
	if len(r.ring) == 0 || id == "" {
		return
	}
	if evicted := r.ring[r.next]; evicted != "" {
		delete(r.set, evicted)
	}
	r.ring[r.next] = id
	r.set[id] = struct{}{}
	r.next = (r.next + 1) % len(r.ring)
}

func (r *recentIDs) contains(id string) bool {
	_, ok := r.set[id]
	return ok
}
