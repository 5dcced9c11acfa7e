package app

// recentIDs bounded set of event ids seen for one room, oldest evicted first
type recentIDs struct {
	ids  map[string]struct{}
	ring []string
	next int
}

const recentPerRoom = 256

func newRecentIDs(size int) *recentIDs {
	return &recentIDs{ids: make(map[string]struct{}, size), ring: make([]string, size)}
}

// add true when id was not seen yet
func (r *recentIDs) add(id string) bool {
	if id == "" {
		return true
	}
	if _, ok := r.ids[id]; ok {
		return false
	}
	if old := r.ring[r.next]; old != "" {
		delete(r.ids, old)
	}
	r.ring[r.next] = id
	r.next = (r.next + 1) % len(r.ring)
	r.ids[id] = struct{}{}
	return true
}
