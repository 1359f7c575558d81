package broadcast

import "github.com/google/uuid"

type entry struct {
	conn   Conn
	alive  bool
	userID string
}

// registry is the set of live connections. It is owned by the hub goroutine
// and must not be touched from anywhere else.
type registry struct {
	entries map[uuid.UUID]*entry
}

func newRegistry() *registry {
	return &registry{entries: make(map[uuid.UUID]*entry)}
}

// add registers conn as alive. Re-adding an id replaces the old entry.
func (r *registry) add(conn Conn, userID string) *entry {
	e := &entry{conn: conn, alive: true, userID: userID}
	r.entries[conn.ID()] = e
	return e
}

// remove drops id and reports whether it was present.
func (r *registry) remove(id uuid.UUID) (*entry, bool) {
	e, ok := r.entries[id]
	if !ok {
		return nil, false
	}
	delete(r.entries, id)
	return e, true
}

func (r *registry) get(id uuid.UUID) (*entry, bool) {
	e, ok := r.entries[id]
	return e, ok
}

// forEach visits every entry. visit may remove the entry it is given.
func (r *registry) forEach(visit func(*entry)) {
	for _, e := range r.entries {
		visit(e)
	}
}

func (r *registry) size() int {
	return len(r.entries)
}
