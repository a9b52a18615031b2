package core

// registry maps each user to their single live connection. Not safe for
// concurrent use; the hub's membership lock guards it.
type registry struct {
	conns map[string]*Conn
}

func newRegistry() *registry {
	return &registry{conns: make(map[string]*Conn)}
}

// register installs the connection and returns the record it replaced,
// if any. Duplicate registration is not an error; the caller closes the
// superseded socket.
func (r *registry) register(c *Conn) (replaced *Conn) {
	replaced = r.conns[c.UserID]
	if replaced == c {
		replaced = nil
	}
	r.conns[c.UserID] = c
	return replaced
}

// unregister removes the mapping only while it still points at c. This
// binding is what makes disconnect cleanup idempotent and last-writer
// replacement safe.
func (r *registry) unregister(c *Conn) bool {
	cur, ok := r.conns[c.UserID]
	if !ok || cur != c {
		return false
	}
	delete(r.conns, c.UserID)
	return true
}

func (r *registry) get(userID string) (*Conn, bool) {
	c, ok := r.conns[userID]
	return c, ok
}

func (r *registry) isOnline(userID string) bool {
	_, ok := r.conns[userID]
	return ok
}

func (r *registry) count() int {
	return len(r.conns)
}

func (r *registry) all() []*Conn {
	conns := make([]*Conn, 0, len(r.conns))
	for _, c := range r.conns {
		conns = append(conns, c)
	}
	return conns
}
