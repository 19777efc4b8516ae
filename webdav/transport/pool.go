package transport

import "sync"

// Pool recycles Connections across requests instead of paying dial/TLS
// setup cost on every call, grounded on ConnectionsPool.{h,cpp}. The
// original is single-threaded; this version adds a mutex so one Host can
// safely serve concurrent callers.
type Pool struct {
	mu    sync.Mutex
	idle  []*Connection
}

// NewPool returns an empty Pool.
func NewPool() *Pool { return &Pool{} }

// Acquired is a scope-bound borrow of a Connection: calling Release clears
// it and returns it to the pool. Used by short-lived blocking requests.
type Acquired struct {
	pool *Pool
	conn *Connection
}

// Conn returns the borrowed Connection.
func (a *Acquired) Conn() *Connection { return a.conn }

// Release clears the connection and returns it to the pool. Safe to call
// more than once; only the first call has any effect.
func (a *Acquired) Release() {
	if a.conn == nil {
		return
	}
	a.conn.Clear()
	a.pool.push(a.conn)
	a.conn = nil
}

// Get borrows a connection for the duration of the caller's scope.
func (p *Pool) Get() *Acquired {
	return &Acquired{pool: p, conn: p.pop()}
}

// GetRaw borrows a connection for a whole-lifetime hold, e.g. a File that
// keeps it open across several Read or Write calls. Pair with Return.
func (p *Pool) GetRaw() *Connection {
	return p.pop()
}

// Return clears and returns a connection previously obtained from GetRaw.
func (p *Pool) Return(conn *Connection) {
	if conn == nil {
		return
	}
	conn.Clear()
	p.push(conn)
}

func (p *Pool) pop() *Connection {
	p.mu.Lock()
	defer p.mu.Unlock()
	if n := len(p.idle); n > 0 {
		conn := p.idle[n-1]
		p.idle = p.idle[:n-1]
		return conn
	}
	return New()
}

func (p *Pool) push(conn *Connection) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.idle = append(p.idle, conn)
}
