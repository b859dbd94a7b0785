package exchange

// PoolClass names the two admission pools.
type PoolClass uint8

const (
	// PoolFollows holds trusted peers, prioritized under churn.
	PoolFollows PoolClass = iota
	// PoolOther holds everyone else.
	PoolOther
)

func (c PoolClass) String() string {
	if c == PoolFollows {
		return "follows"
	}
	return "other"
}

// Classifier assigns a handshaking peer to a pool. The default classifier
// puts everyone in PoolOther.
type Classifier func(id PeerID) PoolClass

// PoolConfig bounds one admission pool. New connections are sought only
// below SatisfiedConnections and refused at MaxConnections, which bounds
// resources while preferring trusted peers when connectivity churns.
type PoolConfig struct {
	MaxConnections       int
	SatisfiedConnections int
}

func (c *PoolConfig) applyDefaults() {
	if c.MaxConnections < 1 {
		c.MaxConnections = 16
	}
	if c.SatisfiedConnections < 1 || c.SatisfiedConnections > c.MaxConnections {
		c.SatisfiedConnections = c.MaxConnections / 2
		if c.SatisfiedConnections < 1 {
			c.SatisfiedConnections = 1
		}
	}
}

// pool is owned by the exchange event loop; no locking.
type pool struct {
	class PoolClass
	cfg   PoolConfig
	peers map[PeerID]*Peer
}

func newPool(class PoolClass, cfg PoolConfig) *pool {
	cfg.applyDefaults()
	return &pool{class: class, cfg: cfg, peers: make(map[PeerID]*Peer)}
}

// canAccept reports whether an incoming peer may be admitted.
func (p *pool) canAccept() bool {
	return len(p.peers) < p.cfg.MaxConnections
}

// wantsMore reports whether the pool is still hungry for connections.
// Between satisfied and max the pool accepts but does not seek.
func (p *pool) wantsMore() bool {
	return len(p.peers) < p.cfg.SatisfiedConnections
}

func (p *pool) add(peer *Peer) {
	peer.Pool = p.class
	p.peers[peer.ID] = peer
}

func (p *pool) remove(id PeerID) {
	delete(p.peers, id)
}

func (p *pool) size() int {
	return len(p.peers)
}
