package relay

import "fmt"

// Pool selects one of the two subscriber sets.
type Pool int

const (
	// PoolBroadcast receives live frames only.
	PoolBroadcast Pool = iota
	// PoolStreaming gets the last frame replayed on connect, then live frames.
	PoolStreaming
)

func (p Pool) String() string {
	switch p {
	case PoolBroadcast:
		return "broadcast"
	case PoolStreaming:
		return "streaming"
	default:
		return fmt.Sprintf("pool(%d)", int(p))
	}
}

// Replays reports whether new subscribers get the current frame on connect.
func (p Pool) Replays() bool {
	return p == PoolStreaming
}

// Subscriber is a live push channel.
type Subscriber interface {
	ID() string
	Send(text string) error
	Close() error
}

// Delivery is the outcome of one send during a broadcast.
type Delivery struct {
	Sub Subscriber
	Err error
}

// Failed reports whether the send failed.
func (d Delivery) Failed() bool {
	return d.Err != nil
}

// Registry keeps the broadcast and streaming pools in insertion order.
// It is not safe for concurrent use; Hub serializes access.
type Registry struct {
	pools [2][]Subscriber
}

func (r *Registry) pool(p Pool) *[]Subscriber {
	if p != PoolBroadcast && p != PoolStreaming {
		panic(fmt.Sprintf("relay: unknown pool %d", int(p)))
	}
	return &r.pools[p]
}

// Register adds sub to pool. Registering twice is a no-op.
func (r *Registry) Register(p Pool, sub Subscriber) {
	subs := r.pool(p)
	for _, s := range *subs {
		if s == sub {
			return
		}
	}
	*subs = append(*subs, sub)
}

// Unregister removes sub from pool and reports whether it was present.
func (r *Registry) Unregister(p Pool, sub Subscriber) bool {
	subs := r.pool(p)
	for i, s := range *subs {
		if s == sub {
			*subs = append((*subs)[:i:i], (*subs)[i+1:]...)
			return true
		}
	}
	return false
}

// Len returns the number of subscribers in pool.
func (r *Registry) Len(p Pool) int {
	return len(*r.pool(p))
}

// Deliver sends text to every subscriber of pool and returns one Delivery
// per subscriber. The pool is not modified.
func (r *Registry) Deliver(p Pool, text string) []Delivery {
	subs := *r.pool(p)
	out := make([]Delivery, 0, len(subs))
	for _, sub := range subs {
		out = append(out, Delivery{Sub: sub, Err: sub.Send(text)})
	}
	return out
}

// Broadcast delivers text to pool, then removes every subscriber whose
// send failed. It returns the delivered count and the removed subscribers.
func (r *Registry) Broadcast(p Pool, text string) (int, []Delivery) {
	deliveries := r.Deliver(p, text)

	var failed []Delivery
	delivered := 0
	for _, d := range deliveries {
		if d.Failed() {
			failed = append(failed, d)
			continue
		}
		delivered++
	}

	for _, d := range failed {
		r.Unregister(p, d.Sub)
	}
	return delivered, failed
}
