package framegraph

import (
	"context"
	"fmt"

	"github.com/gogpu/framegraph/gpucore"
	"github.com/gogpu/framegraph/internal/pool"
)

type queueState struct {
	info  gpucore.QueueInfo
	fence gpucore.Fence

	// allocated is the last timeline value handed to submitted work.
	allocated uint64
	// lastFrame is allocated as of the end of the previous frame.
	lastFrame uint64
	// waited holds, per source queue, the highest value this queue
	// already waited for.
	waited []uint64
	idle   bool
}

type slotState uint8

const (
	slotIdle slotState = iota
	slotPending
	slotRunning
)

// frameSlot is one of the double-buffered frame contexts. A slot cycles
// idle -> pending (acquired by Compile) -> running (submitted) and back to
// idle once its fence values signaled. With two slots, acquiring frame n's
// slot is the point where frame n-2's pools are reset: the slot the running
// frame does not use is the one made pending, and the one just submitted
// becomes running, so the flip happens on every Submit.
type frameSlot struct {
	state  slotState
	values []uint64
	pools  []gpucore.CommandPool
}

// Graph owns everything that outlives one compile on a device: the
// resource and blit pass pools, the per-queue timeline fences and the frame
// slots. A Graph is not safe for concurrent use.
type Graph struct {
	dev  gpucore.Device
	opts options
	rep  reporter

	queues []*queueState
	pool   *pool.Pool
	passes *pool.Passes
	slots  []*frameSlot

	// frames counts submitted frames.
	frames uint64

	pending *compiled
	current *compiled
	held    []*pool.Entry
	exports []*Export

	// imported holds, per export name, the creation usage later imports of
	// that export asked for. Exports of the name are created with it.
	imported map[string]usageFlags

	closed bool
}

// New creates a Graph on dev. The device stays owned by the caller and
// must outlive the Graph.
func New(dev gpucore.Device, opts ...Option) (*Graph, error) {
	o := defaultOptions()
	for _, opt := range opts {
		opt(&o)
	}
	qs := dev.Queues()
	if len(qs) == 0 {
		return nil, fmt.Errorf("framegraph: device has no queues")
	}

	g := &Graph{
		dev:    dev,
		opts:   o,
		rep:    reporter{handler: o.handler, trap: o.trap},
		pool:   pool.New(dev, o.pool),
		passes: pool.NewPasses(dev, o.evictAfter),

		imported: make(map[string]usageFlags),
	}
	for i, qi := range qs {
		f, err := dev.CreateFence(fmt.Sprintf("timeline:%s", qi.Name))
		if err != nil {
			g.destroyFences()
			return nil, fmt.Errorf("framegraph: create fence for queue %d: %w", i, err)
		}
		g.queues = append(g.queues, &queueState{info: qi, fence: f, waited: make([]uint64, len(qs))})
	}
	for range o.framesInFlight {
		g.slots = append(g.slots, &frameSlot{
			values: make([]uint64, len(qs)),
			pools:  make([]gpucore.CommandPool, len(qs)),
		})
	}
	trackDevice(dev)
	Logger().Info("framegraph: graph created", "queues", len(qs), "framesInFlight", o.framesInFlight)
	return g, nil
}

// Device returns the device the graph runs on.
func (g *Graph) Device() gpucore.Device { return g.dev }

// Frame returns the number of submitted frames.
func (g *Graph) Frame() uint64 { return g.frames }

// PoolStats returns the resource pool statistics.
func (g *Graph) PoolStats() pool.Stats { return g.pool.Stats() }

// Plan returns the most recently compiled plan, or nil before the first
// successful compile.
func (g *Graph) Plan() *Plan {
	switch {
	case g.pending != nil:
		return g.pending.plan
	case g.current != nil:
		return g.current.plan
	default:
		return nil
	}
}

// signaled returns the values every queue fence reached.
func (g *Graph) signaled() pool.Clock {
	c := make(pool.Clock, len(g.queues))
	for q, qs := range g.queues {
		v, err := g.dev.FenceValue(qs.fence)
		if err != nil {
			Logger().Warn("framegraph: fence query failed", "queue", q, "err", err)
			continue
		}
		c[q] = v
	}
	return c
}

// acquireFrame waits until the slot of the next frame finished its
// previous use, then resets its command pools. The slot acquired is always
// the one the currently running frame does not hold.
func (g *Graph) acquireFrame(ctx context.Context) (*frameSlot, error) {
	slot := g.slots[g.frames%uint64(len(g.slots))]
	if slot.state == slotRunning {
		for q, v := range slot.values {
			if v == 0 {
				continue
			}
			if err := g.dev.WaitFence(ctx, g.queues[q].fence, v); err != nil {
				return nil, fmt.Errorf("framegraph: wait for frame slot: %w", err)
			}
		}
	}
	for q, p := range slot.pools {
		if p == nil {
			continue
		}
		if err := p.Reset(); err != nil {
			return nil, fmt.Errorf("framegraph: reset command pool of queue %d: %w", q, err)
		}
	}
	slot.state = slotPending
	return slot, nil
}

// commandPool returns the slot's pool for queue q, creating it on first use.
func (g *Graph) commandPool(slot *frameSlot, q int) (gpucore.CommandPool, error) {
	if slot.pools[q] == nil {
		p, err := g.dev.CreateCommandPool(q)
		if err != nil {
			return nil, fmt.Errorf("framegraph: create command pool for queue %d: %w", q, err)
		}
		slot.pools[q] = p
	}
	return slot.pools[q], nil
}

// WaitIdle blocks until all submitted work completed, then returns pooled
// resources nothing references to the device.
func (g *Graph) WaitIdle(ctx context.Context) error {
	if g.closed {
		return ErrClosed
	}
	if err := g.waitQueues(ctx); err != nil {
		return err
	}
	for _, s := range g.slots {
		if s.state == slotRunning {
			s.state = slotIdle
		}
	}
	done := g.signaled()
	if n := g.pool.Cleanup(done, done); n > 0 {
		Logger().Debug("framegraph: released idle resources", "count", n)
	}
	poolBytes.Set(float64(g.pool.Stats().Bytes))
	return nil
}

func (g *Graph) waitQueues(ctx context.Context) error {
	for q, qs := range g.queues {
		if qs.allocated == 0 {
			continue
		}
		if err := g.dev.WaitFence(ctx, qs.fence, qs.allocated); err != nil {
			return fmt.Errorf("framegraph: wait for queue %d: %w", q, err)
		}
	}
	return nil
}

// Close waits for the device to go idle and destroys every pooled
// resource, blit pass, command pool and fence. Exports become invalid.
// The device itself is not closed.
func (g *Graph) Close() error {
	if g.closed {
		return nil
	}
	err := g.waitQueues(context.Background())
	for _, e := range g.exports {
		e.invalidate()
	}
	g.closed = true
	g.pool.Close()
	g.passes.Close()
	for _, s := range g.slots {
		for _, p := range s.pools {
			if p != nil {
				p.Destroy()
			}
		}
	}
	g.destroyFences()
	g.pending, g.current, g.held, g.exports = nil, nil, nil, nil
	untrackDevice(g.dev)
	Logger().Info("framegraph: graph closed", "frames", g.frames)
	return err
}

func (g *Graph) destroyFences() {
	for _, qs := range g.queues {
		g.dev.DestroyFence(qs.fence)
	}
	g.queues = nil
}
