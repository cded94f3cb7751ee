package framegraph

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	"github.com/gogpu/framegraph/gpucore"
	"github.com/gogpu/framegraph/internal/history"
)

// batch is a run of consecutive graph stages of one queue submitted
// together.
type batch struct {
	queue  int
	stages []int
}

// Submit records and submits the pending plan. Graph stages of one queue
// are batched into a single submission until a stage another queue waits
// for, or a stage waiting for work not submitted yet. Queues are visited
// round-robin so every wait targets an earlier submission.
func (g *Graph) Submit(ctx context.Context) error {
	if g.closed {
		return ErrClosed
	}
	c := g.pending
	if c == nil {
		return ErrNotCompiled
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	submitted := make([]uint64, len(g.queues))
	copy(submitted, c.base)
	pos := make([]int, len(g.queues))
	host := g.signaled()
	first := make([]bool, len(g.queues))
	for q := range first {
		first[q] = true
	}

	remaining := len(c.stages)
	for remaining > 0 {
		progress := false
		for q := range g.queues {
			bt := c.nextBatch(q, pos[q], submitted)
			if len(bt.stages) == 0 {
				continue
			}
			if err := g.submitBatch(c, bt, host, first[q]); err != nil {
				g.abandon(c, submitted)
				return err
			}
			first[q] = false
			pos[q] += len(bt.stages)
			remaining -= len(bt.stages)
			submitted[q] = c.stages[bt.stages[len(bt.stages)-1]].value
			progress = true
		}
		if !progress {
			g.abandon(c, submitted)
			return fmt.Errorf("framegraph: %d graph stages wait for work never submitted", remaining)
		}
	}

	c.slot.state = slotRunning
	for q, qs := range g.queues {
		n := uint64(len(c.timelines[q]))
		qs.allocated = c.base[q] + n
		qs.lastFrame = qs.allocated
		qs.idle = n == 0
		c.slot.values[q] = 0
		if n > 0 {
			c.slot.values[q] = qs.allocated
		}
	}
	done := g.signaled()
	for _, s := range g.slots {
		if s == c.slot || s.state != slotRunning {
			continue
		}
		finished := true
		for q, v := range s.values {
			if v > done[q] {
				finished = false
			}
		}
		if finished {
			s.state = slotIdle
		}
	}

	c.submitted = true
	g.frames++
	g.current, g.pending = c, nil
	Logger().Debug("framegraph: submitted", "frame", c.frame, "stages", len(c.stages))
	return nil
}

// nextBatch returns the graph stages of queue q starting at timeline
// position pos that can be submitted now.
func (c *compiled) nextBatch(q, pos int, submitted []uint64) batch {
	bt := batch{queue: q}
	tl := c.timelines[q]
	for i := pos; i < len(tl); i++ {
		gs := c.stages[tl[i]]
		ready := true
		for _, w := range gs.waits {
			if submitted[w.Queue] < w.Value {
				ready = false
				break
			}
		}
		if !ready {
			break
		}
		bt.stages = append(bt.stages, tl[i])
		if gs.waitedOn {
			break
		}
	}
	return bt
}

func (g *Graph) submitBatch(c *compiled, bt batch, host []uint64, first bool) error {
	qs := g.queues[bt.queue]
	pool, err := g.commandPool(c.slot, bt.queue)
	if err != nil {
		return err
	}
	head := c.b.hist.Stages[c.stages[bt.stages[0]].members[0]].Name
	cmd, err := pool.Allocate(head)
	if err != nil {
		return fmt.Errorf("framegraph: allocate command buffer: %w", err)
	}

	var open *Group
	for _, gi := range bt.stages {
		gs := c.stages[gi]
		if gs.group != open {
			if open != nil {
				cmd.EndLabel()
			}
			if gs.group != nil {
				cmd.BeginLabel(gs.group.name)
			}
			open = gs.group
		}
		if err := c.recordStage(cmd, gs); err != nil {
			return err
		}
	}
	if open != nil {
		cmd.EndLabel()
	}
	if err := cmd.End(); err != nil {
		return fmt.Errorf("framegraph: end command buffer: %w", err)
	}

	sub := &gpucore.Submission{Label: head, Commands: []gpucore.CommandBuffer{cmd}}
	waits := make(map[int]uint64)
	if first && qs.idle {
		for src, other := range g.queues {
			if src != bt.queue && other.lastFrame > 0 {
				waits[src] = other.lastFrame
			}
		}
	}
	for _, gi := range bt.stages {
		gs := c.stages[gi]
		for _, w := range gs.waits {
			waits[w.Queue] = max(waits[w.Queue], w.Value)
		}
		sub.Waits = append(sub.Waits, gs.importWaits...)
		sub.Signals = append(sub.Signals, gs.signals...)
	}
	for src := range g.queues {
		v, ok := waits[src]
		if !ok || v <= qs.waited[src] || v <= host[src] {
			continue
		}
		sub.Waits = append(sub.Waits, gpucore.FenceValue{Fence: g.queues[src].fence, Value: v})
		qs.waited[src] = v
	}
	last := c.stages[bt.stages[len(bt.stages)-1]]
	sub.Signals = append([]gpucore.FenceValue{{Fence: qs.fence, Value: last.value}}, sub.Signals...)

	if err := g.dev.Submit(bt.queue, sub); err != nil {
		return fmt.Errorf("framegraph: submit to queue %d: %w", bt.queue, err)
	}
	submissionsTotal.WithLabelValues(strconv.Itoa(bt.queue)).Inc()
	return nil
}

// recordStage records one graph stage: its pre barriers, render pass and
// members, then its post barriers.
func (c *compiled) recordStage(cmd gpucore.CommandBuffer, gs *graphStage) error {
	h := &c.b.hist
	name := h.Stages[gs.members[0]].Name
	cmd.BeginLabel(name)
	defer cmd.EndLabel()

	if len(gs.pre) > 0 {
		cmd.Barrier(deviceOnly(gs.pre))
	}
	if gs.rendering != nil {
		if err := cmd.BeginRendering(gs.rendering); err != nil {
			return c.recordError(name, err)
		}
	}
	for _, id := range gs.members {
		if err := c.recordMember(cmd, id, gs.queue); err != nil {
			if gs.rendering != nil {
				cmd.EndRendering()
			}
			return err
		}
	}
	if gs.rendering != nil {
		cmd.EndRendering()
	}
	if len(gs.post) > 0 {
		cmd.Barrier(deviceOnly(gs.post))
	}
	return nil
}

func (c *compiled) recordMember(cmd gpucore.CommandBuffer, id history.StageID, queue int) error {
	h := &c.b.hist
	st := c.b.stages[id]
	name := h.Stages[id].Name
	var err error
	switch st.kind {
	case stageUser:
		if st.recorder == nil {
			return nil
		}
		err = st.recorder.Record(&RecordContext{
			Cmd:      cmd,
			Queue:    queue,
			Frame:    c.frame,
			Stage:    name,
			UserData: st.userData,
			c:        c,
		})
	case stageClear:
		p := c.phys[st.dst]
		info := h.Resources[st.dst].Info
		if p.image != nil {
			mips, layers := info.Extent()
			err = cmd.ClearImage(p.image, gpucore.WholeRange.Resolve(mips, layers), gpucore.ClearValue{})
		} else {
			err = cmd.ClearBuffer(p.buffer, 0, info.MustBuffer().Size, 0)
		}
	case stageBlit:
		src, dst := c.phys[st.src], c.phys[st.dst]
		err = c.passes[id].Record(cmd,
			gpucore.BlitTarget{Image: src.image, Buffer: src.buffer},
			gpucore.BlitTarget{Image: dst.image, Buffer: dst.buffer})
	case stageHold:
	}
	if err != nil {
		return c.recordError(name, err)
	}
	return nil
}

func (c *compiled) recordError(stage string, err error) error {
	if errors.Is(err, ErrUnimplemented) {
		c.g.rep.report(Diagnostic{
			Severity: SeverityWarning,
			Category: CategoryUnimplemented,
			Message:  "record " + stage + ": " + err.Error(),
			Objects:  []Object{stageObject(stage)},
			Err:      err,
		})
		return nil
	}
	return fmt.Errorf("framegraph: record %s: %w", stage, err)
}

// abandon drops a partially submitted plan. Timelines advance to what was
// actually submitted so later values stay monotonic.
func (g *Graph) abandon(c *compiled, submitted []uint64) {
	for q, qs := range g.queues {
		qs.allocated = submitted[q]
	}
	for _, e := range c.b.exports {
		e.invalidate()
	}
	c.slot.state = slotRunning
	copy(c.slot.values, submitted)
	for _, e := range g.held {
		g.pool.Release(e)
	}
	g.held = nil
	g.pending = nil
	Logger().Warn("framegraph: frame abandoned", "frame", c.frame)
}

func deviceOnly(bs []Barrier) []gpucore.Barrier {
	out := make([]gpucore.Barrier, len(bs))
	for i := range bs {
		out[i] = bs[i].Barrier
	}
	return out
}
