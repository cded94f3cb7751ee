package schedule

import (
	"errors"
	"reflect"
	"testing"

	"github.com/gogpu/framegraph/gpucore"
	"github.com/gogpu/framegraph/internal/history"
)

func buf() gpucore.ResourceInfo { return gpucore.BufferResource(gpucore.BufferInfo{Size: 16}) }

func use(s history.StageID, a gpucore.Access) history.Use {
	return history.Use{Stage: s, Usage: gpucore.UsageStorage, Access: a}
}

// twoQueues maps graphics to queue 0 and everything else to queue 1.
func twoQueues(t gpucore.QueueType) int {
	if t == gpucore.QueueGraphics {
		return 0
	}
	return 1
}

func TestChainAcrossQueues(t *testing.T) {
	var g history.Graph
	r := g.AddResource("r", buf(), false, false)
	// Declared in reverse queue-bucket order to check dependencies win.
	a := g.AddStage("a", gpucore.QueueCompute)
	b := g.AddStage("b", gpucore.QueueGraphics)
	c := g.AddStage("c", gpucore.QueueCompute)
	g.AddUse(r, use(a, gpucore.AccessShaderWrite))
	g.AddUse(r, use(b, gpucore.AccessShaderRead))
	g.AddUse(r, use(c, gpucore.AccessShaderWrite))

	res, err := Run(&g, 2, twoQueues)
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if !reflect.DeepEqual(res.Order, []history.StageID{a, b, c}) {
		t.Errorf("Order = %v, want [a b c]", res.Order)
	}
	if !reflect.DeepEqual(res.Timelines[1], []history.StageID{a, c}) {
		t.Errorf("compute timeline = %v", res.Timelines[1])
	}
	if res.Queue[b] != 0 || res.Slot[b] != 0 || res.Slot[c] != 1 {
		t.Errorf("queue/slot = %v/%v", res.Queue, res.Slot)
	}
}

func TestTimelineUniqueness(t *testing.T) {
	var g history.Graph
	r := g.AddResource("r", buf(), false, false)
	var stages []history.StageID
	for i, q := range []gpucore.QueueType{gpucore.QueueGraphics, gpucore.QueueCompute, gpucore.QueueTransfer, gpucore.QueueGraphics} {
		s := g.AddStage(string(rune('a'+i)), q)
		stages = append(stages, s)
		g.AddUse(r, history.Use{Stage: s, Usage: gpucore.UsageCopyDst, Access: gpucore.AccessTransferWrite})
	}
	res, err := Run(&g, 3, func(t gpucore.QueueType) int { return int(t) % 3 })
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	seen := map[history.StageID]int{}
	for _, tl := range res.Timelines {
		for _, s := range tl {
			seen[s]++
		}
	}
	for _, s := range stages {
		if seen[s] != 1 {
			t.Errorf("stage %d appears %d times", s, seen[s])
		}
	}
}

func TestReadsReorder(t *testing.T) {
	var g history.Graph
	r := g.AddResource("r", buf(), false, false)
	w := g.AddStage("w", gpucore.QueueCompute)
	r1 := g.AddStage("r1", gpucore.QueueGraphics)
	r2 := g.AddStage("r2", gpucore.QueueCompute)
	g.AddUse(r, use(w, gpucore.AccessShaderWrite))
	g.AddUse(r, use(r1, gpucore.AccessShaderRead))
	g.AddUse(r, use(r2, gpucore.AccessShaderRead))

	res, err := Run(&g, 2, twoQueues)
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	// The compute bucket is drained before graphics, so r2 runs before r1.
	if !reflect.DeepEqual(res.Order, []history.StageID{w, r2, r1}) {
		t.Errorf("Order = %v", res.Order)
	}
	if got := g.Resources[r].Versions[0].Order; !reflect.DeepEqual(got, []int32{0, 2, 1}) {
		t.Errorf("version order = %v, want [0 2 1]", got)
	}
}

func TestCycleDetection(t *testing.T) {
	var g history.Graph
	x := g.AddResource("x", buf(), false, false)
	y := g.AddResource("y", buf(), false, false)
	a := g.AddStage("a", gpucore.QueueCompute)
	b := g.AddStage("b", gpucore.QueueCompute)
	g.AddUse(x, use(a, gpucore.AccessShaderWrite))
	g.AddUse(y, use(b, gpucore.AccessShaderWrite))
	// a needs the version only b produces and vice versa.
	g.AddUse(y, use(a, gpucore.AccessShaderRead))
	g.AddUse(x, use(b, gpucore.AccessShaderRead))

	res, err := Run(&g, 2, twoQueues)
	if res != nil {
		t.Error("cyclic graph must not produce a partial schedule")
	}
	var cerr *CycleError
	if !errors.As(err, &cerr) {
		t.Fatalf("error = %v, want *CycleError", err)
	}
	if !errors.Is(err, ErrCyclicDependency) {
		t.Error("CycleError should unwrap to ErrCyclicDependency")
	}
	if !reflect.DeepEqual(cerr.Names, []string{"a", "b"}) {
		t.Errorf("cycle stages = %v", cerr.Names)
	}
}

func TestSameStageTwoVersions(t *testing.T) {
	info := gpucore.ImageResource(gpucore.ImageInfo{Width: 8, Height: 8, MipLevels: 2, ArrayLayers: 1})
	var g history.Graph
	r := g.AddResource("r", info, false, false)
	init := g.AddStage("init", gpucore.QueueGraphics)
	down := g.AddStage("down", gpucore.QueueGraphics)
	g.AddUse(r, history.Use{Stage: init, Usage: gpucore.UsageCopyDst, Access: gpucore.AccessTransferWrite})
	// down reads mip 0 of version 0 and writes mip 1 as version 1.
	g.AddUse(r, history.Use{Stage: down, Usage: gpucore.UsageCopySrc, Access: gpucore.AccessTransferRead,
		Range: gpucore.Range{MipCount: 1}})
	g.AddUse(r, history.Use{Stage: down, Usage: gpucore.UsageCopyDst, Access: gpucore.AccessTransferWrite,
		Range: gpucore.Range{BaseMip: 1, MipCount: 1}})

	res, err := Run(&g, 1, func(gpucore.QueueType) int { return 0 })
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if !reflect.DeepEqual(res.Order, []history.StageID{init, down}) {
		t.Errorf("Order = %v", res.Order)
	}
}

func TestCulledStagesSkipped(t *testing.T) {
	var g history.Graph
	r := g.AddResource("r", buf(), false, false)
	a := g.AddStage("a", gpucore.QueueCompute)
	g.AddUse(r, use(a, gpucore.AccessShaderWrite))
	g.Cull()

	res, err := Run(&g, 2, twoQueues)
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if len(res.Order) != 0 || res.Queue[a] != -1 {
		t.Errorf("culled stage scheduled: %+v", res)
	}
}

func TestDeterministic(t *testing.T) {
	build := func() *history.Graph {
		var g history.Graph
		r := g.AddResource("r", buf(), false, false)
		q := g.AddResource("q", buf(), false, false)
		for i := 0; i < 6; i++ {
			s := g.AddStage(string(rune('a'+i)), gpucore.QueueType(i%3))
			res := r
			if i%2 == 1 {
				res = q
			}
			g.AddUse(res, history.Use{Stage: s, Usage: gpucore.UsageCopyDst, Access: gpucore.AccessTransferWrite})
		}
		return &g
	}
	first, err := Run(build(), 3, func(t gpucore.QueueType) int { return int(t) })
	if err != nil {
		t.Fatal(err)
	}
	second, err := Run(build(), 3, func(t gpucore.QueueType) int { return int(t) })
	if err != nil {
		t.Fatal(err)
	}
	if !reflect.DeepEqual(first, second) {
		t.Errorf("schedules differ:\n%+v\n%+v", first, second)
	}
}
