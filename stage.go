package framegraph

import (
	"github.com/gogpu/framegraph/gpucore"
	"github.com/gogpu/framegraph/internal/history"
)

// Recorder records a stage's commands. It is called synchronously from
// Submit, once per frame, on the goroutine driving the Graph.
type Recorder interface {
	Record(rc *RecordContext) error
}

// RecordFunc adapts a function to Recorder.
type RecordFunc func(rc *RecordContext) error

// Record calls f.
func (f RecordFunc) Record(rc *RecordContext) error { return f(rc) }

// Preparer is implemented by recorders that need the compiled creation
// info before any command is recorded, for example to build pipelines.
type Preparer interface {
	Prepare(pc *PrepareContext) error
}

// RecordContext is handed to recorders.
type RecordContext struct {
	Cmd      gpucore.CommandBuffer
	Queue    int
	Frame    uint64
	Stage    string
	UserData any

	c *compiled
}

// Image returns the physical image backing r.
func (rc *RecordContext) Image(r *Resource) gpucore.Image {
	return rc.c.physical(r).image
}

// Buffer returns the physical buffer backing r.
func (rc *RecordContext) Buffer(r *Resource) gpucore.Buffer {
	return rc.c.physical(r).buffer
}

// Info returns the compiled creation info of r.
func (rc *RecordContext) Info(r *Resource) gpucore.ResourceInfo {
	return rc.c.info(r)
}

// PrepareContext is handed to group and stage prepare callbacks. Stage is
// empty for group callbacks.
type PrepareContext struct {
	Frame    uint64
	Group    string
	Stage    string
	UserData any

	c *compiled
}

// Info returns the compiled creation info of r.
func (pc *PrepareContext) Info(r *Resource) gpucore.ResourceInfo {
	return pc.c.info(r)
}

// Stage is a unit of work declared in one compile.
type Stage struct {
	b    *Builder
	id   history.StageID
	name string
}

// Name returns the stage name.
func (s *Stage) Name() string { return s.name }

// Queue returns the stage's queue type.
func (s *Stage) Queue() gpucore.QueueType { return s.b.hist.Stages[s.id].Queue }

type stageKind uint8

const (
	stageUser stageKind = iota
	stageClear
	stageBlit
	stageHold
)

func (k stageKind) String() string {
	switch k {
	case stageClear:
		return "clear"
	case stageBlit:
		return "blit"
	case stageHold:
		return "hold"
	default:
		return "user"
	}
}

type stageState struct {
	handle    *Stage
	kind      stageKind
	recorder  Recorder
	userData  any
	group     *Group
	keepAlive bool

	// Attachment extent shared by every attachment of the stage.
	attached   bool
	attWidth   uint32
	attHeight  uint32
	attSamples uint32

	// Operands of implicit stages.
	src, dst history.ResourceID
	blit     gpucore.BlitConfig
}

// StageOption configures a stage.
type StageOption func(*stageState)

// WithRecorder sets the stage's recorder.
func WithRecorder(r Recorder) StageOption {
	return func(s *stageState) { s.recorder = r }
}

// WithRecordFunc sets the stage's recorder to f.
func WithRecordFunc(f func(rc *RecordContext) error) StageOption {
	return func(s *stageState) { s.recorder = RecordFunc(f) }
}

// WithUserData attaches a value handed back through the contexts.
func WithUserData(v any) StageOption {
	return func(s *stageState) { s.userData = v }
}

// InGroup places the stage in g.
func InGroup(g *Group) StageOption {
	return func(s *stageState) { s.group = g }
}

// KeepAlive exempts the stage from culling.
func KeepAlive() StageOption {
	return func(s *stageState) { s.keepAlive = true }
}

// Group batches stages under one debug label and one prepare callback.
type Group struct {
	b       *Builder
	name    string
	prepare func(pc *PrepareContext) error
}

// Name returns the group name.
func (g *Group) Name() string { return g.name }

// GroupOption configures a group.
type GroupOption func(*Group)

// WithPrepare sets a callback run once per compile before stage prepares,
// when at least one stage of the group survived culling.
func WithPrepare(f func(pc *PrepareContext) error) GroupOption {
	return func(g *Group) { g.prepare = f }
}
