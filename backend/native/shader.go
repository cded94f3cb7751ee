package native

import (
	"encoding/binary"
	"fmt"

	"github.com/gogpu/gputypes"
	"github.com/gogpu/naga"
	"github.com/gogpu/wgpu/hal"
)

// fillWGSL writes a 32-bit pattern over a word range of a storage buffer.
const fillWGSL = `
struct Params {
    first: u32,
    count: u32,
    value: u32,
    pad: u32,
}

@group(0) @binding(0) var<storage, read_write> dst: array<u32>;
@group(0) @binding(1) var<uniform> params: Params;

@compute @workgroup_size(64)
fn fill(@builtin(global_invocation_id) id: vec3<u32>) {
    if (id.x >= params.count) {
        return;
    }
    dst[params.first + id.x] = params.value;
}
`

const (
	fillWorkgroup  = 64
	fillParamsSize = 16
)

// compileWGSL compiles WGSL to SPIR-V words.
func compileWGSL(source string) ([]uint32, error) {
	spirv, err := naga.Compile(source)
	if err != nil {
		return nil, fmt.Errorf("native: compile shader: %w", err)
	}
	words := make([]uint32, len(spirv)/4)
	for i := range words {
		words[i] = binary.LittleEndian.Uint32(spirv[i*4:])
	}
	return words, nil
}

type fillPipeline struct {
	module   hal.ShaderModule
	layout   hal.BindGroupLayout
	pipeLay  hal.PipelineLayout
	pipeline hal.ComputePipeline
}

func newFillPipeline(dev hal.Device) (*fillPipeline, error) {
	words, err := compileWGSL(fillWGSL)
	if err != nil {
		return nil, err
	}
	p := &fillPipeline{}
	p.module, err = dev.CreateShaderModule(&hal.ShaderModuleDescriptor{
		Label:  "framegraph_fill",
		Source: hal.ShaderSource{SPIRV: words},
	})
	if err != nil {
		return nil, fmt.Errorf("native: fill shader: %w", err)
	}
	p.layout, err = dev.CreateBindGroupLayout(&hal.BindGroupLayoutDescriptor{
		Label: "framegraph_fill_layout",
		Entries: []gputypes.BindGroupLayoutEntry{
			{
				Binding:    0,
				Visibility: gputypes.ShaderStageCompute,
				Buffer:     &gputypes.BufferBindingLayout{Type: gputypes.BufferBindingTypeStorage},
			},
			{
				Binding:    1,
				Visibility: gputypes.ShaderStageCompute,
				Buffer:     &gputypes.BufferBindingLayout{Type: gputypes.BufferBindingTypeUniform, MinBindingSize: fillParamsSize},
			},
		},
	})
	if err != nil {
		p.destroy(dev)
		return nil, fmt.Errorf("native: fill bind group layout: %w", err)
	}
	p.pipeLay, err = dev.CreatePipelineLayout(&hal.PipelineLayoutDescriptor{
		Label:            "framegraph_fill_pipeline_layout",
		BindGroupLayouts: []hal.BindGroupLayout{p.layout},
	})
	if err != nil {
		p.destroy(dev)
		return nil, fmt.Errorf("native: fill pipeline layout: %w", err)
	}
	p.pipeline, err = dev.CreateComputePipeline(&hal.ComputePipelineDescriptor{
		Label:   "framegraph_fill_pipeline",
		Layout:  p.pipeLay,
		Compute: hal.ComputeState{Module: p.module, EntryPoint: "fill"},
	})
	if err != nil {
		p.destroy(dev)
		return nil, fmt.Errorf("native: fill pipeline: %w", err)
	}
	return p, nil
}

func (p *fillPipeline) destroy(dev hal.Device) {
	if p.pipeline != nil {
		dev.DestroyComputePipeline(p.pipeline)
	}
	if p.pipeLay != nil {
		dev.DestroyPipelineLayout(p.pipeLay)
	}
	if p.layout != nil {
		dev.DestroyBindGroupLayout(p.layout)
	}
	if p.module != nil {
		dev.DestroyShaderModule(p.module)
	}
}

// fillPipeline returns the lazily built fill pipeline.
func (d *Device) fillPipeline() (*fillPipeline, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.fill != nil {
		return d.fill, nil
	}
	p, err := newFillPipeline(d.dev)
	if err != nil {
		return nil, err
	}
	d.fill = p
	return p, nil
}

func fillParams(first, count, value uint32) []byte {
	b := make([]byte, fillParamsSize)
	binary.LittleEndian.PutUint32(b[0:], first)
	binary.LittleEndian.PutUint32(b[4:], count)
	binary.LittleEndian.PutUint32(b[8:], value)
	return b
}

// Pipeline is a hal pipeline with the bind group it runs with.
type Pipeline struct {
	label   string
	compute hal.ComputePipeline
	render  hal.RenderPipeline
	group   hal.BindGroup

	// owned objects, set by CreateComputePipeline
	module hal.ShaderModule
	bgl    hal.BindGroupLayout
	layout hal.PipelineLayout
}

// Label returns the pipeline label.
func (p *Pipeline) Label() string { return p.label }

// ComputePipeline wraps a hal compute pipeline for use in stage recorders.
func ComputePipeline(label string, p hal.ComputePipeline, group hal.BindGroup) *Pipeline {
	return &Pipeline{label: label, compute: p, group: group}
}

// RenderPipeline wraps a hal render pipeline for use in stage recorders.
func RenderPipeline(label string, p hal.RenderPipeline, group hal.BindGroup) *Pipeline {
	return &Pipeline{label: label, render: p, group: group}
}

// CreateComputePipeline compiles a single-entry WGSL compute shader whose
// group 0 binds the given buffers as read-write storage, in order.
func (d *Device) CreateComputePipeline(label, wgsl, entry string, buffers ...*Buffer) (*Pipeline, error) {
	if err := d.live(); err != nil {
		return nil, err
	}
	words, err := compileWGSL(wgsl)
	if err != nil {
		return nil, err
	}
	module, err := d.dev.CreateShaderModule(&hal.ShaderModuleDescriptor{
		Label:  label,
		Source: hal.ShaderSource{SPIRV: words},
	})
	if err != nil {
		return nil, fmt.Errorf("native: %s shader: %w", label, err)
	}
	layoutEntries := make([]gputypes.BindGroupLayoutEntry, len(buffers))
	groupEntries := make([]gputypes.BindGroupEntry, len(buffers))
	for i, b := range buffers {
		layoutEntries[i] = gputypes.BindGroupLayoutEntry{
			Binding:    uint32(i),
			Visibility: gputypes.ShaderStageCompute,
			Buffer:     &gputypes.BufferBindingLayout{Type: gputypes.BufferBindingTypeStorage},
		}
		groupEntries[i] = gputypes.BindGroupEntry{
			Binding:  uint32(i),
			Resource: gputypes.BufferBinding{Buffer: b.buf.NativeHandle(), Size: b.info.Size},
		}
	}
	bgl, err := d.dev.CreateBindGroupLayout(&hal.BindGroupLayoutDescriptor{Label: label, Entries: layoutEntries})
	if err != nil {
		d.dev.DestroyShaderModule(module)
		return nil, fmt.Errorf("native: %s bind group layout: %w", label, err)
	}
	pl, err := d.dev.CreatePipelineLayout(&hal.PipelineLayoutDescriptor{Label: label, BindGroupLayouts: []hal.BindGroupLayout{bgl}})
	if err != nil {
		d.dev.DestroyBindGroupLayout(bgl)
		d.dev.DestroyShaderModule(module)
		return nil, fmt.Errorf("native: %s pipeline layout: %w", label, err)
	}
	pipe, err := d.dev.CreateComputePipeline(&hal.ComputePipelineDescriptor{
		Label:   label,
		Layout:  pl,
		Compute: hal.ComputeState{Module: module, EntryPoint: entry},
	})
	if err != nil {
		d.dev.DestroyPipelineLayout(pl)
		d.dev.DestroyBindGroupLayout(bgl)
		d.dev.DestroyShaderModule(module)
		return nil, fmt.Errorf("native: %s pipeline: %w", label, err)
	}
	group, err := d.dev.CreateBindGroup(&hal.BindGroupDescriptor{Label: label, Layout: bgl, Entries: groupEntries})
	if err != nil {
		d.dev.DestroyComputePipeline(pipe)
		d.dev.DestroyPipelineLayout(pl)
		d.dev.DestroyBindGroupLayout(bgl)
		d.dev.DestroyShaderModule(module)
		return nil, fmt.Errorf("native: %s bind group: %w", label, err)
	}
	p := ComputePipeline(label, pipe, group)
	p.module, p.bgl, p.layout = module, bgl, pl
	return p, nil
}

// DestroyPipeline destroys a pipeline made by CreateComputePipeline. Wrapped
// pipelines are left to their owner.
func (d *Device) DestroyPipeline(p *Pipeline) {
	if p.module == nil {
		return
	}
	d.dev.DestroyBindGroup(p.group)
	d.dev.DestroyComputePipeline(p.compute)
	d.dev.DestroyPipelineLayout(p.layout)
	d.dev.DestroyBindGroupLayout(p.bgl)
	d.dev.DestroyShaderModule(p.module)
	p.module = nil
}
