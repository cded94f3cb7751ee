package graphdesc

import "github.com/hashicorp/hcl/v2"

// fileSchema lists the top-level blocks. Blocks are applied in source
// order, so the schema is matched by hand instead of decoding into one
// struct of slices.
var fileSchema = &hcl.BodySchema{
	Blocks: []hcl.BlockHeaderSchema{
		{Type: "image", LabelNames: []string{"name"}},
		{Type: "buffer", LabelNames: []string{"name"}},
		{Type: "import", LabelNames: []string{"name"}},
		{Type: "group", LabelNames: []string{"name"}},
		{Type: "stage", LabelNames: []string{"name"}},
		{Type: "blit", LabelNames: []string{"name"}},
		{Type: "resolve", LabelNames: []string{"name"}},
		{Type: "export", LabelNames: []string{"resource"}},
	},
}

// ImageSpec is the body of an image block, and of the image block nested
// in an import.
type ImageSpec struct {
	Format      string `hcl:"format"`
	Dimension   string `hcl:"dimension,optional"`
	Width       uint32 `hcl:"width"`
	Height      uint32 `hcl:"height"`
	Depth       uint32 `hcl:"depth,optional"`
	MipLevels   uint32 `hcl:"mip_levels,optional"`
	ArrayLayers uint32 `hcl:"array_layers,optional"`
	Samples     uint32 `hcl:"samples,optional"`
}

// BufferSpec is the body of a buffer block.
type BufferSpec struct {
	Size uint64 `hcl:"size"`
}

// ImportSpec brings an external resource into the graph. The physical
// resource is either created once from the nested image or buffer block,
// or, with From set, taken from the previous frame's export of that name.
// On the first frame a From import falls back to a transient resource
// declared from its nested block.
type ImportSpec struct {
	Image    *ImageSpec  `hcl:"image,block"`
	Buffer   *BufferSpec `hcl:"buffer,block"`
	From     string      `hcl:"from,optional"`
	Layout   string      `hcl:"layout,optional"`
	Access   string      `hcl:"access,optional"`
	Scope    string      `hcl:"scope,optional"`
	Queue    *int        `hcl:"queue,optional"`
	ReadOnly bool        `hcl:"read_only,optional"`
}

// GroupSpec is the body of a group block.
type GroupSpec struct{}

// StageSpec declares a stage and its uses.
type StageSpec struct {
	Queue     string     `hcl:"queue"`
	Group     string     `hcl:"group,optional"`
	KeepAlive bool       `hcl:"keep_alive,optional"`
	Enabled   *bool      `hcl:"enabled,optional"`
	Uses      []*UseSpec `hcl:"use,block"`
}

// UseSpec is one use of a resource by a stage. Clear holds four color
// components, or depth and stencil for depth attachments.
type UseSpec struct {
	Resource   string    `hcl:"resource,label"`
	Usage      string    `hcl:"usage"`
	Access     string    `hcl:"access,optional"`
	Scope      string    `hcl:"scope,optional"`
	BaseMip    uint32    `hcl:"base_mip,optional"`
	MipCount   uint32    `hcl:"mip_count,optional"`
	BaseLayer  uint32    `hcl:"base_layer,optional"`
	LayerCount uint32    `hcl:"layer_count,optional"`
	Token      uint64    `hcl:"token,optional"`
	Clear      []float64 `hcl:"clear,optional"`
}

// BlitSpec copies Source into a new image, converting and scaling it.
// Zero extents take the source's.
type BlitSpec struct {
	Source string `hcl:"source"`
	Format string `hcl:"format,optional"`
	Width  uint32 `hcl:"width,optional"`
	Height uint32 `hcl:"height,optional"`
}

// ResolveSpec resolves the multisampled Source into a new image.
type ResolveSpec struct {
	Source string `hcl:"source"`
}

// ExportSpec hands a resource to the next frame or an external owner.
type ExportSpec struct {
	Layout string `hcl:"layout,optional"`
	Access string `hcl:"access,optional"`
	Scope  string `hcl:"scope,optional"`
	Queue  *int   `hcl:"queue,optional"`
}
