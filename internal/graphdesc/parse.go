package graphdesc

import (
	"fmt"
	"maps"
	"slices"

	"github.com/hashicorp/hcl/v2"
	"github.com/hashicorp/hcl/v2/gohcl"
	"github.com/hashicorp/hcl/v2/hclparse"
	"github.com/zclconf/go-cty/cty"
)

// File is a parsed description. Expressions are evaluated by Decode, once
// per frame.
type File struct {
	name   string
	blocks hcl.Blocks
}

// Parse reads and parses a description file.
func Parse(path string) (*File, error) {
	parser := hclparse.NewParser()
	f, diags := parser.ParseHCLFile(path)
	if diags.HasErrors() {
		return nil, fmt.Errorf("failed to parse description %s: %s", path, diags.Error())
	}
	return newFile(path, f)
}

// ParseSource parses a description held in memory. filename is only used
// in diagnostics.
func ParseSource(src []byte, filename string) (*File, error) {
	parser := hclparse.NewParser()
	f, diags := parser.ParseHCL(src, filename)
	if diags.HasErrors() {
		return nil, fmt.Errorf("failed to parse description %s: %s", filename, diags.Error())
	}
	return newFile(filename, f)
}

func newFile(name string, f *hcl.File) (*File, error) {
	content, diags := f.Body.Content(fileSchema)
	if diags.HasErrors() {
		return nil, fmt.Errorf("failed to read description %s: %s", name, diags.Error())
	}
	return &File{name: name, blocks: content.Blocks}, nil
}

// Name returns the file name the description was parsed from.
func (f *File) Name() string { return f.name }

// Vars are the values description expressions are evaluated against:
// screen.width, screen.height, frame, and var.<name> for each entry of
// Values.
type Vars struct {
	Width  uint32
	Height uint32
	Frame  uint64
	Values map[string]cty.Value
}

func (v Vars) evalContext() *hcl.EvalContext {
	vars := map[string]cty.Value{
		"screen": cty.ObjectVal(map[string]cty.Value{
			"width":  cty.NumberUIntVal(uint64(v.Width)),
			"height": cty.NumberUIntVal(uint64(v.Height)),
		}),
		"frame": cty.NumberUIntVal(v.Frame),
	}
	if len(v.Values) > 0 {
		vars["var"] = cty.ObjectVal(maps.Clone(v.Values))
	} else {
		vars["var"] = cty.EmptyObjectVal
	}
	return &hcl.EvalContext{Variables: vars}
}

// Item is one decoded top-level block. Exactly one block field is set,
// matching Kind.
type Item struct {
	Kind  string
	Name  string
	Range hcl.Range

	Image   *ImageSpec
	Buffer  *BufferSpec
	Import  *ImportSpec
	Group   *GroupSpec
	Stage   *StageSpec
	Blit    *BlitSpec
	Resolve *ResolveSpec
	Export  *ExportSpec
}

// Description is a decoded file: its items in source order.
type Description struct {
	Items []Item
}

// Decode evaluates the file against v and checks every name it refers to
// that does not depend on other blocks: formats, queues, usages, layouts,
// access and scope flags.
func (f *File) Decode(v Vars) (*Description, error) {
	ctx := v.evalContext()
	var all hcl.Diagnostics
	d := &Description{Items: make([]Item, 0, len(f.blocks))}
	for _, block := range f.blocks {
		it := Item{Kind: block.Type, Name: block.Labels[0], Range: block.DefRange}
		var target any
		switch block.Type {
		case "image":
			it.Image = &ImageSpec{}
			target = it.Image
		case "buffer":
			it.Buffer = &BufferSpec{}
			target = it.Buffer
		case "import":
			it.Import = &ImportSpec{}
			target = it.Import
		case "group":
			it.Group = &GroupSpec{}
			target = it.Group
		case "stage":
			it.Stage = &StageSpec{}
			target = it.Stage
		case "blit":
			it.Blit = &BlitSpec{}
			target = it.Blit
		case "resolve":
			it.Resolve = &ResolveSpec{}
			target = it.Resolve
		case "export":
			it.Export = &ExportSpec{}
			target = it.Export
		}
		diags := gohcl.DecodeBody(block.Body, ctx, target)
		all = append(all, diags...)
		if diags.HasErrors() {
			continue
		}
		if err := it.check(); err != nil {
			all = append(all, &hcl.Diagnostic{
				Severity: hcl.DiagError,
				Summary:  fmt.Sprintf("Invalid %s block", block.Type),
				Detail:   err.Error(),
				Subject:  block.DefRange.Ptr(),
			})
			continue
		}
		d.Items = append(d.Items, it)
	}
	if all.HasErrors() {
		return nil, fmt.Errorf("failed to decode description %s: %s", f.name, all.Error())
	}
	return d, nil
}

// check validates the names an item carries.
func (it *Item) check() error {
	var err error
	switch it.Kind {
	case "image":
		_, err = it.Image.info()
	case "import":
		err = it.Import.check()
	case "stage":
		err = it.Stage.check()
	case "blit":
		if it.Blit.Format != "" {
			_, err = parseFormat(it.Blit.Format)
		}
	case "export":
		_, err = it.Export.desc()
	}
	return err
}

// Stages returns the names of the stage blocks enabled in d.
func (d *Description) Stages() []string {
	var names []string
	for _, it := range d.Items {
		if it.Kind == "stage" && it.Stage.enabled() {
			names = append(names, it.Name)
		}
	}
	return names
}

// Imports returns the names of the import blocks backed by a physical
// resource, sorted.
func (d *Description) Imports() []string {
	var names []string
	for _, it := range d.Items {
		if it.Kind == "import" && it.Import.From == "" {
			names = append(names, it.Name)
		}
	}
	slices.Sort(names)
	return names
}
