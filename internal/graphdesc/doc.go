// Package graphdesc reads frame graphs described in HCL.
//
// A description is a list of blocks applied to a framegraph.Builder in
// source order:
//
//	image "hdr" {
//	  format = "rgba8unorm"
//	  width  = screen.width
//	  height = screen.height
//	}
//
//	stage "lighting" {
//	  queue = "graphics"
//	  use "hdr" {
//	    usage = "color-attachment"
//	    clear = [0, 0, 0, 1]
//	  }
//	}
//
//	export "hdr" {
//	  layout = "shader-read-only"
//	}
//
// Block types are image, buffer, import, group, stage (with nested use
// blocks), blit, resolve and export. Usage, layout, access and scope
// values use the names printed by the gpucore types; access and scope
// flags are joined with '|'. Expressions see screen.width, screen.height,
// frame and var.<name> (see Vars), so a stage can be switched per frame
// with enabled = frame % 2 == 0.
//
// Imports are backed by resources created once per Bindings, with the
// creation flags of every use in the description. An import with from set
// reads the previous frame's export of that resource.
package graphdesc
