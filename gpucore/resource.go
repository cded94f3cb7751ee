package gpucore

import (
	"fmt"

	"github.com/gogpu/gputypes"
)

// ResourceKind discriminates image and buffer resources.
type ResourceKind uint8

// Resource kinds.
const (
	KindImage ResourceKind = iota + 1
	KindBuffer
)

// String returns the kind name.
func (k ResourceKind) String() string {
	switch k {
	case KindImage:
		return "image"
	case KindBuffer:
		return "buffer"
	default:
		return "invalid"
	}
}

// ImageInfo describes the creation parameters of an image.
//
// Zero MipLevels, ArrayLayers and Samples are filled in by inference:
// counts are derived from the ranges the image is used with, Samples
// defaults to 1. Usage accumulates from the usage categories.
type ImageInfo struct {
	Format      gputypes.TextureFormat
	Dimension   gputypes.TextureDimension
	Width       uint32
	Height      uint32
	Depth       uint32
	MipLevels   uint32
	ArrayLayers uint32
	Samples     uint32
	Usage       gputypes.TextureUsage
}

// IsDepth reports whether the format carries depth or stencil.
func (i ImageInfo) IsDepth() bool {
	return i.Format == gputypes.TextureFormatDepth24PlusStencil8
}

// MipExtent returns the width and height of a mip level.
func (i ImageInfo) MipExtent(mip uint32) (uint32, uint32) {
	w, h := i.Width>>mip, i.Height>>mip
	return max(w, 1), max(h, 1)
}

// BufferInfo describes the creation parameters of a buffer.
type BufferInfo struct {
	Size  uint64
	Usage gputypes.BufferUsage
}

// ResourceInfo is a tagged variant holding either an ImageInfo or a
// BufferInfo. It is comparable with ==; the resource pool matches physical
// resources on exact equality.
type ResourceInfo struct {
	kind   ResourceKind
	image  ImageInfo
	buffer BufferInfo
}

// ImageResource wraps image info.
func ImageResource(info ImageInfo) ResourceInfo {
	return ResourceInfo{kind: KindImage, image: info}
}

// BufferResource wraps buffer info.
func BufferResource(info BufferInfo) ResourceInfo {
	return ResourceInfo{kind: KindBuffer, buffer: info}
}

// Kind returns the discriminant.
func (r ResourceInfo) Kind() ResourceKind { return r.kind }

// Image returns the image info and whether r holds an image.
func (r ResourceInfo) Image() (ImageInfo, bool) {
	return r.image, r.kind == KindImage
}

// Buffer returns the buffer info and whether r holds a buffer.
func (r ResourceInfo) Buffer() (BufferInfo, bool) {
	return r.buffer, r.kind == KindBuffer
}

// MustImage returns the image info. It panics if r is not an image.
func (r ResourceInfo) MustImage() ImageInfo {
	if r.kind != KindImage {
		panic(fmt.Sprintf("gpucore: MustImage on %s resource", r.kind))
	}
	return r.image
}

// MustBuffer returns the buffer info. It panics if r is not a buffer.
func (r ResourceInfo) MustBuffer() BufferInfo {
	if r.kind != KindBuffer {
		panic(fmt.Sprintf("gpucore: MustBuffer on %s resource", r.kind))
	}
	return r.buffer
}

// Extent returns the mip level and array layer counts. Buffers have one of each.
func (r ResourceInfo) Extent() (mips, layers uint32) {
	if r.kind != KindImage {
		return 1, 1
	}
	return r.image.MipLevels, r.image.ArrayLayers
}

// SizeBytes estimates the memory footprint, used for pool statistics.
func (r ResourceInfo) SizeBytes() uint64 {
	switch r.kind {
	case KindBuffer:
		return r.buffer.Size
	case KindImage:
		im := r.image
		bpp := uint64(BytesPerPixel(im.Format))
		var total uint64
		for m := uint32(0); m < max(im.MipLevels, 1); m++ {
			w, h := im.MipExtent(m)
			total += uint64(w) * uint64(h)
		}
		return total * bpp * uint64(max(im.Depth, 1)) * uint64(max(im.ArrayLayers, 1)) * uint64(max(im.Samples, 1))
	default:
		return 0
	}
}

// String returns a short description of the resource shape.
func (r ResourceInfo) String() string {
	switch r.kind {
	case KindImage:
		im := r.image
		return fmt.Sprintf("image %dx%dx%d mips=%d layers=%d samples=%d format=%d",
			im.Width, im.Height, max(im.Depth, 1), im.MipLevels, im.ArrayLayers, im.Samples, im.Format)
	case KindBuffer:
		return fmt.Sprintf("buffer %d bytes", r.buffer.Size)
	default:
		return "invalid resource"
	}
}

// BytesPerPixel returns the texel size of common formats, 4 otherwise.
func BytesPerPixel(f gputypes.TextureFormat) int {
	switch f {
	case gputypes.TextureFormatR8Unorm:
		return 1
	default:
		return 4
	}
}
