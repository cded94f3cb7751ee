// Package native provides a gpucore.Device backed by the Pure Go gogpu/wgpu
// hal layer.
//
// A hal device exposes a single in-order queue, so the native device
// reports one universal queue and the compiler schedules every stage on it.
// Timeline fences are emulated on top of hal submission indices: each
// signaled value remembers the submission that carries it and is reached
// once the queue reports that submission complete.
//
// Two backends register themselves on import:
//
//	import _ "github.com/gogpu/framegraph/backend/native"
//
//	dev, err := gpucore.Open("noop")   // hal/noop, no GPU required
//	dev, err := gpucore.Open("vulkan") // hal/vulkan, unless built with -tags nogpu
//
// An application that already owns a device through gogpu can hand it over
// with NewFromProvider.
package native
