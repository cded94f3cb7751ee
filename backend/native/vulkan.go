//go:build !nogpu && !js && !android

package native

import (
	"github.com/gogpu/gputypes"
	_ "github.com/gogpu/wgpu/hal/vulkan" // registers gputypes.BackendVulkan

	"github.com/gogpu/framegraph/gpucore"
)

func init() {
	gpucore.Register("vulkan", func() (gpucore.Device, error) {
		return Open(gputypes.BackendVulkan)
	})
}
