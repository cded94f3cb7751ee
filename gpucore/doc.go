// Package gpucore provides the backend-neutral vocabulary shared by the
// framegraph compiler and its backends.
//
// It defines the synchronization masks ([Access], [Scope]), image layouts
// ([Layout]), subresource ranges ([Range]), the usage-category table
// ([Usage]), resource creation info ([ResourceInfo]) and the [Device]
// interface a backend implements so the compiler can allocate memory,
// record commands and submit work.
//
// # Architecture
//
//	               +------------------+
//	               |    framegraph    |
//	               | (compile + exec) |
//	               +--------+---------+
//	                        |
//	               +--------v---------+
//	               |     gpucore      |
//	               | Device interface |
//	               +--------+---------+
//	                        |
//	         +--------------+--------------+
//	         |                             |
//	+--------v--------+          +--------v--------+
//	|  backend/trace  |          | backend/native  |
//	|   (recording)   |          |  (wgpu/hal)     |
//	+-----------------+          +-----------------+
//
// Backends register themselves by name, following the database/sql driver
// pattern:
//
//	import _ "github.com/gogpu/framegraph/backend/native"
//
//	dev, err := gpucore.Open("noop")
//
// # Queues
//
// A device exposes one or more hardware queues. Each [QueueType] is mapped
// to a queue index by [Device.QueueFor]; several queue types may share an
// index when the hardware has no dedicated async queues. Queue ownership of
// resources is tracked per queue index.
package gpucore
