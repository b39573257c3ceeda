// Package wgpu implements the drawing backend over gogpu/wgpu's HAL.
//
// The backend either adopts a shared hal.Device from a host-supplied
// gpucontext.DeviceProvider or opens its own Vulkan device. Composition
// state (textures, vertex and uniform buffers, shader modules) is
// managed through HAL resources; the graphics pass itself is recorded
// as far as the HAL currently encodes it.
package wgpu

import (
	"fmt"

	"github.com/gogpu/gpucontext"
	"github.com/gogpu/gputypes"
	"github.com/gogpu/wgpu/hal"
	"golang.org/x/sys/unix"

	"github.com/gocomp/repaint/backend"
	"github.com/gocomp/repaint/region"
)

func init() {
	backend.Register(backend.BackendWGPU, func() backend.Backend {
		return New()
	})
}

// Backend is the gogpu/wgpu implementation of backend.Backend.
type Backend struct {
	initialized bool
	ownsDevice  bool

	provider gpucontext.DeviceProvider

	device   hal.Device
	queue    hal.Queue
	instance hal.Instance

	shaders   shaderSet
	pipelines map[pipelineKey]*pipeline

	target   *Output
	passOpen bool
	pass     backend.PassDesc

	// Per-frame geometry staging, grown on demand.
	vertexBuf  hal.Buffer
	vertexCap  uint64
	indexBuf   hal.Buffer
	indexCap   uint64
	uniformBuf hal.Buffer
	uniformCap uint64
}

// Option configures a wgpu backend.
type Option func(*Backend)

// WithDeviceProvider makes Init adopt the host's shared GPU device
// instead of opening one. The provider must expose the underlying HAL
// handles through HalDevice() any and HalQueue() any.
func WithDeviceProvider(p gpucontext.DeviceProvider) Option {
	return func(b *Backend) { b.provider = p }
}

// WithOwnDevice makes Init open a standalone Vulkan device. Without
// this or a device provider, Init fails and backend selection falls
// through to the software backend.
func WithOwnDevice() Option {
	return func(b *Backend) { b.ownsDevice = true }
}

// New creates a wgpu backend.
func New(opts ...Option) *Backend {
	b := &Backend{
		pipelines: make(map[pipelineKey]*pipeline),
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

func (b *Backend) Name() string { return backend.BackendWGPU }

// Init acquires a HAL device and compiles the composition shaders.
func (b *Backend) Init() error {
	if b.initialized {
		return nil
	}
	switch {
	case b.provider != nil:
		if err := b.adoptDevice(b.provider); err != nil {
			return err
		}
	case b.ownsDevice:
		if err := b.openDevice(); err != nil {
			return err
		}
	default:
		// No device source configured. The compositor cannot guess at
		// a presentation surface, so standalone use is opt-in.
		return fmt.Errorf("wgpu: no device provider: %w", backend.ErrBackendNotAvailable)
	}
	if err := b.shaders.compile(b.device); err != nil {
		b.releaseDevice()
		return err
	}
	b.initialized = true
	return nil
}

// adoptDevice extracts the HAL device and queue from a shared provider.
func (b *Backend) adoptDevice(provider gpucontext.DeviceProvider) error {
	type halProvider interface {
		HalDevice() any
		HalQueue() any
	}
	hp, ok := provider.(halProvider)
	if !ok {
		return fmt.Errorf("wgpu: provider does not expose HAL handles: %w", backend.ErrBackendNotAvailable)
	}
	device, ok := hp.HalDevice().(hal.Device)
	if !ok || device == nil {
		return fmt.Errorf("wgpu: provider HalDevice is not hal.Device: %w", backend.ErrBackendNotAvailable)
	}
	queue, ok := hp.HalQueue().(hal.Queue)
	if !ok || queue == nil {
		return fmt.Errorf("wgpu: provider HalQueue is not hal.Queue: %w", backend.ErrBackendNotAvailable)
	}
	b.device = device
	b.queue = queue
	b.ownsDevice = false
	return nil
}

// openDevice opens a standalone Vulkan device, preferring a discrete
// or integrated GPU over software adapters.
func (b *Backend) openDevice() error {
	halBackend, ok := hal.GetBackend(gputypes.BackendVulkan)
	if !ok {
		return fmt.Errorf("wgpu: vulkan backend not compiled in: %w", backend.ErrBackendNotAvailable)
	}
	instance, err := halBackend.CreateInstance(&hal.InstanceDescriptor{Flags: 0})
	if err != nil {
		return fmt.Errorf("wgpu: create instance: %w", err)
	}
	adapters := instance.EnumerateAdapters(nil)
	if len(adapters) == 0 {
		instance.Destroy()
		return fmt.Errorf("wgpu: no adapters: %w", backend.ErrBackendNotAvailable)
	}
	selected := &adapters[0]
	for i := range adapters {
		if adapters[i].Info.DeviceType == gputypes.DeviceTypeDiscreteGPU ||
			adapters[i].Info.DeviceType == gputypes.DeviceTypeIntegratedGPU {
			selected = &adapters[i]
			break
		}
	}
	openDev, err := selected.Adapter.Open(gputypes.Features(0), gputypes.DefaultLimits())
	if err != nil {
		instance.Destroy()
		return fmt.Errorf("wgpu: open adapter: %w", err)
	}
	b.instance = instance
	b.device = openDev.Device
	b.queue = openDev.Queue
	b.ownsDevice = true
	return nil
}

func (b *Backend) releaseDevice() {
	if b.ownsDevice && b.device != nil {
		b.device.Destroy()
	}
	if b.instance != nil {
		b.instance.Destroy()
		b.instance = nil
	}
	b.device = nil
	b.queue = nil
}

func (b *Backend) Close() {
	if !b.initialized {
		return
	}
	for _, p := range b.pipelines {
		p.destroy(b.device)
	}
	b.pipelines = make(map[pipelineKey]*pipeline)
	b.shaders.destroy(b.device)
	if b.vertexBuf != nil {
		b.device.DestroyBuffer(b.vertexBuf)
		b.vertexBuf, b.vertexCap = nil, 0
	}
	if b.indexBuf != nil {
		b.device.DestroyBuffer(b.indexBuf)
		b.indexBuf, b.indexCap = nil, 0
	}
	if b.uniformBuf != nil {
		b.device.DestroyBuffer(b.uniformBuf)
		b.uniformBuf, b.uniformCap = nil, 0
	}
	b.releaseDevice()
	b.target = nil
	b.passOpen = false
	b.initialized = false
}

// ImportDMABuf is not available: the HAL has no external-memory import
// path yet, so clients fall back to SHM transport.
func (b *Backend) ImportDMABuf(attrs *backend.DMABufAttrs, plane int, desc backend.TextureDesc) (backend.Texture, error) {
	if !b.initialized {
		return nil, backend.ErrNotInitialized
	}
	return nil, fmt.Errorf("wgpu: dmabuf import: %w", backend.ErrUnsupported)
}

// fence is a HAL fence submitted after all previously issued work.
type fence struct {
	b *Backend
	f hal.Fence
}

func (b *Backend) CreateFence() (backend.Fence, error) {
	if !b.initialized {
		return nil, backend.ErrNotInitialized
	}
	f, err := b.device.CreateFence()
	if err != nil {
		return nil, fmt.Errorf("wgpu: create fence: %w", err)
	}
	// An empty submission orders the fence after everything already in
	// the queue.
	if err := b.queue.Submit(nil, f, 1); err != nil {
		b.device.DestroyFence(f)
		return nil, fmt.Errorf("wgpu: submit fence: %w", err)
	}
	return &fence{b: b, f: f}, nil
}

// Fd reports false: the HAL does not export sync file descriptors, so
// callers use the timer fallback for completion.
func (f *fence) Fd() (int, bool) { return -1, false }

func (f *fence) Signaled() bool {
	if f.f == nil {
		return true
	}
	done, err := f.b.device.Wait(f.f, 1, 0)
	return err == nil && done
}

func (f *fence) Close() {
	if f.f != nil {
		f.b.device.DestroyFence(f.f)
		f.f = nil
	}
}

// WaitFence blocks submission until the external fence fd signals.
// The HAL has no queue-side wait for imported fds, so the wait happens
// on the submission thread, which orders identically.
func (b *Backend) WaitFence(fd int) error {
	if !b.initialized {
		return backend.ErrNotInitialized
	}
	pfd := []unix.PollFd{{Fd: int32(fd), Events: unix.POLLIN}}
	for {
		n, err := unix.Poll(pfd, 1000)
		if err == unix.EINTR {
			continue
		}
		if err != nil {
			return fmt.Errorf("wgpu: poll fence fd %d: %w", fd, err)
		}
		if n == 0 {
			return fmt.Errorf("wgpu: fence fd %d did not signal within 1s", fd)
		}
		return nil
	}
}

// BeginFrameQuery is unavailable: the HAL writes timestamps only at
// compute pass boundaries, and composition runs in a graphics pass.
func (b *Backend) BeginFrameQuery() (backend.FrameQuery, error) {
	if !b.initialized {
		return nil, backend.ErrNotInitialized
	}
	return nil, fmt.Errorf("wgpu: frame timing: %w", backend.ErrUnsupported)
}

// ReadPixels is unavailable until the HAL encodes texture-to-buffer
// copies; see HALCommandEncoder.CopyTextureToBuffer in gogpu/wgpu.
func (b *Backend) ReadPixels(r region.Rect, format uint32, dst []byte, stride int32) error {
	if !b.initialized {
		return backend.ErrNotInitialized
	}
	return fmt.Errorf("wgpu: framebuffer readback: %w", backend.ErrUnsupported)
}

func (b *Backend) BeginReadPixels(r region.Rect, format uint32) (backend.ReadPixelsOp, error) {
	if !b.initialized {
		return nil, backend.ErrNotInitialized
	}
	return nil, fmt.Errorf("wgpu: pipelined readback: %w", backend.ErrUnsupported)
}
