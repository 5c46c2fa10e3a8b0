package rend

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/gekko3d/rend/rt/core"
	"github.com/gekko3d/rend/rt/culling"
	"github.com/gekko3d/rend/rt/gpu"
	"github.com/gekko3d/rend/rt/instruction"
	"github.com/gekko3d/rend/rt/resources"
	"github.com/google/uuid"
)

var (
	// ErrClosed is returned by Render after Close.
	ErrClosed = errors.New("rend: renderer closed")
	// ErrDeviceInitialization is returned by Build when no GPU device can be acquired.
	ErrDeviceInitialization = gpu.ErrDeviceInitialization
)

// Statistics describes one rendered frame.
type Statistics struct {
	Frame     uint64
	FrameTime time.Duration
	Timings   map[string]time.Duration

	ObjectCount   int
	MeshCount     int
	TextureCount  int
	MaterialCount int

	InstructionsApplied int
	InstructionErrors   int

	DispatchGroups uint32
	// DrawCommands is the number of indirect commands issued; culled slots draw nothing.
	DrawCommands uint32
}

// Renderer is safe for concurrent use: any goroutine may add, change and remove
// resources while one goroutine calls Render. Changes become visible at the next frame.
type Renderer struct {
	id     uuid.UUID
	logger Logger

	device     gpu.Device
	ownsDevice bool

	stream    *instruction.StreamPair
	meshes    *resources.MeshManager
	textures  *resources.TextureManager
	materials *resources.MaterialManager
	objects   *resources.ObjectManager

	culling  *culling.CullingPass
	cullData *culling.CullingPassData
	profiler *Profiler

	renderMu sync.Mutex
	frame    uint64
	closed   bool

	optionsMu sync.RWMutex
	options   core.Options
}

func newRenderer(device gpu.Device, ownsDevice bool, logger Logger, options core.Options) (*Renderer, error) {
	meshes, err := resources.NewMeshManager(device, WithSubsystem(logger, "meshes"))
	if err != nil {
		return nil, fmt.Errorf("failed to create mesh manager: %w", err)
	}
	pass, err := culling.NewCullingPass(device, WithSubsystem(logger, "culling"))
	if err != nil {
		meshes.Release()
		return nil, err
	}

	r := &Renderer{
		id:         uuid.New(),
		logger:     logger,
		device:     device,
		ownsDevice: ownsDevice,
		stream:     instruction.NewStreamPair(),
		meshes:     meshes,
		textures:   resources.NewTextureManager(device, WithSubsystem(logger, "textures")),
		materials:  resources.NewMaterialManager(device),
		objects:    resources.NewObjectManager(device),
		culling:    pass,
		profiler:   NewProfiler(),
		options:    options,
	}
	if err := device.Configure(options.Width, options.Height, options.VSync); err != nil {
		r.ownsDevice = false
		r.release()
		return nil, fmt.Errorf("failed to configure device: %w", err)
	}
	logger.Infof("renderer %s ready, %dx%d vsync=%v", r.id, options.Width, options.Height, options.VSync)
	return r, nil
}

func (r *Renderer) ID() uuid.UUID { return r.id }

func (r *Renderer) Logger() Logger { return r.logger }

// Profiler exposes the frame timings of the last Render. Only read it from the render goroutine.
func (r *Renderer) Profiler() *Profiler { return r.profiler }

func (r *Renderer) AddMesh(mesh core.Mesh) core.MeshHandle {
	h := r.meshes.Allocate()
	r.stream.Push(instruction.AddMesh{Handle: h, Mesh: mesh})
	return h
}

func (r *Renderer) RemoveMesh(h core.MeshHandle) {
	r.stream.Push(instruction.RemoveMesh{Handle: h})
}

func (r *Renderer) AddTexture(tex core.Texture) core.TextureHandle {
	h := r.textures.Allocate()
	r.stream.Push(instruction.AddTexture{Handle: h, Texture: tex})
	return h
}

func (r *Renderer) RemoveTexture(h core.TextureHandle) {
	r.stream.Push(instruction.RemoveTexture{Handle: h})
}

func (r *Renderer) AddMaterial(mat core.Material) core.MaterialHandle {
	h := r.materials.Allocate()
	r.stream.Push(instruction.AddMaterial{Handle: h, Material: mat})
	return h
}

// UpdateMaterial replaces the material behind a live handle. Objects keep their slot, so
// they pick up the new record at the next frame.
func (r *Renderer) UpdateMaterial(h core.MaterialHandle, mat core.Material) {
	r.stream.Push(instruction.UpdateMaterial{Handle: h, Material: mat})
}

func (r *Renderer) RemoveMaterial(h core.MaterialHandle) {
	r.stream.Push(instruction.RemoveMaterial{Handle: h})
}

func (r *Renderer) AddObject(obj core.Object) core.ObjectHandle {
	h := r.objects.Allocate()
	r.stream.Push(instruction.AddObject{Handle: h, Object: obj})
	return h
}

func (r *Renderer) SetObjectTransform(h core.ObjectHandle, transform core.AffineTransform) {
	r.stream.Push(instruction.SetObjectTransform{Handle: h, Transform: transform})
}

func (r *Renderer) RemoveObject(h core.ObjectHandle) {
	r.stream.Push(instruction.RemoveObject{Handle: h})
}

// SetOptions takes effect at the next frame.
func (r *Renderer) SetOptions(options core.Options) {
	r.stream.Push(instruction.SetOptions{Options: options})
}

// Options returns the options of the most recent frame.
func (r *Renderer) Options() core.Options {
	r.optionsMu.RLock()
	defer r.optionsMu.RUnlock()
	return r.options
}

// reclaimOnFailure marks the handle of a failed Add for removal so its slot is freed by the
// next Ready instead of staying allocated.
func reclaimOnFailure(err error, remove func() error) error {
	if err != nil {
		remove()
	}
	return err
}

func (r *Renderer) apply(in instruction.Instruction) error {
	switch in := in.(type) {
	case instruction.AddMesh:
		return reclaimOnFailure(r.meshes.Fill(in.Handle, in.Mesh), func() error { return r.meshes.Remove(in.Handle) })
	case instruction.RemoveMesh:
		return r.meshes.Remove(in.Handle)
	case instruction.AddTexture:
		return reclaimOnFailure(r.textures.Fill(in.Handle, in.Texture), func() error { return r.textures.Remove(in.Handle) })
	case instruction.RemoveTexture:
		return r.textures.Remove(in.Handle)
	case instruction.AddMaterial:
		return reclaimOnFailure(r.materials.Fill(in.Handle, in.Material, r.textures), func() error { return r.materials.Remove(in.Handle) })
	case instruction.UpdateMaterial:
		return r.materials.Update(in.Handle, in.Material, r.textures)
	case instruction.RemoveMaterial:
		return r.materials.Remove(in.Handle)
	case instruction.AddObject:
		return reclaimOnFailure(r.objects.Fill(in.Handle, in.Object, r.meshes, r.materials), func() error { return r.objects.Remove(in.Handle) })
	case instruction.SetObjectTransform:
		return r.objects.SetObjectTransform(in.Handle, in.Transform)
	case instruction.RemoveObject:
		return r.objects.Remove(in.Handle)
	case instruction.SetOptions:
		if err := r.device.Configure(in.Options.Width, in.Options.Height, in.Options.VSync); err != nil {
			return err
		}
		r.optionsMu.Lock()
		r.options = in.Options
		r.optionsMu.Unlock()
		return nil
	default:
		return fmt.Errorf("rend: unhandled instruction %s", in.Kind())
	}
}

// Render applies every change queued since the last frame, culls the scene against
// camera and submits the frame.
func (r *Renderer) Render(camera core.Camera) (Statistics, error) {
	r.renderMu.Lock()
	defer r.renderMu.Unlock()

	if r.closed {
		return Statistics{}, ErrClosed
	}

	start := time.Now()
	r.frame++
	r.profiler.Reset()
	stats := Statistics{Frame: r.frame}

	r.profiler.BeginScope(ScopeInstructions)
	r.stream.Swap()
	stats.InstructionsApplied = r.stream.Drain(func(in instruction.Instruction) {
		if err := r.apply(in); err != nil {
			stats.InstructionErrors++
			r.logger.Warnf("frame %d: %s failed: %v", r.frame, in.Kind(), err)
		}
	})
	r.profiler.EndScope(ScopeInstructions)

	r.profiler.BeginScope(ScopeResources)
	if err := r.meshes.Ready(); err != nil {
		return stats, fmt.Errorf("failed to ready meshes: %w", err)
	}
	r.textures.Ready()
	if err := r.materials.Ready(); err != nil {
		return stats, fmt.Errorf("failed to ready materials: %w", err)
	}
	r.profiler.EndScope(ScopeResources)

	r.profiler.BeginScope(ScopeObjects)
	objects := r.objects.Ready(r.meshes)
	input, err := r.objects.Upload(objects)
	if err != nil {
		return stats, fmt.Errorf("failed to upload objects: %w", err)
	}
	r.profiler.EndScope(ScopeObjects)
	count := uint32(len(objects))

	r.profiler.BeginScope(ScopeCulling)
	data, err := r.culling.Prepare(r.cullData, count, "renderer "+r.id.String())
	if err != nil {
		return stats, err
	}
	r.cullData = data

	frame, err := r.device.BeginFrame()
	if err != nil {
		return stats, fmt.Errorf("failed to begin frame: %w", err)
	}
	defer frame.Release()
	stats.DispatchGroups, err = r.culling.Run(frame, input, core.NewCullUniform(camera, count), data)
	if err != nil {
		return stats, err
	}
	r.profiler.EndScope(ScopeCulling)

	r.profiler.BeginScope(ScopeSubmit)
	options := r.Options()
	err = frame.DrawIndexedIndirectCount(gpu.IndirectDrawDescriptor{
		VertexBuffer: r.meshes.VertexBuffer(),
		IndexBuffer:  r.meshes.IndexBuffer(),
		Objects:      data.Output,
		Materials:    r.materials.Buffer(),
		Camera:       data.Uniform,
		Indirect:     data.Indirect,
		Count:        data.Count,
		MaxCount:     count,
		Ambient:      options.AmbientLight,
	})
	if err != nil {
		return stats, fmt.Errorf("failed to record draw: %w", err)
	}
	if err := frame.Submit(); err != nil {
		return stats, fmt.Errorf("failed to submit frame %d: %w", r.frame, err)
	}
	r.profiler.EndScope(ScopeSubmit)
	stats.DrawCommands = count

	stats.ObjectCount = len(objects)
	stats.MeshCount = r.meshes.Len()
	stats.TextureCount = r.textures.Len()
	stats.MaterialCount = r.materials.Len()
	r.profiler.SetCount("objects", stats.ObjectCount)
	r.profiler.SetCount("meshes", stats.MeshCount)
	r.profiler.SetCount("textures", stats.TextureCount)
	r.profiler.SetCount("materials", stats.MaterialCount)
	r.profiler.SetCount("groups", int(stats.DispatchGroups))
	r.profiler.SetCount("errors", stats.InstructionErrors)

	stats.FrameTime = time.Since(start)
	stats.Timings = r.profiler.Timings()
	return stats, nil
}

// Close releases every GPU resource. Instructions still queued are dropped.
func (r *Renderer) Close() error {
	r.renderMu.Lock()
	defer r.renderMu.Unlock()
	if r.closed {
		return nil
	}
	r.closed = true
	r.release()
	r.logger.Infof("renderer %s closed after %d frames", r.id, r.frame)
	return nil
}

func (r *Renderer) release() {
	r.cullData.Release()
	r.cullData = nil
	r.culling.Release()
	r.objects.Release()
	r.materials.Release()
	r.textures.Release()
	r.meshes.Release()
	if r.ownsDevice {
		r.device.Release()
	}
}
