package main

import (
	"flag"
	"image"
	"image/color"
	"runtime"
	"time"

	"github.com/cogentcore/webgpu/wgpuglfw"
	"github.com/gekko3d/rend"
	"github.com/gekko3d/rend/rt/core"
	"github.com/gekko3d/rend/rt/gpu"
	"github.com/go-gl/glfw/v3.3/glfw"
	"github.com/go-gl/mathgl/mgl32"
)

func init() {
	runtime.LockOSThread()
}

const gridSize = 16

func checkerboard(size int) image.Image {
	img := image.NewRGBA(image.Rect(0, 0, size, size))
	for y := 0; y < size; y++ {
		for x := 0; x < size; x++ {
			c := color.RGBA{R: 230, G: 230, B: 230, A: 255}
			if (x/8+y/8)%2 == 0 {
				c = color.RGBA{R: 60, G: 90, B: 160, A: 255}
			}
			img.Set(x, y, c)
		}
	}
	return img
}

func main() {
	debug := flag.Bool("debug", false, "Enable debug logging")
	stats := flag.Bool("stats", false, "Print frame statistics every second")
	vsync := flag.Bool("vsync", true, "Wait for vertical sync")
	flag.Parse()

	logger := rend.NewDefaultLogger("cube", *debug)

	if err := glfw.Init(); err != nil {
		panic(err)
	}
	defer glfw.Terminate()

	options := core.DefaultOptions()
	options.VSync = *vsync

	glfw.WindowHint(glfw.ClientAPI, glfw.NoAPI)
	window, err := glfw.CreateWindow(int(options.Width), int(options.Height), "rend cubes", nil, nil)
	if err != nil {
		panic(err)
	}
	defer window.Destroy()

	width, height := window.GetFramebufferSize()
	options.Width, options.Height = uint32(width), uint32(height)

	device, err := gpu.NewWGPUDevice(gpu.WGPUOptions{
		Label:   "cube device",
		Surface: wgpuglfw.GetSurfaceDescriptor(window),
		Width:   options.Width,
		Height:  options.Height,
		VSync:   options.VSync,
	})
	if err != nil {
		logger.Errorf("%v", err)
		return
	}
	defer device.Release()

	renderer, err := rend.NewRendererBuilder().
		WithDevice(device).
		WithLogger(logger).
		WithOptions(options).
		Build()
	if err != nil {
		logger.Errorf("%v", err)
		return
	}
	defer renderer.Close()

	window.SetFramebufferSizeCallback(func(w *glfw.Window, width, height int) {
		if width == 0 || height == 0 {
			return
		}
		o := renderer.Options()
		o.Width, o.Height = uint32(width), uint32(height)
		renderer.SetOptions(o)
	})
	fly := newFlyCamera(mgl32.Vec3{0, 30, 45}, 0, -30)
	mouseCaptured := false
	var lastX, lastY float64
	window.SetKeyCallback(func(w *glfw.Window, key glfw.Key, scancode int, action glfw.Action, mods glfw.ModifierKey) {
		if key == glfw.KeyEscape && action == glfw.Press {
			w.SetShouldClose(true)
		}
		if key == glfw.KeyTab && action == glfw.Press {
			mouseCaptured = !mouseCaptured
			if mouseCaptured {
				w.SetInputMode(glfw.CursorMode, glfw.CursorDisabled)
				lastX, lastY = w.GetCursorPos()
			} else {
				w.SetInputMode(glfw.CursorMode, glfw.CursorNormal)
			}
		}
	})

	cube := renderer.AddMesh(core.CubeMesh())
	texture := renderer.AddTexture(core.TextureFromImage("checkerboard", checkerboard(64), core.MipsGenerate))
	textured := core.DefaultMaterial()
	textured.AlbedoTexture = &texture
	materials := []core.MaterialHandle{
		renderer.AddMaterial(textured),
		renderer.AddMaterial(core.Material{AlbedoColor: mgl32.Vec4{0.9, 0.3, 0.2, 1}, Roughness: 0.6, Reflectance: 0.5}),
		renderer.AddMaterial(core.Material{AlbedoColor: mgl32.Vec4{0.2, 0.8, 0.4, 1}, Unlit: true}),
	}

	type placed struct {
		handle core.ObjectHandle
		pos    mgl32.Vec3
	}
	objects := make([]placed, 0, gridSize*gridSize)
	for x := 0; x < gridSize; x++ {
		for z := 0; z < gridSize; z++ {
			pos := mgl32.Vec3{float32(x-gridSize/2) * 4, 0, float32(z-gridSize/2) * 4}
			h := renderer.AddObject(core.Object{
				Mesh:      cube,
				Material:  materials[(x+z)%len(materials)],
				Transform: core.NewTransform(pos).Matrix(),
			})
			objects = append(objects, placed{handle: h, pos: pos})
		}
	}

	// Transforms are updated from a separate goroutine; the renderer picks them up per frame.
	quit := make(chan struct{})
	defer close(quit)
	go func() {
		start := time.Now()
		ticker := time.NewTicker(16 * time.Millisecond)
		defer ticker.Stop()
		for {
			select {
			case <-quit:
				return
			case <-ticker.C:
			}
			angle := float32(time.Since(start).Seconds())
			for i, o := range objects {
				t := core.NewTransform(o.pos)
				t.Rotation = mgl32.QuatRotate(angle+float32(i)*0.1, mgl32.Vec3{0, 1, 0})
				renderer.SetObjectTransform(o.handle, t.Matrix())
			}
		}
	}()

	lastPrint := time.Now()
	lastFrame := time.Now()
	for !window.ShouldClose() {
		glfw.PollEvents()

		now := time.Now()
		dt := float32(now.Sub(lastFrame).Seconds())
		lastFrame = now

		var look mgl32.Vec2
		if mouseCaptured {
			x, y := window.GetCursorPos()
			look = mgl32.Vec2{float32(x - lastX), float32(y - lastY)}
			lastX, lastY = x, y
		}
		fly.update(pollMove(window), look, dt)

		o := renderer.Options()
		aspect := float32(o.Width) / float32(max(o.Height, 1))
		frame, err := renderer.Render(fly.camera(aspect))
		if err != nil {
			logger.Errorf("render: %v", err)
			break
		}
		if *stats && time.Since(lastPrint) > time.Second {
			lastPrint = time.Now()
			logger.Infof("frame %d in %s\n%s", frame.Frame, frame.FrameTime, renderer.Profiler().StatsString())
		}
	}
}
