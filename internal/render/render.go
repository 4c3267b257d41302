// Package render implements the Renderer contract of spec.md §4.8: a
// software path (the only one this corpus has a dependency for) wrapped
// in a mandatory thread-affinity proxy.
//
// The software path and its letterbox/pillarbox projection are lifted
// directly from the teacher's draw.go (CalcProjection) and player.go's
// copyFrame (reuse one *ebiten.Image, WritePixels from decoded pixel
// data, Fill(color.Black) for the no-frame-yet case).
package render

import (
	"image/color"
	"sync"
	"sync/atomic"

	"github.com/hajimehoshi/ebiten/v2"
)

// Frame is the software-path payload: packed RGBA pixels at a given
// resolution. The GPU path of spec.md §4.8 would instead carry an
// opaque surface handle moved (never cloned) from the decoder's
// hwaccel.Context pool; since no hardware backend exists in this
// module (see internal/hwaccel), only this shape is implemented.
type Frame struct {
	RGBA          []byte
	Width, Height int
}

// Renderer is the platform-facing contract of spec.md §4.8.
type Renderer interface {
	Init(width, height int) error
	RenderFrame(frame Frame) error
	Present() error
	ClearCaches()
	OnResize(width, height int)
	RendererName() string
}

// SoftwareRenderer uploads decoded RGBA straight into a reused
// *ebiten.Image, exactly as player.go's copyFrame did. "Present" is a
// no-op marker: Ebitengine drives its own vsync'd draw loop, so the
// actual screen blit happens when the embedding application's Draw
// callback calls DrawInto.
type SoftwareRenderer struct {
	mu          sync.Mutex
	target      *ebiten.Image
	width       int
	height      int
	onBlack     bool
	recreations int
}

func NewSoftwareRenderer() *SoftwareRenderer { return &SoftwareRenderer{} }

func (r *SoftwareRenderer) Init(width, height int) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.target = ebiten.NewImage(width, height)
	r.target.Fill(color.Black)
	r.width, r.height = width, height
	r.onBlack = true
	return nil
}

// RenderFrame writes pixel data into the target image, recreating it
// first if the incoming frame's resolution changed (spec.md §4.8:
// "must tolerate resolution/format change by recreating textures").
func (r *SoftwareRenderer) RenderFrame(frame Frame) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if frame.Width != r.width || frame.Height != r.height {
		r.target = ebiten.NewImage(frame.Width, frame.Height)
		r.width, r.height = frame.Width, frame.Height
		r.recreations++
	}
	r.target.WritePixels(frame.RGBA)
	r.onBlack = false
	return nil
}

// Present is a no-op for the software path: Ebitengine's own draw loop
// owns vsync, this just marks the call happened for symmetry with the
// hardware path's contract.
func (r *SoftwareRenderer) Present() error { return nil }

// ClearCaches drops the cached texture's contents back to black, so a
// seek can't leave a stale frame from the old timeline visible for a
// render tick or two (spec.md §4.10 step 6).
func (r *SoftwareRenderer) ClearCaches() {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.target != nil && !r.onBlack {
		r.target.Fill(color.Black)
		r.onBlack = true
	}
}

func (r *SoftwareRenderer) OnResize(width, height int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if width == r.width && height == r.height {
		return
	}
	r.target = ebiten.NewImage(width, height)
	r.target.Fill(color.Black)
	r.width, r.height = width, height
	r.onBlack = true
}

func (r *SoftwareRenderer) RendererName() string { return "software/ebiten" }

// DrawInto projects the current target into viewport with
// fit-to-window letterbox/pillarbox, exactly reproducing
// draw.go's CalcProjection + Draw.
func (r *SoftwareRenderer) DrawInto(viewport *ebiten.Image) {
	r.mu.Lock()
	target := r.target
	r.mu.Unlock()
	if target == nil {
		return
	}
	geom, filter := CalcProjection(viewport, target)
	var opts ebiten.DrawImageOptions
	opts.GeoM = geom
	opts.Filter = filter
	viewport.DrawImage(target, &opts)
}

// CalcProjection returns the GeoM and recommended ebiten.Filter to
// project frame into viewport, preserving aspect ratio with
// letterbox/pillarbox bars (spec.md §4.8's "aspect-ratio policy").
func CalcProjection(viewport, frame *ebiten.Image) (ebiten.GeoM, ebiten.Filter) {
	frameBounds := frame.Bounds()
	viewBounds := viewport.Bounds()
	vwWidth, vwHeight := viewBounds.Dx(), viewBounds.Dy()
	frWidth, frHeight := frameBounds.Dx(), frameBounds.Dy()

	tx, ty := float64(viewBounds.Min.X), float64(viewBounds.Min.Y)

	var geom ebiten.GeoM
	filter := ebiten.FilterLinear
	wf, hf := float64(vwWidth)/float64(frWidth), float64(vwHeight)/float64(frHeight)
	sf := wf
	if hf < wf {
		sf = hf
	}
	if sf == 1.0 {
		offx := (float64(vwWidth) - float64(frWidth)) / 2
		offy := (float64(vwHeight) - float64(frHeight)) / 2
		geom.Translate(tx+offx, ty+offy)
	} else {
		sfrWidth := float64(frWidth) * sf
		sfrHeight := float64(frHeight) * sf
		geom.Scale(sf, sf)
		geom.Translate(tx+(float64(vwWidth)-sfrWidth)/2, ty+(float64(vwHeight)-sfrHeight)/2)
	}
	return geom, filter
}

// ThreadAffinityProxy wraps a Renderer so every method dispatches
// synchronously onto one designated render/UI thread (spec.md §4.8:
// mandatory for thread-affine platform APIs; Ebitengine's own Image
// operations are one such case). A fast path skips the dispatch
// round-trip when the caller is already executing inside DrainPending
// (i.e. is the render thread itself).
type ThreadAffinityProxy struct {
	target Renderer
	work   chan func()

	onRenderThread atomic.Bool

	nameOnce sync.Once
	name     string
}

func NewThreadAffinityProxy(target Renderer) *ThreadAffinityProxy {
	return &ThreadAffinityProxy{target: target, work: make(chan func(), 16)}
}

// DrainPending executes every call queued via Dispatch since the last
// drain. The embedding application must call this once per engine
// frame from its real render-thread callback (e.g. Ebitengine's Draw).
func (p *ThreadAffinityProxy) DrainPending() {
	p.onRenderThread.Store(true)
	defer p.onRenderThread.Store(false)
	for {
		select {
		case fn := <-p.work:
			fn()
		default:
			return
		}
	}
}

func (p *ThreadAffinityProxy) dispatch(fn func()) {
	if p.onRenderThread.Load() {
		fn()
		return
	}
	done := make(chan struct{})
	p.work <- func() { fn(); close(done) }
	<-done
}

func (p *ThreadAffinityProxy) Init(width, height int) error {
	var err error
	p.dispatch(func() { err = p.target.Init(width, height) })
	return err
}

func (p *ThreadAffinityProxy) RenderFrame(frame Frame) error {
	var err error
	p.dispatch(func() { err = p.target.RenderFrame(frame) })
	return err
}

func (p *ThreadAffinityProxy) Present() error {
	var err error
	p.dispatch(func() { err = p.target.Present() })
	return err
}

func (p *ThreadAffinityProxy) ClearCaches() {
	p.dispatch(p.target.ClearCaches)
}

func (p *ThreadAffinityProxy) OnResize(width, height int) {
	p.dispatch(func() { p.target.OnResize(width, height) })
}

// RendererName caches the underlying name after the first cross-thread
// call, per spec.md §4.8 ("GetRendererName caches after first
// cross-thread call").
func (p *ThreadAffinityProxy) RendererName() string {
	p.nameOnce.Do(func() {
		p.dispatch(func() { p.name = p.target.RendererName() })
	})
	return p.name
}

var _ Renderer = (*SoftwareRenderer)(nil)
var _ Renderer = (*ThreadAffinityProxy)(nil)
