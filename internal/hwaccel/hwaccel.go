// Package hwaccel models the GPU device/surface-pool context of
// spec.md §4.3.
//
// github.com/erparts/reisen's public API (as used throughout the
// teacher package) never exposes an hw_device_ctx, a format-selection
// callback, or a surface pool — every reisen.VideoStream decodes
// straight to system-memory frames (see VideoFrame.Data() in
// player.go's copyFrame). There is therefore nothing in the example
// corpus to bind a real hardware backend to, and this package is the
// one place in the module that is intentionally software-only: Context
// always reports BackendNone, and PoolSize/refcounting exist so the
// rest of the pipeline (decoder, renderer) can be written against the
// real contract and slot in a hardware backend later without an API
// change. This is the one component where the spec's Non-goal on GPU
// internals and the corpus's lack of a GPU-context dependency agree.
package hwaccel

import (
	"sync/atomic"

	"github.com/avcore/player/internal/errkind"
)

// Backend identifies a hardware acceleration API. Only BackendNone is
// implemented; the others are named so configuration and logging have
// a stable vocabulary to refer to once a backend is wired in.
type Backend uint8

const (
	BackendNone Backend = iota
	BackendD3D11VA
	BackendDXVA2
)

func (b Backend) String() string {
	switch b {
	case BackendD3D11VA:
		return "d3d11va"
	case BackendDXVA2:
		return "dxva2"
	default:
		return "none"
	}
}

// minPoolSize is spec.md §4.3's empirical floor, independent of the
// per-codec DPB computation.
const minPoolSize = 12

// PoolSize computes initial_pool_size = max(dpb + render_buffering +
// margin, 12), per spec.md §4.3. dpbSize is the codec's decoded-picture
// buffer depth (3-8 typical), renderBuffering is the player's frame
// queue depth (>=4 worst case) plus the display back-buffer chain
// (2-3), and margin absorbs seek overlap.
func PoolSize(dpbSize, renderBuffering, margin int) int {
	size := dpbSize + renderBuffering + margin
	if size < minPoolSize {
		return minPoolSize
	}
	return size
}

// Context is the refcounted GPU device handle shared between the
// decoder and the renderer (spec.md §5: "shared-resource policy").
// Since no backend is implemented, Initialize always yields a
// BackendNone context and callers configured with allow_fallback=true
// proceed in software mode; allow_fallback=false surfaces a typed
// error instead, per spec.md §7.
type Context struct {
	backend   Backend
	poolSize  int
	refcount  atomic.Int32
	allowNone bool
}

// Initialize creates a hardware context for the requested backend. As
// no backend is wired, any backend other than BackendNone is only
// honored if allowFallback is true (falls back to BackendNone);
// otherwise it returns a DeviceInitFailed error.
func Initialize(backend Backend, dpbSize, renderBuffering, margin int, allowFallback bool) (*Context, *errkind.Error) {
	if backend != BackendNone && !allowFallback {
		return nil, errkind.New(errkind.DeviceInitFailed, "hwaccel.Initialize", "hardware backend "+backend.String()+" is not available and fallback is disabled")
	}
	ctx := &Context{backend: BackendNone, poolSize: PoolSize(dpbSize, renderBuffering, margin), allowNone: true}
	ctx.refcount.Store(0)
	return ctx, nil
}

// Backend reports the active backend (always BackendNone today).
func (c *Context) Backend() Backend { return c.backend }

// PoolSize reports the configured surface pool size.
func (c *Context) PoolSize() int { return c.poolSize }

// Acquire increments the refcount; called by each user of the context
// when it starts using it. In this module only the video decoder does
// (decode.VideoDecoder.Open); the renderer never acquires it.
func (c *Context) Acquire() { c.refcount.Add(1) }

// Release decrements the refcount and reports whether this was the
// last releaser, i.e. whether the caller should tear the device down.
func (c *Context) Release() bool {
	return c.refcount.Add(-1) == 0
}
