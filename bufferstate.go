package repaint

import (
	"fmt"
	"log/slog"

	"github.com/gocomp/repaint/backend"
	"github.com/gocomp/repaint/pixfmt"
	"github.com/gocomp/repaint/region"
)

// importMode selects how an external GPU buffer becomes textures.
type importMode uint8

const (
	// importDirect imports the buffer as one texture from plane 0.
	importDirect importMode = iota

	// importPerPlane imports every plane as its own single-plane
	// texture, emulating YUV sampling in the shader.
	importPerPlane
)

// dmabufImportModes is the static import-strategy table keyed by
// fourcc. Formats absent from the table cannot be imported.
var dmabufImportModes = map[uint32]importMode{
	pixfmt.ARGB8888:    importDirect,
	pixfmt.XRGB8888:    importDirect,
	pixfmt.ABGR8888:    importDirect,
	pixfmt.XBGR8888:    importDirect,
	pixfmt.RGB565:      importDirect,
	pixfmt.ARGB2101010: importDirect,
	pixfmt.XRGB2101010: importDirect,
	pixfmt.R8:          importDirect,
	pixfmt.GR88:        importDirect,
	pixfmt.XYUV8888:    importDirect,
	pixfmt.NV12:        importPerPlane,
	pixfmt.NV16:        importPerPlane,
	pixfmt.YUV420:      importPerPlane,
	pixfmt.YUV444:      importPerPlane,
	pixfmt.YUYV:        importPerPlane,
}

// bufferState is the renderer's shadow of an attached buffer: its GPU
// textures, accumulated upload damage and sampling variant. Ownership
// is tagged: shared-memory state belongs to the surface and is reused
// across same-shape attaches, all other state belongs to the buffer
// and dies with its destroy signal.
type bufferState struct {
	r       *Renderer
	buffer  Buffer
	format  *pixfmt.Format
	variant pixfmt.Variant
	w, h    int32

	// SHM only. stride is recorded so a parked state can check shape
	// against a new buffer without holding the old one.
	textures        []backend.Texture
	planes          []shmPlane
	stride          int32
	damage          region.Region // buffer coordinates
	needsFullUpload bool

	solid [4]float32

	ownedBySurface bool
	surfaces       map[*Surface]struct{}
	destroyWatch   *DestroyListener
}

// newSHMState allocates one texture per plane of a shared-memory
// buffer, sized to the plane's sub-sampled dimensions.
func (r *Renderer) newSHMState(buf Buffer) (*bufferState, error) {
	f := pixfmt.ByCode(buf.Format())
	if f == nil {
		return nil, fmt.Errorf("%w: fourcc %#x", ErrFormatUnsupported, buf.Format())
	}
	w, h := buf.Size()
	st := &bufferState{
		r: r, buffer: buf, format: f, variant: f.Variant,
		w: w, h: h,
		planes:          shmLayout(f, w, h, buf.Stride()),
		stride:          buf.Stride(),
		needsFullUpload: true,
		ownedBySurface:  true,
		surfaces:        make(map[*Surface]struct{}),
	}
	for i, p := range f.Planes {
		pw, ph := f.PlaneSize(i, w, h)
		tex, err := r.backend.CreateTexture(backend.TextureDesc{
			Width: pw, Height: ph, Texel: p.Texel,
			Label: fmt.Sprintf("shm %s plane %d", f.Name, i),
		})
		if err != nil {
			st.releaseTextures()
			return nil, fmt.Errorf("repaint: shm texture plane %d: %w", i, err)
		}
		st.textures = append(st.textures, tex)
	}
	return st, nil
}

// newDMABufState imports an external GPU buffer, either directly or
// plane by plane per the import table.
func (r *Renderer) newDMABufState(buf Buffer) (*bufferState, error) {
	attrs := buf.DMABuf()
	f := pixfmt.ByCode(attrs.Format)
	if f == nil {
		return nil, fmt.Errorf("%w: fourcc %#x", ErrFormatUnsupported, attrs.Format)
	}
	mode, ok := dmabufImportModes[attrs.Format]
	if !ok {
		return nil, fmt.Errorf("%w: no import strategy for %s", ErrFormatUnsupported, f.Name)
	}
	st := &bufferState{
		r: r, buffer: buf, format: f, variant: f.Variant,
		w: attrs.Width, h: attrs.Height,
		surfaces: make(map[*Surface]struct{}),
	}
	nplanes := 1
	if mode == importPerPlane {
		nplanes = f.PlaneCount()
	}
	for i := 0; i < nplanes; i++ {
		// Packed-view formats carry one physical plane; every view
		// reinterprets its bytes.
		phys := i
		if f.PackedViews {
			phys = 0
		}
		pw, ph := f.PlaneSize(i, attrs.Width, attrs.Height)
		tex, err := r.backend.ImportDMABuf(attrs, phys, backend.TextureDesc{
			Width: pw, Height: ph, Texel: f.Planes[i].Texel,
			Label: fmt.Sprintf("dmabuf %s plane %d", f.Name, i),
		})
		if err != nil {
			st.releaseTextures()
			return nil, fmt.Errorf("repaint: dmabuf import plane %d: %w", i, err)
		}
		st.textures = append(st.textures, tex)
	}
	st.watchDestroy()
	return st, nil
}

// newSolidState records the premultiplied color; no GPU resources.
func (r *Renderer) newSolidState(buf Buffer) *bufferState {
	w, h := buf.Size()
	st := &bufferState{
		r: r, buffer: buf, variant: pixfmt.VariantSolid,
		w: w, h: h,
		solid:    buf.SolidColor(),
		surfaces: make(map[*Surface]struct{}),
	}
	st.watchDestroy()
	return st
}

// watchDestroy subscribes the state to its buffer's destroy signal.
func (st *bufferState) watchDestroy() {
	st.destroyWatch = st.buffer.Destroyed().Add(st.destroy)
}

// destroy tears the state down: textures are released and every
// referencing surface drops both its buffer reference and its state
// pointer on the spot.
func (st *bufferState) destroy() {
	if st.destroyWatch != nil {
		st.destroyWatch.Remove()
		st.destroyWatch = nil
	}
	for s := range st.surfaces {
		s.dropState(st)
	}
	st.surfaces = nil
	if st.buffer != nil {
		delete(st.r.imported, st.buffer)
	}
	st.releaseTextures()
	st.damage.Clear()
	st.buffer = nil
}

func (st *bufferState) releaseTextures() {
	for _, tex := range st.textures {
		tex.Close()
	}
	st.textures = nil
}

// sameShape reports whether a shared-memory state can be reused for a
// buffer of the given geometry.
func (st *bufferState) sameShape(buf Buffer) bool {
	w, h := buf.Size()
	return st.w == w && st.h == h &&
		st.format != nil && st.format.Code == buf.Format() &&
		st.stride == buf.Stride()
}

// flushDamage uploads pending texel changes for shared-memory buffers.
// The damage argument is in buffer coordinates; it is accumulated into
// the state first, so callers may flush with empty damage to drain
// earlier accumulation. Non-SHM buffers only accumulate.
func (st *bufferState) flushDamage(damage *region.Region) error {
	if damage != nil {
		st.damage.Union(damage)
	}
	if st.buffer == nil || st.buffer.Type() != BufferSHM {
		return nil
	}
	if st.damage.Empty() && !st.needsFullUpload {
		return nil
	}

	data := st.buffer.BeginAccess()
	defer st.buffer.EndAccess()

	if st.needsFullUpload || st.r.forceFullUpload {
		for i, tex := range st.textures {
			p := st.planes[i]
			if err := tex.Upload(data[p.offset:], p.stride); err != nil {
				return fmt.Errorf("repaint: full upload plane %d: %w", i, err)
			}
		}
		st.needsFullUpload = false
		st.damage.Clear()
		return nil
	}

	for _, rc := range st.damage.Rects() {
		for i, tex := range st.textures {
			p := st.planes[i]
			hs := st.format.HSubsampling(i)
			vs := st.format.VSubsampling(i)
			pr := region.Rect{
				X0: rc.X0 / hs,
				Y0: rc.Y0 / vs,
				X1: (rc.X1 + hs - 1) / hs,
				Y1: (rc.Y1 + vs - 1) / vs,
			}
			if err := tex.UploadRect(data[p.offset:], p.stride, pr); err != nil {
				// Degrade to a full upload next flush.
				st.needsFullUpload = true
				Logger().Warn("partial upload failed, scheduling full upload",
					slog.Int("plane", i), slog.Any("error", err))
				return fmt.Errorf("repaint: partial upload plane %d: %w", i, err)
			}
		}
	}
	st.damage.Clear()
	return nil
}
