package repaint

import (
	"log/slog"

	"golang.org/x/sys/unix"

	"github.com/gocomp/repaint/region"
)

// Surface is one composited window surface. Paint nodes reference
// surfaces; the surface owns the binding to its current buffer.
type Surface struct {
	r *Renderer

	state  *bufferState // current; nil when bufferless
	buffer Buffer       // strong reference while attached

	// ownedSHM keeps a surface-owned shared-memory state alive across
	// detaches so a same-shape re-attach reuses its textures.
	ownedSHM *bufferState

	bufferWatch *DestroyListener

	// acquireFd is an externally supplied fence the GPU must wait on
	// before sampling the buffer, -1 when absent.
	acquireFd int

	// releaseHook, when set, receives a fence fd after each frame that
	// sampled the buffer. The fd becomes readable when the GPU is done
	// reading; the producer may then reuse the buffer storage.
	releaseHook func(fd int)

	releaseFd     int
	releaseFrame  uint64
	releaseOutput *OutputState

	usedThisFrame bool

	// syncError is notified when an acquire-fence wait fails; the
	// host turns this into a protocol error on the client's
	// synchronization resource.
	syncError func(error)

	// shaderError is notified when the surface's color transform
	// cannot be materialized.
	shaderError func(error)
}

// NewSurface registers a surface with the renderer.
func (r *Renderer) NewSurface() *Surface {
	s := &Surface{r: r, acquireFd: -1, releaseFd: -1}
	r.surfaces[s] = struct{}{}
	return s
}

// Destroy detaches the surface and forgets it.
func (s *Surface) Destroy() {
	s.detach()
	if s.ownedSHM != nil {
		s.ownedSHM.destroy()
		s.ownedSHM = nil
	}
	s.dropReleaseFd()
	delete(s.r.surfaces, s)
}

// SetAcquireFence supplies a fence fd the GPU waits on before sampling
// the current buffer. The fd is borrowed, not consumed.
func (s *Surface) SetAcquireFence(fd int) { s.acquireFd = fd }

// SetReleaseHook installs the buffer-release callback. The fd passed to
// the hook stays owned by the renderer until the next frame replaces
// it; producers that keep it longer must dup it.
func (s *Surface) SetReleaseHook(fn func(fd int)) { s.releaseHook = fn }

// SetSyncErrorHandler installs the acquire-fence failure callback.
func (s *Surface) SetSyncErrorHandler(fn func(error)) { s.syncError = fn }

// SetShaderErrorHandler installs the callback notified when the
// surface's color transform cannot be materialized and its nodes fall
// back to a flat replacement color.
func (s *Surface) SetShaderErrorHandler(fn func(error)) { s.shaderError = fn }

// Attach binds a buffer to the surface. Attaching the current buffer
// is a no-op. Attaching nil detaches. Shared-memory states are owned
// by the surface and survive same-shape re-attaches; switching between
// shared-memory and any other kind destroys the owned state.
func (r *Renderer) Attach(s *Surface, buf Buffer) error {
	if buf == s.buffer {
		return nil
	}
	if buf == nil {
		s.detach()
		return nil
	}
	if buf.Destroyed().Fired() {
		return ErrBufferDestroyed
	}

	prevSHM := s.buffer != nil && s.buffer.Type() == BufferSHM
	newSHM := buf.Type() == BufferSHM
	if prevSHM != newSHM && s.ownedSHM != nil {
		s.ownedSHM.destroy()
		s.ownedSHM = nil
	}

	var st *bufferState
	var err error
	switch buf.Type() {
	case BufferSHM:
		if s.ownedSHM != nil && s.ownedSHM.sameShape(buf) {
			st = s.ownedSHM
		} else {
			if s.ownedSHM != nil {
				s.ownedSHM.destroy()
				s.ownedSHM = nil
			}
			st, err = r.newSHMState(buf)
		}
	case BufferDMABuf:
		if pre, ok := r.imported[buf]; ok {
			st = pre
		} else {
			st, err = r.newDMABufState(buf)
		}
	case BufferSolid:
		st = r.newSolidState(buf)
	default:
		return ErrFormatUnsupported
	}
	if err != nil {
		// The surface keeps its previous buffer.
		return err
	}

	s.detach()
	s.state = st
	st.buffer = buf
	s.buffer = buf
	if st.ownedBySurface {
		s.ownedSHM = st
		// The owned state tracks the current buffer's destroy signal
		// so its textures never outlive the producer's storage.
		if st.destroyWatch != nil {
			st.destroyWatch.Remove()
		}
		st.destroyWatch = buf.Destroyed().Add(st.destroy)
	}
	st.surfaces[s] = struct{}{}
	s.bufferWatch = nil
	return nil
}

// FlushDamage accumulates damage into the surface's buffer state and,
// for shared-memory buffers, uploads the dirty texels. The damage is
// in buffer coordinates. On success the buffer is no longer
// CPU-accessed; the producer may reuse its storage once a release
// fence (if hooked) signals.
func (r *Renderer) FlushDamage(s *Surface, damage *region.Region) error {
	if s.state == nil {
		return nil
	}
	return s.state.flushDamage(damage)
}

// detach clears the buffer binding, keeping a surface-owned SHM state
// parked for reuse.
func (s *Surface) detach() {
	if s.state == nil {
		return
	}
	delete(s.state.surfaces, s)
	if s.state.ownedBySurface {
		// A parked state keeps its textures but must not pin the
		// producer's buffer; the recorded shape covers the reuse check.
		s.state.buffer = nil
	} else {
		// Buffer-owned state stays alive until the buffer dies; the
		// surface merely stops referencing it. If this was the last
		// reference, drop it eagerly.
		if len(s.state.surfaces) == 0 {
			s.state.destroy()
		}
	}
	s.state = nil
	s.buffer = nil
	s.acquireFd = -1
}

// dropState is invoked from bufferState.destroy: the state is going
// away, clear every reference the surface holds to it.
func (s *Surface) dropState(st *bufferState) {
	if s.state == st {
		s.state = nil
		s.buffer = nil
		s.acquireFd = -1
	}
	if s.ownedSHM == st {
		s.ownedSHM = nil
	}
}

// installReleaseFd records fd as the surface's release fence, retiring
// the previous one. A previous fd may be discarded when it is from a
// prior frame, which cannot carry a sufficient release guarantee, or
// from the same frame on a different output rendered through the same
// GPU context, whose fence completes before a later-issued fence.
func (s *Surface) installReleaseFd(fd int, frame uint64, o *OutputState) {
	if s.releaseFd >= 0 {
		priorFrame := s.releaseFrame < frame
		sameFrameOtherOutput := s.releaseFrame == frame && s.releaseOutput != o
		if priorFrame || sameFrameOtherOutput {
			unix.Close(s.releaseFd)
		} else {
			Logger().Warn("replacing release fence from same frame and output",
				slog.Uint64("frame", frame))
			unix.Close(s.releaseFd)
		}
	}
	s.releaseFd = fd
	s.releaseFrame = frame
	s.releaseOutput = o
	if s.releaseHook != nil {
		s.releaseHook(fd)
	}
}

func (s *Surface) dropReleaseFd() {
	if s.releaseFd >= 0 {
		unix.Close(s.releaseFd)
		s.releaseFd = -1
	}
}
