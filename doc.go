// Package repaint composites z-ordered window surfaces onto output
// framebuffers with damage tracking.
//
// Hosts attach producer buffers (shared memory, external GPU handles
// or solid colors) to surfaces, flush producer damage, and repaint
// outputs with per-frame lists of paint nodes. The renderer keeps the
// work proportional to the damage: shared-memory uploads touch only
// dirty texels, and each output's renderbuffer ring accumulates damage
// per swapchain buffer so partial repaints stay correct across swaps.
//
// GPU access goes through the backend registry; see the backend and
// backend/soft packages. All operations are single-threaded on the
// host's event-loop thread.
package repaint
