package repaint

import "github.com/gocomp/repaint/region"

// PaintNode links one surface to one output for a single frame. Nodes
// are ephemeral values: hosts build the back-to-front list each frame
// in a NodeList and the renderer never retains them across frames.
type PaintNode struct {
	// Surface supplies the sampled buffer.
	Surface *Surface

	// ViewTransform maps surface coordinates to global coordinates.
	ViewTransform Matrix

	// SurfaceToBuffer maps surface coordinates to buffer pixels,
	// including the y-flip when the buffer origin is bottom-left.
	SurfaceToBuffer Matrix

	// SurfaceW and SurfaceH bound the surface coordinate space.
	SurfaceW, SurfaceH int32

	// Visible is the node's visible region in global coordinates,
	// already clipped against occluders by the host.
	Visible region.Region

	// FullyOpaque marks every pixel opaque; the declared Opaque
	// region is ignored.
	FullyOpaque bool

	// Opaque is the surface-local region the producer declared
	// opaque.
	Opaque region.Region

	// Alpha is the node-level fade in [0, 1].
	Alpha float32

	// Scissor restricts drawing in surface coordinates. Nil means
	// unrestricted.
	Scissor *region.Region

	// ValidTransform is set when the combined transform preserves
	// axis alignment (translation, flips, 90-degree rotations).
	ValidTransform bool

	// NeedsFilter forces bilinear sampling regardless of the
	// transform analysis.
	NeedsFilter bool

	// ColorTransform converts the node's content to the output space.
	// Nil means identity.
	ColorTransform *ColorTransform

	// Placeholder suppresses sampling and substitutes
	// PlaceholderColor, used while content is on a direct-display
	// plane.
	Placeholder bool

	// PlaceholderColor is the premultiplied substitute, also used as
	// the fallback when the color transform cannot be materialized.
	PlaceholderColor [4]float32

	// Plane tags the compositing plane; only plane 0 is composited
	// by the renderer.
	Plane int
}

// NodeList is a reusable back-to-front node sequence. Reset keeps the
// backing array so steady-state frames do not allocate.
type NodeList struct {
	nodes []PaintNode
}

// Reset empties the list, retaining capacity.
func (l *NodeList) Reset() {
	for i := range l.nodes {
		l.nodes[i] = PaintNode{}
	}
	l.nodes = l.nodes[:0]
}

// Add appends a node and returns a pointer valid until the next Reset.
func (l *NodeList) Add(n PaintNode) *PaintNode {
	l.nodes = append(l.nodes, n)
	return &l.nodes[len(l.nodes)-1]
}

// Len returns the node count.
func (l *NodeList) Len() int { return len(l.nodes) }

// Nodes returns the nodes in back-to-front order.
func (l *NodeList) Nodes() []PaintNode { return l.nodes }
