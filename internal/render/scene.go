package render

import (
	"github.com/go-gl/mathgl/mgl64"
)

// Color is an RGB triple with channels in 0..1.
type Color struct {
	R float64 `json:"r" yaml:"r"`
	G float64 `json:"g" yaml:"g"`
	B float64 `json:"b" yaml:"b"`
}

// Grey returns a color with all channels set to v.
func Grey(v float64) Color {
	return Color{R: v, G: v, B: v}
}

// Mesh is a named mesh instance with a diffuse color.
type Mesh struct {
	Name  string
	Color Color
}

// Light is a point light attached to a node.
type Light struct {
	Position mgl64.Vec3
}

// Node is a scene-graph node. Nodes are owned by the render loop and are
// not safe for concurrent use.
type Node struct {
	name        string
	parent      *Node
	children    []*Node
	position    mgl64.Vec3
	orientation mgl64.Quat
	initial     mgl64.Quat
	scale       mgl64.Vec3
	meshes      []Mesh
	lights      []Light
}

func newNode(name string, parent *Node) *Node {
	return &Node{
		name:        name,
		parent:      parent,
		orientation: mgl64.QuatIdent(),
		initial:     mgl64.QuatIdent(),
		scale:       mgl64.Vec3{1, 1, 1},
	}
}

// NewChild creates and attaches a child node.
func (n *Node) NewChild(name string) *Node {
	c := newNode(name, n)
	n.children = append(n.children, c)
	return c
}

func (n *Node) Name() string            { return n.name }
func (n *Node) Parent() *Node           { return n.parent }
func (n *Node) Children() []*Node       { return n.children }
func (n *Node) Position() mgl64.Vec3    { return n.position }
func (n *Node) Orientation() mgl64.Quat { return n.orientation }
func (n *Node) Scale() mgl64.Vec3       { return n.scale }
func (n *Node) Meshes() []Mesh          { return n.meshes }
func (n *Node) Lights() []Light         { return n.lights }

func (n *Node) SetPosition(p mgl64.Vec3)    { n.position = p }
func (n *Node) SetOrientation(q mgl64.Quat) { n.orientation = q }
func (n *Node) SetScale(s mgl64.Vec3)       { n.scale = s }

// InitialOrientation is the orientation recorded by SetInitialState,
// identity by default.
func (n *Node) InitialOrientation() mgl64.Quat { return n.initial }

// SetInitialState records the current orientation as the initial one.
func (n *Node) SetInitialState() { n.initial = n.orientation }

// Yaw rotates the node about its local vertical axis.
func (n *Node) Yaw(rad float64) {
	n.orientation = n.orientation.Mul(mgl64.QuatRotate(rad, mgl64.Vec3{0, 1, 0})).Normalize()
}

func (n *Node) AttachMesh(m Mesh)   { n.meshes = append(n.meshes, m) }
func (n *Node) AttachLight(l Light) { n.lights = append(n.lights, l) }

// LocalTransform is translate * rotate * scale.
func (n *Node) LocalTransform() mgl64.Mat4 {
	t := mgl64.Translate3D(n.position[0], n.position[1], n.position[2])
	s := mgl64.Scale3D(n.scale[0], n.scale[1], n.scale[2])
	return t.Mul4(n.orientation.Mat4()).Mul4(s)
}

// WorldTransform composes the local transforms from the root down.
func (n *Node) WorldTransform() mgl64.Mat4 {
	if n.parent == nil {
		return n.LocalTransform()
	}
	return n.parent.WorldTransform().Mul4(n.LocalTransform())
}

// Count returns the number of nodes in the subtree, including n.
func (n *Node) Count() int {
	total := 1
	for _, c := range n.children {
		total += c.Count()
	}
	return total
}

// Scene is a minimal scene graph: a root node and ambient light.
type Scene struct {
	root    *Node
	ambient Color
}

// NewScene creates an empty scene.
func NewScene() *Scene {
	return &Scene{root: newNode("root", nil)}
}

func (s *Scene) Root() *Node             { return s.root }
func (s *Scene) Ambient() Color          { return s.ambient }
func (s *Scene) SetAmbientLight(c Color) { s.ambient = c }

// Clear drops every node and resets the root transform and ambient light.
func (s *Scene) Clear() {
	s.root = newNode("root", nil)
	s.ambient = Color{}
}
