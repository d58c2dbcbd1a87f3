package layers

import (
	"errors"
	"fmt"
)

var (
	// ErrDuplicateName indicates a layer name already in the collection.
	ErrDuplicateName = errors.New("duplicate layer name")
	// ErrUnknownLayer indicates a name that is not in the collection.
	ErrUnknownLayer = errors.New("unknown layer")
)

// Collection is the ordered set of layers of one session. Insertion order is
// z-order for non-annotation layers. It is not safe for concurrent use; the
// owning session serialises access.
type Collection struct {
	layers     []*Layer
	vectors    map[string]*Layer
	annotation *Layer
}

func NewCollection() *Collection {
	return &Collection{vectors: make(map[string]*Layer)}
}

// Len returns the number of layers.
func (c *Collection) Len() int { return len(c.layers) }

// Get returns the layer named name.
func (c *Collection) Get(name string) (*Layer, bool) {
	i := c.indexOf(name)
	if i < 0 {
		return nil, false
	}
	return c.layers[i], true
}

// Has reports whether name is in the collection.
func (c *Collection) Has(name string) bool { return c.indexOf(name) >= 0 }

// Names returns the layer names in order.
func (c *Collection) Names() []string {
	names := make([]string, 0, len(c.layers))
	for _, l := range c.layers {
		names = append(names, l.Name)
	}
	return names
}

// Prepare resolves a layer for data and checks it can be added. Every
// non-annotation layer gets a z-index equal to the current size.
func (c *Collection) Prepare(data Data, name, visURL string, opts Options) (*Layer, error) {
	layer, err := Resolve(data, name, visURL, opts)
	if err != nil {
		return nil, err
	}
	if c.Has(layer.Name) {
		return nil, fmt.Errorf("%w: %s", ErrDuplicateName, layer.Name)
	}
	if layer.Kind != KindAnnotation {
		z := len(c.layers)
		layer.ZIndex = &z
	}
	return layer, nil
}

// Append adds layer at the end.
func (c *Collection) Append(layer *Layer) error {
	if c.Has(layer.Name) {
		return fmt.Errorf("%w: %s", ErrDuplicateName, layer.Name)
	}
	c.layers = append(c.layers, layer)
	switch layer.Kind {
	case KindVector:
		c.vectors[layer.Name] = layer
	case KindAnnotation:
		if c.annotation == nil || layer.ExposeAs == LayerTypeAnnotation {
			c.annotation = layer
		}
	}
	return nil
}

// Remove deletes the layer named name.
func (c *Collection) Remove(name string) error {
	i := c.indexOf(name)
	if i < 0 {
		return fmt.Errorf("%w: %s", ErrUnknownLayer, name)
	}
	layer := c.layers[i]
	c.layers = append(c.layers[:i], c.layers[i+1:]...)
	delete(c.vectors, name)
	if c.annotation == layer {
		c.annotation = nil
	}
	return nil
}

// Annotation returns the exposed annotation layer, if any.
func (c *Collection) Annotation() (*Layer, bool) {
	return c.annotation, c.annotation != nil
}

// Vectors returns the vector layer names in insertion order.
func (c *Collection) Vectors() []string {
	var names []string
	for _, l := range c.layers {
		if _, ok := c.vectors[l.Name]; ok {
			names = append(names, l.Name)
		}
	}
	return names
}

// AddAnnotation stores a on the exposed annotation layer. Adding an
// annotation whose meta id is already present replaces it.
func (c *Collection) AddAnnotation(a Annotation) error {
	if c.annotation == nil {
		return ErrNoAnnotationLayer
	}
	c.annotation.addAnnotation(a)
	return nil
}

// Serialize returns the wire form of every layer in order.
func (c *Collection) Serialize() []State {
	out := make([]State, 0, len(c.layers))
	for _, l := range c.layers {
		out = append(out, l.Serialize())
	}
	return out
}

func (c *Collection) indexOf(name string) int {
	for i, l := range c.layers {
		if l.Name == name {
			return i
		}
	}
	return -1
}
