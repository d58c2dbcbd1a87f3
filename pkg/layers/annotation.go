package layers

import (
	"encoding/json"
	"errors"
	"fmt"
)

var (
	// ErrInvalidAnnotation indicates an unknown annotation type or empty coordinates.
	ErrInvalidAnnotation = errors.New("invalid annotation")
	// ErrNoAnnotationLayer indicates the collection exposes no annotation layer.
	ErrNoAnnotationLayer = errors.New("no annotation layer")
)

// AnnotationType enumerates the shapes a client can draw.
type AnnotationType string

const (
	AnnotationPoint     AnnotationType = "point"
	AnnotationRectangle AnnotationType = "rectangle"
	AnnotationPolygon   AnnotationType = "polygon"
)

// Annotation is one drawn shape with its metadata.
type Annotation struct {
	Type        AnnotationType  `json:"type"`
	Coordinates json.RawMessage `json:"coordinates"`
	Meta        map[string]any  `json:"meta"`
}

// NewAnnotation validates the type and coordinates.
func NewAnnotation(annType string, coords json.RawMessage, meta map[string]any) (Annotation, error) {
	switch AnnotationType(annType) {
	case AnnotationPoint, AnnotationRectangle, AnnotationPolygon:
	default:
		return Annotation{}, fmt.Errorf("%w: unknown type %q", ErrInvalidAnnotation, annType)
	}
	if len(coords) == 0 || string(coords) == "null" {
		return Annotation{}, fmt.Errorf("%w: missing coordinates", ErrInvalidAnnotation)
	}
	if meta == nil {
		meta = map[string]any{}
	}
	return Annotation{Type: AnnotationType(annType), Coordinates: coords, Meta: meta}, nil
}

// ID returns meta["id"] in its string form, if present.
func (a Annotation) ID() (string, bool) {
	id, ok := a.Meta["id"]
	if !ok || id == nil {
		return "", false
	}
	return fmt.Sprint(id), true
}

// addAnnotation inserts a, replacing an existing annotation with the same id.
func (l *Layer) addAnnotation(a Annotation) {
	if id, ok := a.ID(); ok {
		for i, existing := range l.Annotations {
			if other, ok := existing.ID(); ok && other == id {
				l.Annotations[i] = a
				return
			}
		}
	}
	l.Annotations = append(l.Annotations, a)
}
