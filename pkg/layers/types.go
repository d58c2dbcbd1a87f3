// Package layers models the map layers a session keeps in sync with the
// client. Layers are a closed set of kinds chosen from the data they carry.
package layers

import "encoding/json"

// Kind enumerates supported layer variants.
type Kind string

const (
	KindSimple     Kind = "simple"
	KindTimeSeries Kind = "timeseries"
	KindVector     Kind = "vector"
	KindAnnotation Kind = "annotation"
	KindNoData     Kind = "nodata"
)

// LayerTypeAnnotation selects an annotation layer when no data is supplied.
const LayerTypeAnnotation = "annotation"

// Data is the value a layer renders. The set of implementations is closed.
type Data interface {
	DataName() string
	isData()
}

// RasterData is a single raster source.
type RasterData struct {
	Name   string   `json:"name"`
	Path   string   `json:"path"`
	Bands  []int    `json:"bands,omitempty"`
	NoData *float64 `json:"nodata,omitempty"`
}

func (d RasterData) DataName() string { return d.Name }
func (RasterData) isData()            {}

// RasterCollection is an ordered series of rasters, one per time step.
type RasterCollection struct {
	Name  string       `json:"name"`
	Items []RasterData `json:"items"`
}

func (d RasterCollection) DataName() string { return d.Name }
func (RasterCollection) isData()            {}

// VectorData is a feature collection.
type VectorData struct {
	Name     string          `json:"name"`
	Path     string          `json:"path,omitempty"`
	Features json.RawMessage `json:"features,omitempty"`
}

func (d VectorData) DataName() string { return d.Name }
func (VectorData) isData()            {}

// Options are the optional settings of an add-layer call.
type Options struct {
	LayerType   string         `json:"layer_type,omitempty"`
	System      bool           `json:"system_layer,omitempty"`
	ExposeAs    string         `json:"expose_as,omitempty"`
	Attribution string         `json:"attribution,omitempty"`
	VisOptions  map[string]any `json:"vis_options,omitempty"`
	QueryParams map[string]any `json:"query_params,omitempty"`
}

// Layer is one entry of a Collection.
type Layer struct {
	Name        string
	Kind        Kind
	LayerType   string
	VisURL      string
	ZIndex      *int
	System      bool
	ExposeAs    string
	Attribution string
	VisOptions  map[string]any
	QueryParams map[string]any
	Data        Data
	Annotations []Annotation
}

// LayerName returns the layer name, so a *Layer can be passed wherever a
// named reference is accepted.
func (l *Layer) LayerName() string { return l.Name }

// DataRef is the serialized description of a layer's data.
type DataRef struct {
	Kind  Kind   `json:"kind"`
	Name  string `json:"name"`
	Path  string `json:"path,omitempty"`
	Items int    `json:"items,omitempty"`
}

// State is the serialized form of a Layer.
type State struct {
	Name        string         `json:"name"`
	Kind        Kind           `json:"kind"`
	LayerType   string         `json:"layer_type,omitempty"`
	VisURL      string         `json:"vis_url,omitempty"`
	ZIndex      *int           `json:"zIndex,omitempty"`
	System      bool           `json:"system_layer,omitempty"`
	ExposeAs    string         `json:"expose_as,omitempty"`
	Attribution string         `json:"attribution,omitempty"`
	VisOptions  map[string]any `json:"vis_options,omitempty"`
	QueryParams map[string]any `json:"query_params,omitempty"`
	Data        *DataRef       `json:"data,omitempty"`
	Annotations []Annotation   `json:"annotations,omitempty"`
}

// Serialize returns the layer's wire form.
func (l *Layer) Serialize() State {
	st := State{
		Name:        l.Name,
		Kind:        l.Kind,
		LayerType:   l.LayerType,
		VisURL:      l.VisURL,
		ZIndex:      l.ZIndex,
		System:      l.System,
		ExposeAs:    l.ExposeAs,
		Attribution: l.Attribution,
		VisOptions:  l.VisOptions,
		QueryParams: l.QueryParams,
	}
	switch d := l.Data.(type) {
	case RasterData:
		st.Data = &DataRef{Kind: l.Kind, Name: d.Name, Path: d.Path}
	case RasterCollection:
		st.Data = &DataRef{Kind: l.Kind, Name: d.Name, Items: len(d.Items)}
	case VectorData:
		st.Data = &DataRef{Kind: l.Kind, Name: d.Name, Path: d.Path}
	}
	if len(l.Annotations) > 0 {
		st.Annotations = append([]Annotation(nil), l.Annotations...)
	}
	return st
}
