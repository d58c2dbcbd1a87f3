package layers

import (
	"errors"
	"fmt"
)

var (
	// ErrNameRequired indicates a layer kind that cannot derive its own name.
	ErrNameRequired = errors.New("layer name required")
	// ErrUnsupportedData indicates a Data value outside the known set.
	ErrUnsupportedData = errors.New("unsupported layer data")
)

// Resolve picks the layer variant for data. A raster collection needs an
// explicit name; single rasters and vectors default to the data's own name;
// without data, LayerType chooses between an annotation layer and a plain
// no-data layer, and the name is mandatory.
func Resolve(data Data, name, visURL string, opts Options) (*Layer, error) {
	layer := &Layer{
		Name:        name,
		LayerType:   opts.LayerType,
		VisURL:      visURL,
		System:      opts.System,
		ExposeAs:    opts.ExposeAs,
		Attribution: opts.Attribution,
		VisOptions:  opts.VisOptions,
		QueryParams: opts.QueryParams,
		Data:        data,
	}
	switch d := data.(type) {
	case RasterCollection:
		if name == "" {
			return nil, fmt.Errorf("%w: raster collection layers require a name", ErrNameRequired)
		}
		layer.Kind = KindTimeSeries
	case RasterData:
		if layer.Name == "" {
			layer.Name = d.Name
		}
		layer.Kind = KindSimple
	case VectorData:
		if layer.Name == "" {
			layer.Name = d.Name
		}
		layer.Kind = KindVector
	case nil:
		if name == "" {
			return nil, fmt.Errorf("%w: non data layers require a name", ErrNameRequired)
		}
		if opts.LayerType == LayerTypeAnnotation {
			layer.Kind = KindAnnotation
			layer.VisURL = ""
		} else {
			layer.Kind = KindNoData
		}
	default:
		return nil, fmt.Errorf("%w: %T", ErrUnsupportedData, data)
	}
	if layer.Name == "" {
		return nil, fmt.Errorf("%w: %s data has no name", ErrNameRequired, layer.Kind)
	}
	return layer, nil
}

// NeedsIngest reports whether the layer's data must be published to the
// visualization server before the client can render it.
func (l *Layer) NeedsIngest() bool {
	if l.VisURL != "" {
		return false
	}
	switch l.Data.(type) {
	case RasterData, RasterCollection:
		return true
	default:
		return false
	}
}
