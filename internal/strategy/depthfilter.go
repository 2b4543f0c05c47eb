package strategy

import (
	"math"
	"strings"

	"github.com/gitcollab/core/internal/classerr"
	"github.com/gitcollab/core/internal/events"
)

// allowedFilters is the closed set of partial-clone filter specs accepted by
// ParseDepthFilter.
var allowedFilters = map[string]bool{"blob:none": true, "tree:0": true}

// DepthFilter is the parsed, validated depth/filter pair for a clone or
// fetch operation.
type DepthFilter struct {
	Depth   int32  // 0 means "not requested"
	Filter  string // "" means "not requested"
	Ignored []string
}

// ParseDepthFilter validates depth (must be a positive int32, i32::MAX
// accepted as "infinite shallow") and filter (must be one of the known
// partial-clone specs after trimming, empty-after-trim ignored). Zero and
// negative depths are rejected; math.MaxInt32 is accepted.
func ParseDepthFilter(depth *int32, rawFilter string) (DepthFilter, error) {
	var out DepthFilter

	if depth != nil {
		if *depth <= 0 {
			return DepthFilter{}, classerr.ProtocolError("depth must be a positive integer").
				WithContext("depth", *depth).Build()
		}
		if int64(*depth) > math.MaxInt32 {
			return DepthFilter{}, classerr.ProtocolError("depth exceeds maximum").
				WithContext("depth", *depth).Build()
		}
		out.Depth = *depth
	}

	trimmed := strings.TrimSpace(rawFilter)
	switch {
	case trimmed == "":
		// not requested
	case allowedFilters[trimmed]:
		out.Filter = trimmed
	default:
		return DepthFilter{}, classerr.ProtocolError("unsupported partial-clone filter").
			WithContext("filter", trimmed).Build()
	}

	return out, nil
}

// PartialFilterCapability reports whether the underlying transport can honor
// a partial-clone filter, and if not, whether the engine falls back to a
// full shallow clone rather than failing outright.
type PartialFilterCapability struct {
	Supported      bool
	FallbackShallow bool
}

// ResolvePartialFilter decides the engine's behavior when a filter was
// requested but the transport lacks partial-clone support: it always falls
// back to a plain shallow clone rather than erroring, since go-git (the
// transport this engine is built on) has no partial-clone capability. Emits
// TransportPartialFilterCapability, and when unsupported, also
// TransportPartialFilterUnsupported and TransportPartialFilterFallback.
func ResolvePartialFilter(filter string, sink events.Sink) PartialFilterCapability {
	if sink == nil {
		sink = events.NopSink{}
	}
	if filter == "" {
		return PartialFilterCapability{Supported: true}
	}
	sink.Publish(events.TransportPartialFilterCapability{Supported: false})
	sink.Publish(events.TransportPartialFilterUnsupported{Filter: filter})
	sink.Publish(events.TransportPartialFilterFallback{Shallow: true})
	return PartialFilterCapability{Supported: false, FallbackShallow: true}
}
