package codec

import (
	"fmt"

	"github.com/netcored/netcore/api"
)

// Constructor builds a fresh api.Codec instance for a listen() scheme.
// Codecs that carry per-process state (HTTP's LRU cache) still produce an
// independent instance per Server so two servers never share it.
type Constructor func() api.Codec

// Registry maps scheme strings ("length", "text", "http") to codec
// constructors; "ws"/"wss" are not registered here and are resolved by
// netserver.BuildCodec instead. Unknown schemes are a startup-time
// error, never a runtime one.
type Registry struct {
	ctors map[string]Constructor
}

// NewRegistry builds a Registry pre-populated with the core's mandated
// codecs; callers may Register additional schemes before any Server
// construction that references them.
func NewRegistry() *Registry {
	r := &Registry{ctors: make(map[string]Constructor)}
	r.Register("length", func() api.Codec { return NewLengthPrefixed() })
	r.Register("text", func() api.Codec { return NewTextLine() })
	r.Register("http", func() api.Codec { return NewHTTP() })
	return r
}

func (r *Registry) Register(scheme string, ctor Constructor) {
	r.ctors[scheme] = ctor
}

// Build constructs a codec for scheme, or a startup error if the scheme
// was never registered.
func (r *Registry) Build(scheme string) (api.Codec, error) {
	ctor, ok := r.ctors[scheme]
	if !ok {
		return nil, fmt.Errorf("%w: %q", api.ErrUnknownScheme, scheme)
	}
	return ctor(), nil
}
