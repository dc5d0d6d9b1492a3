// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package resolve

import (
	"context"
	"sync/atomic"
)

// Origin records whether one lookup was answered without contacting the
// service, for example from a local cache.
type Origin struct {
	local atomic.Bool
}

// Local reports whether the lookup was answered locally.
func (o *Origin) Local() bool { return o.local.Load() }

type originKey struct{}

// WithOrigin returns a context carrying a fresh Origin for a single lookup.
func WithOrigin(ctx context.Context) (context.Context, *Origin) {
	o := &Origin{}
	return context.WithValue(ctx, originKey{}, o), o
}

// MarkLocal flags the lookup running under ctx as answered locally. It is a
// no-op when ctx carries no Origin.
func MarkLocal(ctx context.Context) {
	if o, ok := ctx.Value(originKey{}).(*Origin); ok {
		o.local.Store(true)
	}
}
