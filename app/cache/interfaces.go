package cache

import "context"

// ListCache is what the read API needs from a cache
type ListCache interface {
	ListKey(ctx context.Context, platform, country string, limit int) (string, error)
	GetList(ctx context.Context, key string) ([]byte, bool, error)
	SetList(ctx context.Context, key string, payload []byte) error
}

// Invalidator is what a collection run needs from a cache
type Invalidator interface {
	Invalidate(ctx context.Context) error
}

var (
	_ ListCache   = (*Cache)(nil)
	_ Invalidator = (*Cache)(nil)
)
