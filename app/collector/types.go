package collector

import (
	"context"
	"errors"
)

type Platform string

const (
	PlatformYouTube      Platform = "YouTube"
	PlatformForum        Platform = "Forum"
	PlatformGoogleTrends Platform = "GoogleTrends"
)

var (
	// ErrPreconditionMissing is returned when a source cannot run without
	// configuration it does not have. No network call is made in that case.
	ErrPreconditionMissing = errors.New("source precondition missing")
	ErrUnknownSource       = errors.New("unknown source")
)

// Item is a normalized popularity observation produced by a source.
type Item struct {
	Name      string
	Platform  Platform
	Country   string
	SourceURL string
	Metrics   map[string]float64
	Score     float64
}

// Source collects items for one external platform. Collect returns either the
// complete item list or an error with no items, never a partial result.
type Source interface {
	Name() string
	Platform() Platform
	Collect(ctx context.Context, country string) ([]Item, error)
}
