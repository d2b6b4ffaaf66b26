package collector

import (
	"fmt"

	"github.com/lysyi3m/workflow-pulse/app/upstream"
)

// Registry resolves trigger names (youtube, forum, trends) to sources.
type Registry struct {
	sources []Source
	byName  map[string]Source
}

func NewRegistry(sources ...Source) *Registry {
	r := &Registry{byName: make(map[string]Source, len(sources))}
	for _, s := range sources {
		r.sources = append(r.sources, s)
		r.byName[s.Name()] = s
	}
	return r
}

// NewDefaultRegistry builds the three platform sources from settings.
func NewDefaultRegistry(settings *Settings, client *upstream.Client, youtubeAPIKey string, videoPolicy upstream.Policy) *Registry {
	return NewRegistry(
		NewYouTube(client, youtubeAPIKey, settings.YouTube, videoPolicy),
		NewForum(client, settings.Forum),
		NewTrends(settings.Trends),
	)
}

func (r *Registry) Get(name string) (Source, error) {
	s, ok := r.byName[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownSource, name)
	}
	return s, nil
}

// Resolve returns every source for "all", otherwise the named one.
func (r *Registry) Resolve(name string) ([]Source, error) {
	if name == "all" {
		return r.All(), nil
	}
	s, err := r.Get(name)
	if err != nil {
		return nil, err
	}
	return []Source{s}, nil
}

func (r *Registry) All() []Source {
	return append([]Source(nil), r.sources...)
}

func (r *Registry) Names() []string {
	names := make([]string, 0, len(r.sources))
	for _, s := range r.sources {
		names = append(names, s.Name())
	}
	return names
}
