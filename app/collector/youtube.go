package collector

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"strconv"
	"strings"

	"github.com/lysyi3m/workflow-pulse/app/upstream"
	"golang.org/x/time/rate"
)

const (
	videoViewWeight = 0.6
	videoLikeWeight = 3.0
	watchURLPrefix  = "https://www.youtube.com/watch?v="
)

type YouTube struct {
	client   *upstream.Client
	apiKey   string
	settings YouTubeSettings
	policy   upstream.Policy
}

func NewYouTube(client *upstream.Client, apiKey string, settings YouTubeSettings, policy upstream.Policy) *YouTube {
	if policy == nil {
		policy = upstream.FailFast()
	}
	return &YouTube{
		client:   client,
		apiKey:   apiKey,
		settings: settings,
		policy:   policy,
	}
}

func (y *YouTube) Name() string { return "youtube" }

func (y *YouTube) Platform() Platform { return PlatformYouTube }

// VideoScore computes the rollup score and engagement ratios for a video.
// Ratios are zero when the video has no views.
func VideoScore(views, likes, comments, commentWeight float64) (score, likeRatio, commentRatio float64) {
	if views > 0 {
		likeRatio = likes / views
		commentRatio = comments / views
	}
	score = views*videoViewWeight + likes*videoLikeWeight + comments*commentWeight
	return score, likeRatio, commentRatio
}

type searchResponse struct {
	Items []struct {
		ID struct {
			VideoID string `json:"videoId"`
		} `json:"id"`
	} `json:"items"`
}

type videosResponse struct {
	Items []struct {
		ID      string `json:"id"`
		Snippet struct {
			Title string `json:"title"`
		} `json:"snippet"`
		Statistics struct {
			ViewCount    string `json:"viewCount"`
			LikeCount    string `json:"likeCount"`
			CommentCount string `json:"commentCount"`
		} `json:"statistics"`
	} `json:"items"`
}

func (y *YouTube) Collect(ctx context.Context, country string) ([]Item, error) {
	country = NormalizeCountry(country)

	if y.apiKey == "" {
		slog.Error("YouTube API key not configured, skipping collection", "country", country)
		return nil, fmt.Errorf("%w: youtube api key", ErrPreconditionMissing)
	}

	limiter := rate.NewLimiter(rate.Inf, 1)
	if pause := y.settings.Pause(); pause > 0 {
		limiter = rate.NewLimiter(rate.Every(pause), 1)
	}

	ids, err := y.searchVideoIDs(ctx, limiter, country)
	if err != nil {
		return nil, err
	}

	items := make([]Item, 0, len(ids))
	batchSize := max(y.settings.BatchSize, 1)
	for start := 0; start < len(ids); start += batchSize {
		end := min(start+batchSize, len(ids))

		batch, err := y.fetchStatistics(ctx, limiter, country, ids[start:end])
		if err != nil {
			return nil, err
		}
		items = append(items, batch...)
	}

	slog.Debug("YouTube collection finished", "country", country, "ids", len(ids), "items", len(items))

	return items, nil
}

// searchVideoIDs runs one id-only search per keyword and returns the
// de-duplicated ids in discovery order, capped at MaxIDs.
func (y *YouTube) searchVideoIDs(ctx context.Context, limiter *rate.Limiter, country string) ([]string, error) {
	seen := make(map[string]bool)
	var ids []string

	for _, keyword := range y.settings.Keywords {
		if len(ids) >= y.settings.MaxIDs {
			break
		}
		if err := limiter.Wait(ctx); err != nil {
			return nil, fmt.Errorf("search pacing interrupted: %w", err)
		}

		params := url.Values{
			"part":       {"id"},
			"q":          {keyword},
			"type":       {"video"},
			"regionCode": {country},
			"maxResults": {strconv.Itoa(y.settings.SearchResults)},
			"key":        {y.apiKey},
		}

		var resp searchResponse
		err := y.client.GetJSON(ctx, upstream.Request{
			Source:   y.Name(),
			Endpoint: y.settings.BaseURL + "/search",
			Params:   params,
			Policy:   y.policy,
		}, &resp)
		if err != nil {
			return nil, fmt.Errorf("failed to search %q: %w", keyword, err)
		}

		for _, it := range resp.Items {
			id := it.ID.VideoID
			if id == "" || seen[id] {
				continue
			}
			seen[id] = true
			ids = append(ids, id)
			if len(ids) >= y.settings.MaxIDs {
				break
			}
		}
	}

	return ids, nil
}

func (y *YouTube) fetchStatistics(ctx context.Context, limiter *rate.Limiter, country string, ids []string) ([]Item, error) {
	if err := limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("statistics pacing interrupted: %w", err)
	}

	params := url.Values{
		"part": {"statistics,snippet"},
		"id":   {strings.Join(ids, ",")},
		"key":  {y.apiKey},
	}

	var resp videosResponse
	err := y.client.GetJSON(ctx, upstream.Request{
		Source:   y.Name(),
		Endpoint: y.settings.BaseURL + "/videos",
		Params:   params,
		Policy:   y.policy,
	}, &resp)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch statistics for %d videos: %w", len(ids), err)
	}

	items := make([]Item, 0, len(resp.Items))
	for _, v := range resp.Items {
		name := normalizeName(v.Snippet.Title)
		if name == "" {
			continue
		}

		views := parseCount(v.Statistics.ViewCount)
		likes := parseCount(v.Statistics.LikeCount)
		comments := parseCount(v.Statistics.CommentCount)
		score, likeRatio, commentRatio := VideoScore(views, likes, comments, y.settings.CommentWeight)

		items = append(items, Item{
			Name:      name,
			Platform:  PlatformYouTube,
			Country:   country,
			SourceURL: watchURLPrefix + v.ID,
			Metrics: map[string]float64{
				"views":                 views,
				"likes":                 likes,
				"comments":              comments,
				"like_to_view_ratio":    likeRatio,
				"comment_to_view_ratio": commentRatio,
			},
			Score: score,
		})
	}

	return items, nil
}

// parseCount reads the string-encoded counters of the videos API. Hidden
// counters are omitted upstream and count as zero.
func parseCount(s string) float64 {
	if s == "" {
		return 0
	}
	n, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0
	}
	return n
}
