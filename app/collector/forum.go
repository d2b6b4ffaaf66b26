package collector

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"strings"

	"github.com/lysyi3m/workflow-pulse/app/upstream"
)

const (
	forumLikeWeight = 4.0
	forumViewWeight = 0.1
	latestPath      = "/latest.json"
)

// Forum reads the latest topics of a Discourse forum. The feed is not region
// scoped, so the country only labels the produced items.
type Forum struct {
	client   *upstream.Client
	settings ForumSettings
}

func NewForum(client *upstream.Client, settings ForumSettings) *Forum {
	return &Forum{client: client, settings: settings}
}

func (f *Forum) Name() string { return "forum" }

func (f *Forum) Platform() Platform { return PlatformForum }

func ForumScore(likes, replies, views, replyWeight float64) float64 {
	return likes*forumLikeWeight + replies*replyWeight + views*forumViewWeight
}

type latestResponse struct {
	TopicList struct {
		Topics []struct {
			ID         int64  `json:"id"`
			Title      string `json:"title"`
			LikeCount  int64  `json:"like_count"`
			ReplyCount int64  `json:"reply_count"`
			Views      int64  `json:"views"`
		} `json:"topics"`
	} `json:"topic_list"`
}

func (f *Forum) Collect(ctx context.Context, country string) ([]Item, error) {
	country = NormalizeCountry(country)
	baseURL := strings.TrimRight(f.settings.BaseURL, "/")

	var resp latestResponse
	err := f.client.GetJSON(ctx, upstream.Request{
		Source:   f.Name(),
		Endpoint: baseURL + latestPath,
		Policy:   upstream.FailFast(),
	}, &resp)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch latest topics: %w", err)
	}

	topics := resp.TopicList.Topics
	if len(topics) > f.settings.MaxTopics {
		topics = topics[:f.settings.MaxTopics]
	}

	items := make([]Item, 0, len(topics))
	for _, topic := range topics {
		name := normalizeName(topic.Title)
		if name == "" {
			continue
		}

		likes := float64(topic.LikeCount)
		replies := float64(topic.ReplyCount)
		views := float64(topic.Views)

		items = append(items, Item{
			Name:      name,
			Platform:  PlatformForum,
			Country:   country,
			SourceURL: baseURL + "/t/" + strconv.FormatInt(topic.ID, 10),
			Metrics: map[string]float64{
				"likes":   likes,
				"replies": replies,
				"views":   views,
			},
			Score: ForumScore(likes, replies, views, f.settings.ReplyWeight),
		})
	}

	slog.Debug("Forum collection finished", "country", country, "items", len(items))

	return items, nil
}
