package collector

import (
	"fmt"
	"log/slog"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

const (
	DefaultYouTubeBaseURL     = "https://www.googleapis.com/youtube/v3"
	DefaultMaxVideoIDs        = 200
	DefaultStatsBatchSize     = 50
	DefaultSearchResults      = 50
	DefaultSearchPause        = 300 * time.Millisecond
	DefaultCommentWeight      = 10.0
	DefaultForumBaseURL       = "https://community.n8n.io"
	DefaultMaxForumTopics     = 40
	DefaultReplyWeight        = 3.0
	DefaultTrendMultiplier    = 1.0
	maxYouTubeBatchSize       = 50
	defaultHighMultiplier     = 1.2
	defaultHighMultiplierCode = "IN"
)

var DefaultYouTubeKeywords = []string{
	"n8n workflow",
	"n8n automation",
	"n8n google sheets",
	"n8n slack",
	"n8n gmail automation",
	"n8n whatsapp bot",
	"n8n notion",
	"n8n airtable",
	"n8n api automation",
}

var DefaultTrendTable = map[string]float64{
	"n8n workflow":         100,
	"n8n automation":       95,
	"n8n ai automation":    90,
	"n8n api automation":   80,
	"n8n whatsapp bot":     75,
	"n8n google sheets":    70,
	"n8n slack":            65,
	"n8n gmail automation": 60,
	"n8n notion":           55,
	"n8n airtable":         50,
}

type Settings struct {
	YouTube YouTubeSettings `yaml:"youtube"`
	Forum   ForumSettings   `yaml:"forum"`
	Trends  TrendSettings   `yaml:"trends"`
}

type YouTubeSettings struct {
	BaseURL       string   `yaml:"base_url"`
	Keywords      []string `yaml:"keywords"`
	MaxIDs        int      `yaml:"max_ids"`
	BatchSize     int      `yaml:"batch_size"`
	SearchResults int      `yaml:"search_results"`
	PauseMS       *int     `yaml:"pause_ms"`
	CommentWeight float64  `yaml:"comment_weight"`
}

func (s YouTubeSettings) Pause() time.Duration {
	if s.PauseMS == nil {
		return DefaultSearchPause
	}
	return time.Duration(*s.PauseMS) * time.Millisecond
}

type ForumSettings struct {
	BaseURL     string  `yaml:"base_url"`
	MaxTopics   int     `yaml:"max_topics"`
	ReplyWeight float64 `yaml:"reply_weight"`
}

type TrendSettings struct {
	Keywords    map[string]float64 `yaml:"keywords"`
	Multipliers map[string]float64 `yaml:"multipliers"`
}

// DefaultSettings returns the built-in source constants.
func DefaultSettings() *Settings {
	s := &Settings{}
	applyDefaults(s)
	return s
}

// LoadSettings reads source overrides from a YAML file. A missing file yields the defaults.
func LoadSettings(path string) (*Settings, error) {
	if path == "" {
		return DefaultSettings(), nil
	}

	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		slog.Debug("Source settings file not found, using defaults", "path", path)
		return DefaultSettings(), nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read file: %w", err)
	}

	var settings Settings
	if err := yaml.Unmarshal(data, &settings); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}

	if err := validateSettings(&settings); err != nil {
		return nil, fmt.Errorf("invalid source settings %s: %w", path, err)
	}

	applyDefaults(&settings)

	slog.Debug("Source settings loaded",
		"path", path,
		"youtube_keywords", len(settings.YouTube.Keywords),
		"trend_keywords", len(settings.Trends.Keywords))

	return &settings, nil
}

func applyDefaults(s *Settings) {
	if s.YouTube.BaseURL == "" {
		s.YouTube.BaseURL = DefaultYouTubeBaseURL
	}
	if len(s.YouTube.Keywords) == 0 {
		s.YouTube.Keywords = append([]string(nil), DefaultYouTubeKeywords...)
	}
	if s.YouTube.MaxIDs == 0 {
		s.YouTube.MaxIDs = DefaultMaxVideoIDs
	}
	if s.YouTube.BatchSize == 0 {
		s.YouTube.BatchSize = DefaultStatsBatchSize
	}
	if s.YouTube.SearchResults == 0 {
		s.YouTube.SearchResults = DefaultSearchResults
	}
	if s.YouTube.CommentWeight == 0 {
		s.YouTube.CommentWeight = DefaultCommentWeight
	}

	if s.Forum.BaseURL == "" {
		s.Forum.BaseURL = DefaultForumBaseURL
	}
	if s.Forum.MaxTopics == 0 {
		s.Forum.MaxTopics = DefaultMaxForumTopics
	}
	if s.Forum.ReplyWeight == 0 {
		s.Forum.ReplyWeight = DefaultReplyWeight
	}

	if len(s.Trends.Keywords) == 0 {
		s.Trends.Keywords = make(map[string]float64, len(DefaultTrendTable))
		for k, v := range DefaultTrendTable {
			s.Trends.Keywords[k] = v
		}
	}
	if s.Trends.Multipliers == nil {
		s.Trends.Multipliers = map[string]float64{defaultHighMultiplierCode: defaultHighMultiplier}
	} else {
		normalized := make(map[string]float64, len(s.Trends.Multipliers))
		for country, m := range s.Trends.Multipliers {
			normalized[NormalizeCountry(country)] = m
		}
		s.Trends.Multipliers = normalized
	}
}

func validateSettings(s *Settings) error {
	nonNegativeFields := map[string]float64{
		"youtube max ids":        float64(s.YouTube.MaxIDs),
		"youtube batch size":     float64(s.YouTube.BatchSize),
		"youtube search results": float64(s.YouTube.SearchResults),
		"youtube comment weight": s.YouTube.CommentWeight,
		"forum max topics":       float64(s.Forum.MaxTopics),
		"forum reply weight":     s.Forum.ReplyWeight,
	}

	for fieldName, fieldValue := range nonNegativeFields {
		if fieldValue < 0 {
			return fmt.Errorf("%s must be non-negative", fieldName)
		}
	}

	if s.YouTube.PauseMS != nil && *s.YouTube.PauseMS < 0 {
		return fmt.Errorf("youtube pause must be non-negative")
	}
	if s.YouTube.BatchSize > maxYouTubeBatchSize {
		return fmt.Errorf("youtube batch size must not exceed %d", maxYouTubeBatchSize)
	}
	if s.YouTube.SearchResults > maxYouTubeBatchSize {
		return fmt.Errorf("youtube search results must not exceed %d", maxYouTubeBatchSize)
	}

	for keyword, base := range s.Trends.Keywords {
		if keyword == "" {
			return fmt.Errorf("trend keyword must not be empty")
		}
		if base < 0 {
			return fmt.Errorf("trend base for %q must be non-negative", keyword)
		}
	}
	for country, m := range s.Trends.Multipliers {
		if m <= 0 {
			return fmt.Errorf("trend multiplier for %q must be positive", country)
		}
	}

	return nil
}
