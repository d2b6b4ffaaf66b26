package cfg

import "time"

type Cfg struct {
	// Storage configuration
	DatabaseURL string
	DBPath      string

	// Application configuration
	Port          string
	TriggerSecret string
	AllowedHosts  []string
	Countries     []string
	IntervalHours int
	SourcesFile   string
	Collect       string

	// Upstream configuration
	YouTubeAPIKey   string
	UpstreamTimeout time.Duration
	UpstreamPolicy  string

	// Read cache configuration
	RedisAddr string
	CacheTTL  time.Duration

	// Application metadata
	UserAgent string
	Timezone  string
	Debug     bool
	Version   string
}

func (c *Cfg) Interval() time.Duration {
	return time.Duration(c.IntervalHours) * time.Hour
}

func (c *Cfg) UsesPostgres() bool {
	return c.DatabaseURL != ""
}
