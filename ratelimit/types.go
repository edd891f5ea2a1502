package ratelimit

// RateLimit is the budget for one key type
type RateLimit struct {
	RateLimitPerMinute int `yaml:"rate_limit_per_minute" mapstructure:"rate_limit_per_minute"`
	Burst              int `yaml:"burst" mapstructure:"burst"`
}

// DefaultRateLimitPerMinute applies to key types without a configured budget
const DefaultRateLimitPerMinute = 30
