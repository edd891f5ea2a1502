package httpclient

import "time"

// RetryOptions configures retry behavior for upstream requests
type RetryOptions struct {
	MaxRetries        int           `yaml:"max_retries" mapstructure:"max_retries"`
	BaseBackoff       time.Duration `yaml:"base_backoff" mapstructure:"base_backoff"`
	LogPrefix         string        `yaml:"-" mapstructure:"-"`
	ConnectionTimeout time.Duration `yaml:"connection_timeout" mapstructure:"connection_timeout"`
	RequestTimeout    time.Duration `yaml:"request_timeout" mapstructure:"request_timeout"` // includes reading the body
	// MaxBodySize caps how much of a response is read, 0 means 10MB
	MaxBodySize int64 `yaml:"max_body_size" mapstructure:"max_body_size"`
}

// DefaultRetryOptions returns default retry options
func DefaultRetryOptions() RetryOptions {
	return RetryOptions{
		MaxRetries:        3,
		BaseBackoff:       500 * time.Millisecond,
		LogPrefix:         "HTTP",
		ConnectionTimeout: 10 * time.Second,
		RequestTimeout:    30 * time.Second,
		MaxBodySize:       10 << 20,
	}
}

// ApplyDefaults fills zero fields from DefaultRetryOptions
func (o *RetryOptions) ApplyDefaults() {
	d := DefaultRetryOptions()
	if o.MaxRetries <= 0 {
		o.MaxRetries = d.MaxRetries
	}
	if o.BaseBackoff <= 0 {
		o.BaseBackoff = d.BaseBackoff
	}
	if o.LogPrefix == "" {
		o.LogPrefix = d.LogPrefix
	}
	if o.ConnectionTimeout <= 0 {
		o.ConnectionTimeout = d.ConnectionTimeout
	}
	if o.RequestTimeout <= 0 {
		o.RequestTimeout = d.RequestTimeout
	}
	if o.MaxBodySize <= 0 {
		o.MaxBodySize = d.MaxBodySize
	}
}
