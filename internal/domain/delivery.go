package domain

import "time"

// DeliverySettings is the per-send settings record supplied by the caller.
type DeliverySettings struct {
	SMTPHost     string `json:"smtp_host" yaml:"smtp_host"`
	SMTPPort     int    `json:"smtp_port" yaml:"smtp_port"`
	SMTPUser     string `json:"smtp_user" yaml:"smtp_user"`
	SMTPPassword string `json:"-" yaml:"smtp_password"`
	SMTPSecure   bool   `json:"smtp_secure" yaml:"smtp_secure"`

	BatchSize  int           `json:"batch_size" yaml:"batch_size"`
	ChunkSize  int           `json:"chunk_size" yaml:"chunk_size"`
	ChunkDelay time.Duration `json:"chunk_delay" yaml:"chunk_delay"`

	ConnectionTimeout time.Duration `json:"connection_timeout" yaml:"connection_timeout"`
	GreetingTimeout   time.Duration `json:"greeting_timeout" yaml:"greeting_timeout"`
	SocketTimeout     time.Duration `json:"socket_timeout" yaml:"socket_timeout"`

	MaxRetries      int           `json:"max_retries" yaml:"max_retries"`
	MaxBackoffDelay time.Duration `json:"max_backoff_delay" yaml:"max_backoff_delay"`
	RetryChunkSizes string        `json:"retry_chunk_sizes" yaml:"retry_chunk_sizes"`
	RetryWaveDelay  time.Duration `json:"retry_wave_delay" yaml:"retry_wave_delay"`

	FromEmail         string `json:"from_email" yaml:"from_email"`
	FromName          string `json:"from_name" yaml:"from_name"`
	ReplyToEmail      string `json:"reply_to_email" yaml:"reply_to_email"`
	SubjectTemplate   string `json:"subject_template" yaml:"subject_template"`
	SubjectDateFormat string `json:"subject_date_format" yaml:"subject_date_format"`
	AdminEmail        string `json:"admin_email" yaml:"admin_email"`
}

// EffectiveChunkSize returns ChunkSize, falling back to BatchSize and then 50.
func (s DeliverySettings) EffectiveChunkSize() int {
	if s.ChunkSize > 0 {
		return s.ChunkSize
	}
	if s.BatchSize > 0 {
		return s.BatchSize
	}
	return 50
}
