package config

import (
	"fmt"
	"time"
)

// Config represents a growler.yaml configuration file.
// All values are optional and act as defaults for CLI flags.
// CLI flags always override config values.
type Config struct {
	Gerrit       GerritConfig    `yaml:"gerrit"`
	Stream       StreamConfig    `yaml:"stream"`
	Watch        WatchConfig     `yaml:"watch"`
	IgnoreActors []string        `yaml:"ignore_actors"`
	Journal      JournalConfig   `yaml:"journal"`
	Archive      ArchiveConfig   `yaml:"archive"`
	Notify       NotifyConfig    `yaml:"notify"`
	Adapters     []AdapterConfig `yaml:"adapters"`
}

// GerritConfig identifies the server and how to reach it.
type GerritConfig struct {
	Host                  string   `yaml:"host"`
	Port                  int      `yaml:"port"`
	Username              string   `yaml:"username"`
	KeyFile               string   `yaml:"key_file"`
	KnownHosts            string   `yaml:"known_hosts"`
	InsecureIgnoreHostKey bool     `yaml:"insecure_ignore_host_key"`
	Transport             string   `yaml:"transport"`
	Subscribe             []string `yaml:"subscribe"`
}

// StreamConfig tunes the stream supervisor.
type StreamConfig struct {
	IdleTimeout   Duration `yaml:"idle_timeout"`
	Backoff       Duration `yaml:"backoff"`
	ChunkSize     int      `yaml:"chunk_size"`
	MaxRecordSize int      `yaml:"max_record_size"`
}

// WatchConfig tunes the watched-set cache.
type WatchConfig struct {
	Query        string   `yaml:"query"`
	TTL          Duration `yaml:"ttl"`
	QueryTimeout Duration `yaml:"query_timeout"`
	RedisURL     string   `yaml:"redis_url"`
	RedisKey     string   `yaml:"redis_key"`
}

// JournalConfig configures the JSONL event journal.
type JournalConfig struct {
	Path string `yaml:"path"`
}

// ArchiveConfig configures the Lode event archive.
type ArchiveConfig struct {
	Dataset     string `yaml:"dataset"`
	Backend     string `yaml:"backend"`
	Path        string `yaml:"path"`
	Region      string `yaml:"region"`
	Endpoint    string `yaml:"endpoint"`
	S3PathStyle bool   `yaml:"s3_path_style"`
	BatchSize   int    `yaml:"batch_size"`
}

// NotifyConfig tunes priority notification dispatch.
type NotifyConfig struct {
	Timeout Duration `yaml:"timeout"`
}

// AdapterConfig is one notification sink.
type AdapterConfig struct {
	Name    string            `yaml:"name,omitempty"`
	Type    string            `yaml:"type"`
	URL     string            `yaml:"url,omitempty"`
	Channel string            `yaml:"channel,omitempty"`
	History string            `yaml:"history,omitempty"`
	Headers map[string]string `yaml:"headers,omitempty"`
	Secret  string            `yaml:"secret,omitempty"`
	Command string            `yaml:"command,omitempty"`
	Args    []string          `yaml:"args,omitempty"`
	Env     []string          `yaml:"env,omitempty"`
	Timeout Duration          `yaml:"timeout,omitempty"`
	Retries *int              `yaml:"retries,omitempty"`
}

// DisplayName returns Name, or the adapter type with its position.
func (a AdapterConfig) DisplayName(i int) string {
	if a.Name != "" {
		return a.Name
	}
	return fmt.Sprintf("%s[%d]", a.Type, i)
}

// Duration wraps time.Duration for YAML string parsing (e.g. "10s", "5m").
type Duration struct {
	time.Duration
}

// UnmarshalYAML parses a duration string like "10s" or "5m30s".
func (d *Duration) UnmarshalYAML(unmarshal func(any) error) error {
	var s string
	if err := unmarshal(&s); err != nil {
		return err
	}
	if s == "" {
		return nil
	}
	parsed, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", s, err)
	}
	d.Duration = parsed
	return nil
}

// MarshalYAML renders the duration as a string.
func (d Duration) MarshalYAML() (any, error) {
	return d.String(), nil
}
