package config

import (
	"errors"
	"fmt"
)

// Validate reports every invalid setting in c, joined into one error.
// It runs after flag overrides and defaults have been applied.
func (c *Config) Validate() error {
	var errs []error
	add := func(format string, args ...any) {
		errs = append(errs, fmt.Errorf(format, args...))
	}

	g := c.Gerrit
	if g.Port < 0 || g.Port > 65535 {
		add("gerrit.port %d out of range", g.Port)
	}
	switch g.Transport {
	case "", "ssh", "exec":
	default:
		add("gerrit.transport %q must be ssh or exec", g.Transport)
	}
	if g.InsecureIgnoreHostKey && g.KnownHosts != "" {
		add("gerrit.known_hosts and gerrit.insecure_ignore_host_key are mutually exclusive")
	}

	s := c.Stream
	for name, d := range map[string]Duration{
		"stream.idle_timeout": s.IdleTimeout,
		"stream.backoff":      s.Backoff,
		"watch.ttl":           c.Watch.TTL,
		"watch.query_timeout": c.Watch.QueryTimeout,
		"notify.timeout":      c.Notify.Timeout,
	} {
		if d.Duration < 0 {
			add("%s must not be negative", name)
		}
	}
	if s.ChunkSize < 0 {
		add("stream.chunk_size must not be negative")
	}
	if s.MaxRecordSize < 0 {
		add("stream.max_record_size must not be negative")
	}

	switch c.Archive.Backend {
	case "", "fs", "s3":
	default:
		add("archive.backend %q must be fs or s3", c.Archive.Backend)
	}
	if c.Archive.Backend == "s3" && c.Archive.Path == "" {
		add("archive.path (bucket/prefix) is required for the s3 backend")
	}
	if c.Archive.BatchSize < 0 {
		add("archive.batch_size must not be negative")
	}

	names := make(map[string]bool, len(c.Adapters))
	for i, a := range c.Adapters {
		name := a.DisplayName(i)
		if names[name] {
			add("adapters: duplicate name %q", name)
		}
		names[name] = true

		switch a.Type {
		case "webhook", "redis":
			if a.URL == "" {
				add("adapters[%s]: %s requires url", name, a.Type)
			}
		case "command":
			if a.Command == "" {
				add("adapters[%s]: command requires command", name)
			}
		default:
			add("adapters[%s]: unknown type %q", name, a.Type)
		}
		if a.Retries != nil && *a.Retries < 0 {
			add("adapters[%s]: retries must not be negative", name)
		}
	}

	return errors.Join(errs...)
}
