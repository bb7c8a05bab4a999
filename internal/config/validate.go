package config

import (
	"fmt"
	"reflect"
	"sort"
	"strings"
)

// Validate checks the configuration for invalid or missing values.
func (c *Config) Validate() error {
	if errs := c.validate(); len(errs) > 0 {
		return fmt.Errorf("config validation failed:\n  - %s", strings.Join(errs, "\n  - "))
	}
	return nil
}

// Channel names a Router may be asked to default to.
var knownChannels = map[string]bool{"": true, "discord": true, "amqp": true, "log": true}

func (c *Config) validate() []string {
	var errs []string

	// pipeline
	p := c.Pipeline
	if p.BatchSize < 1 {
		errs = append(errs, "pipeline.batchSize must be positive")
	}
	if p.FlushIntervalMs < 0 {
		errs = append(errs, "pipeline.flushIntervalMs must be non-negative")
	}
	if p.MaxRetries < 0 {
		errs = append(errs, "pipeline.maxRetries must be non-negative")
	}
	if p.RetryDelayMs < 0 {
		errs = append(errs, "pipeline.retryDelayMs must be non-negative")
	}
	if p.ConcurrencyLimit < 1 {
		errs = append(errs, "pipeline.concurrencyLimit must be positive")
	}
	if p.TypingQuietMs < 0 {
		errs = append(errs, "pipeline.typingQuietMs must be non-negative")
	}
	if p.TextCacheSize < 0 {
		errs = append(errs, "pipeline.textCacheSize must be non-negative")
	}
	if p.MaxContentLength < 1 {
		errs = append(errs, "pipeline.maxContentLength must be positive")
	}

	// media
	m := c.Media
	if m.MaxImageSize < 1 {
		errs = append(errs, "media.maxImageSize must be positive")
	}
	if m.Quality <= 0 || m.Quality > 1 {
		errs = append(errs, "media.quality must be in (0, 1]")
	}
	if m.MaxFileSizeBytes < 0 {
		errs = append(errs, "media.maxFileSizeBytes must be non-negative")
	}

	// channels
	ch := c.Channels
	if !knownChannels[ch.Default] {
		errs = append(errs, fmt.Sprintf("channels.default %q is not one of discord, amqp, log", ch.Default))
	}
	if ch.Discord.Enabled && ch.Discord.Token == "" {
		errs = append(errs, "channels.discord.token is required when discord is enabled")
	}
	if ch.AMQP.Enabled && ch.AMQP.URL == "" {
		errs = append(errs, "channels.amqp.url is required when amqp is enabled")
	}
	if ch.AMQP.ChunkSize < 0 {
		errs = append(errs, "channels.amqp.chunkSize must be non-negative")
	}

	return errs
}

// CheckUnknownFields walks the raw config map and returns paths of any keys
// that do not correspond to known Config struct fields.
func CheckUnknownFields(raw map[string]any) []string {
	result := checkUnknownFields(raw, reflect.TypeOf(Config{}), "")
	sort.Strings(result)
	return result
}

func checkUnknownFields(data map[string]any, t reflect.Type, prefix string) []string {
	t = derefType(t)

	switch t.Kind() {
	case reflect.Map:
		// Map keys are user-defined; check values only.
		elemType := derefType(t.Elem())
		if elemType.Kind() != reflect.Struct {
			return nil
		}
		var unknown []string
		for key, val := range data {
			if nested, ok := val.(map[string]any); ok {
				unknown = append(unknown, checkUnknownFields(nested, elemType, joinPath(prefix, key))...)
			}
		}
		return unknown

	case reflect.Struct:
		known := jsonFieldMap(t)
		var unknown []string
		for key, val := range data {
			ft, ok := known[key]
			if !ok {
				unknown = append(unknown, joinPath(prefix, key))
				continue
			}
			if nested, ok := val.(map[string]any); ok {
				unknown = append(unknown, checkUnknownFields(nested, ft, joinPath(prefix, key))...)
			}
		}
		return unknown

	default:
		return nil
	}
}

func jsonFieldMap(t reflect.Type) map[string]reflect.Type {
	m := make(map[string]reflect.Type, t.NumField())
	for i := 0; i < t.NumField(); i++ {
		f := t.Field(i)
		tag := f.Tag.Get("json")
		if tag == "" || tag == "-" {
			continue
		}
		name := strings.Split(tag, ",")[0]
		if name != "" {
			m[name] = f.Type
		}
	}
	return m
}

func derefType(t reflect.Type) reflect.Type {
	for t.Kind() == reflect.Ptr {
		t = t.Elem()
	}
	return t
}

func joinPath(prefix, key string) string {
	if prefix == "" {
		return key
	}
	return prefix + "." + key
}
