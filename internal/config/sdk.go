package config

import (
	"fmt"
	"log/slog"
	"math"
	"net/url"
	"strconv"
)

// MetadataPrefix is prepended to every option name in host metadata.
const MetadataPrefix = "com.mixpanel.android.MPConfig."

// Option names recognised in host metadata.
const (
	KeyBulkUploadLimit        = "BulkUploadLimit"
	KeyFlushInterval          = "FlushInterval"
	KeyDataExpiration         = "DataExpiration"
	KeyDisableFallback        = "DisableFallback"
	KeyAutoCheckMixpanelData  = "AutoCheckMixpanelData"
	KeyAutoCheckForSurveys    = "AutoCheckForSurveys" // Deprecated alias of KeyAutoCheckMixpanelData
	KeyEventsEndpoint         = "EventsEndpoint"
	KeyEventsFallbackEndpoint = "EventsFallbackEndpoint"
	KeyPeopleEndpoint         = "PeopleEndpoint"
	KeyPeopleFallbackEndpoint = "PeopleFallbackEndpoint"
	KeyDecideEndpoint         = "DecideEndpoint"
	KeyDecideFallbackEndpoint = "DecideFallbackEndpoint"
)

// Default option values.
const (
	DefaultBulkUploadLimit        = 40
	DefaultFlushInterval          = 60 * 1000           // one minute, in ms
	DefaultDataExpiration         = 1000 * 60 * 60 * 48 // 48 hours, in ms
	DefaultDisableFallback        = true
	DefaultAutoCheckMixpanelData  = true
	DefaultEventsEndpoint         = "https://api.mixpanel.com/track?ip=1"
	DefaultEventsFallbackEndpoint = "http://api.mixpanel.com/track?ip=1"
	DefaultPeopleEndpoint         = "https://api.mixpanel.com/engage"
	DefaultPeopleFallbackEndpoint = "http://api.mixpanel.com/engage"
	DefaultDecideEndpoint         = "https://decide.mixpanel.com/decide"
	DefaultDecideFallbackEndpoint = "http://decide.mixpanel.com/decide"
)

// Metadata is the read-only key/value set the host application declares.
// Keys are either fully qualified (MetadataPrefix + option) or bare option names.
type Metadata map[string]any

// lookup returns the value of an option, preferring the fully qualified key.
func (m Metadata) lookup(option string) (any, bool) {
	if v, ok := m[MetadataPrefix+option]; ok {
		return v, true
	}
	v, ok := m[option]
	return v, ok
}

// Has reports whether the option is declared.
func (m Metadata) Has(option string) bool {
	_, ok := m.lookup(option)
	return ok
}

// SDKConfig holds the SDK options derived from host metadata.
type SDKConfig struct {
	BulkUploadLimit        int    `json:"bulk_upload_limit"`
	FlushInterval          int    `json:"flush_interval_ms"`
	DataExpiration         int    `json:"data_expiration_ms"`
	DisableFallback        bool   `json:"disable_fallback"`
	AutoCheckMixpanelData  bool   `json:"auto_check_mixpanel_data"`
	EventsEndpoint         string `json:"events_endpoint"`
	EventsFallbackEndpoint string `json:"events_fallback_endpoint"`
	PeopleEndpoint         string `json:"people_endpoint"`
	PeopleFallbackEndpoint string `json:"people_fallback_endpoint"`
	DecideEndpoint         string `json:"decide_endpoint"`
	DecideFallbackEndpoint string `json:"decide_fallback_endpoint"`
}

// DefaultSDKConfig returns an SDKConfig with default values.
func DefaultSDKConfig() *SDKConfig {
	return &SDKConfig{
		BulkUploadLimit:        DefaultBulkUploadLimit,
		FlushInterval:          DefaultFlushInterval,
		DataExpiration:         DefaultDataExpiration,
		DisableFallback:        DefaultDisableFallback,
		AutoCheckMixpanelData:  DefaultAutoCheckMixpanelData,
		EventsEndpoint:         DefaultEventsEndpoint,
		EventsFallbackEndpoint: DefaultEventsFallbackEndpoint,
		PeopleEndpoint:         DefaultPeopleEndpoint,
		PeopleFallbackEndpoint: DefaultPeopleFallbackEndpoint,
		DecideEndpoint:         DefaultDecideEndpoint,
		DecideFallbackEndpoint: DefaultDecideFallbackEndpoint,
	}
}

// FromMetadata builds an SDKConfig from host metadata. Missing or mistyped
// options keep their defaults; mistyped ones are logged.
func FromMetadata(md Metadata, logger *slog.Logger) *SDKConfig {
	if logger == nil {
		logger = slog.Default()
	}
	r := metadataReader{md: md, logger: logger}
	cfg := DefaultSDKConfig()

	if md.Has(KeyAutoCheckForSurveys) {
		logger.Warn(MetadataPrefix+KeyAutoCheckForSurveys+" has been deprecated in favor of "+
			MetadataPrefix+KeyAutoCheckMixpanelData+"; please update this key",
			"deprecated", KeyAutoCheckForSurveys)
	}

	cfg.BulkUploadLimit = r.int(KeyBulkUploadLimit, DefaultBulkUploadLimit)
	cfg.FlushInterval = r.int(KeyFlushInterval, DefaultFlushInterval)
	cfg.DataExpiration = r.int(KeyDataExpiration, DefaultDataExpiration)
	cfg.DisableFallback = r.bool(KeyDisableFallback, DefaultDisableFallback)

	// Auto-check is off only when both keys are declared false.
	cfg.AutoCheckMixpanelData = r.bool(KeyAutoCheckMixpanelData, DefaultAutoCheckMixpanelData) ||
		r.bool(KeyAutoCheckForSurveys, DefaultAutoCheckMixpanelData)

	cfg.EventsEndpoint = r.string(KeyEventsEndpoint, DefaultEventsEndpoint)
	cfg.EventsFallbackEndpoint = r.string(KeyEventsFallbackEndpoint, DefaultEventsFallbackEndpoint)
	cfg.PeopleEndpoint = r.string(KeyPeopleEndpoint, DefaultPeopleEndpoint)
	cfg.PeopleFallbackEndpoint = r.string(KeyPeopleFallbackEndpoint, DefaultPeopleFallbackEndpoint)
	cfg.DecideEndpoint = r.string(KeyDecideEndpoint, DefaultDecideEndpoint)
	cfg.DecideFallbackEndpoint = r.string(KeyDecideFallbackEndpoint, DefaultDecideFallbackEndpoint)

	return cfg
}

// Validate checks that the options are usable.
func (c *SDKConfig) Validate() error {
	if c.BulkUploadLimit <= 0 {
		return fmt.Errorf("%s must be positive, got %d", KeyBulkUploadLimit, c.BulkUploadLimit)
	}
	if c.FlushInterval <= 0 {
		return fmt.Errorf("%s must be positive, got %d", KeyFlushInterval, c.FlushInterval)
	}
	if c.DataExpiration <= 0 {
		return fmt.Errorf("%s must be positive, got %d", KeyDataExpiration, c.DataExpiration)
	}

	endpoints := []struct {
		key, value string
	}{
		{KeyEventsEndpoint, c.EventsEndpoint},
		{KeyEventsFallbackEndpoint, c.EventsFallbackEndpoint},
		{KeyPeopleEndpoint, c.PeopleEndpoint},
		{KeyPeopleFallbackEndpoint, c.PeopleFallbackEndpoint},
		{KeyDecideEndpoint, c.DecideEndpoint},
		{KeyDecideFallbackEndpoint, c.DecideFallbackEndpoint},
	}
	for _, e := range endpoints {
		u, err := url.Parse(e.value)
		if err != nil {
			return fmt.Errorf("invalid %s %q: %w", e.key, e.value, err)
		}
		if (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
			return fmt.Errorf("invalid %s %q: must be an absolute http(s) URL", e.key, e.value)
		}
	}

	return nil
}

// Log writes the effective configuration at debug level.
func (c *SDKConfig) Log(logger *slog.Logger) {
	if logger == nil {
		logger = slog.Default()
	}
	logger.Debug("sdk configured",
		"auto_check_mixpanel_data", c.AutoCheckMixpanelData,
		"bulk_upload_limit", c.BulkUploadLimit,
		"flush_interval_ms", c.FlushInterval,
		"data_expiration_ms", c.DataExpiration,
		"disable_fallback", c.DisableFallback,
		"events_endpoint", c.EventsEndpoint,
		"people_endpoint", c.PeopleEndpoint,
		"decide_endpoint", c.DecideEndpoint,
		"events_fallback_endpoint", c.EventsFallbackEndpoint,
		"people_fallback_endpoint", c.PeopleFallbackEndpoint,
		"decide_fallback_endpoint", c.DecideFallbackEndpoint,
	)
}

// metadataReader reads typed options, falling back to defaults.
type metadataReader struct {
	md     Metadata
	logger *slog.Logger
}

func (r metadataReader) mistyped(option string, v any, def any) {
	r.logger.Warn("ignoring mistyped metadata option", "option", option, "value", v, "default", def)
}

func (r metadataReader) int(option string, def int) int {
	v, ok := r.md.lookup(option)
	if !ok {
		return def
	}
	switch n := v.(type) {
	case int:
		return n
	case int64:
		if n >= math.MinInt32 && n <= math.MaxInt32 {
			return int(n)
		}
	case uint64:
		if n <= math.MaxInt32 {
			return int(n)
		}
	case float64:
		if n == math.Trunc(n) && n >= math.MinInt32 && n <= math.MaxInt32 {
			return int(n)
		}
	case string:
		if parsed, err := strconv.Atoi(n); err == nil {
			return parsed
		}
	}
	r.mistyped(option, v, def)
	return def
}

func (r metadataReader) bool(option string, def bool) bool {
	v, ok := r.md.lookup(option)
	if !ok {
		return def
	}
	switch b := v.(type) {
	case bool:
		return b
	case string:
		if parsed, err := strconv.ParseBool(b); err == nil {
			return parsed
		}
	}
	r.mistyped(option, v, def)
	return def
}

func (r metadataReader) string(option, def string) string {
	v, ok := r.md.lookup(option)
	if !ok {
		return def
	}
	s, ok := v.(string)
	if !ok {
		r.mistyped(option, v, def)
		return def
	}
	if s == "" {
		return def
	}
	return s
}
