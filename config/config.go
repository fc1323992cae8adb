// Package config loads the bridge configuration from a YAML file, falling
// back to defaults for anything left unset.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/sciforge/toolbridge/annotations"
	"github.com/sciforge/toolbridge/protocol"
)

// Duration wraps time.Duration so YAML values like "30s" parse naturally.
type Duration struct {
	time.Duration
}

// UnmarshalYAML implements yaml.Unmarshaler.
func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var raw string
	if err := value.Decode(&raw); err != nil {
		return err
	}
	parsed, err := time.ParseDuration(raw)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", raw, err)
	}
	d.Duration = parsed
	return nil
}

// MarshalYAML implements yaml.Marshaler.
func (d Duration) MarshalYAML() (interface{}, error) {
	return d.Duration.String(), nil
}

type Config struct {
	Engine      EngineConfig      `yaml:"engine"`
	Discovery   DiscoveryConfig   `yaml:"discovery"`
	Hooks       []HookRuleConfig  `yaml:"hooks"`
	Annotations AnnotationsConfig `yaml:"annotations"`
	Publish     *PublishConfig    `yaml:"publish"`
	Auth        AuthConfig        `yaml:"auth"`
	Artifacts   ArtifactsConfig   `yaml:"artifacts"`
	Log         LogConfig         `yaml:"log"`
}

type EngineConfig struct {
	Workers           int      `yaml:"workers"`
	QueueSize         int      `yaml:"queue_size"`
	CallTimeout       Duration `yaml:"call_timeout"`
	NestedCallTimeout Duration `yaml:"nested_call_timeout"`
}

type DiscoveryConfig struct {
	// AdvancedSearch enables the embedding and semantic methods for auto mode.
	AdvancedSearch bool   `yaml:"advanced_search"`
	OpenAIAPIKey   string `yaml:"openai_api_key"`
	EmbeddingModel string `yaml:"embedding_model"`
	RankerModel    string `yaml:"ranker_model"`
}

// HookRuleConfig mirrors hook.Rule for YAML decoding.
type HookRuleConfig struct {
	Name       string                 `yaml:"name"`
	Type       string                 `yaml:"type"`
	Priority   int                    `yaml:"priority"`
	Conditions HookConditionsConfig   `yaml:"conditions"`
	Config     map[string]interface{} `yaml:"config"`
}

type HookConditionsConfig struct {
	MinOutputLength int      `yaml:"min_output_length"`
	Tools           []string `yaml:"tools"`
}

type AnnotationsConfig struct {
	Tools      map[string]annotations.Override `yaml:"tools"`
	Categories map[string]annotations.Override `yaml:"categories"`
	Kinds      map[string]annotations.Override `yaml:"kinds"`
}

// Tables converts the YAML maps into annotation override tables.
func (a AnnotationsConfig) Tables() annotations.Tables {
	return annotations.Tables{
		Tools:      a.Tools,
		Categories: a.Categories,
		Kinds:      a.Kinds,
	}
}

// PublishConfig restricts which registered tools the bridge exposes over the
// protocol. A nil PublishConfig publishes everything.
type PublishConfig struct {
	Names             []string `yaml:"names"`
	Categories        []string `yaml:"categories"`
	Kinds             []string `yaml:"kinds"`
	ExcludeNames      []string `yaml:"exclude_names"`
	ExcludeCategories []string `yaml:"exclude_categories"`
	ExcludeKinds      []string `yaml:"exclude_kinds"`
}

// Filter converts the publish section into a protocol list filter.
func (p *PublishConfig) Filter() *protocol.ListFilter {
	if p == nil {
		return nil
	}
	return &protocol.ListFilter{
		Names:             p.Names,
		Categories:        p.Categories,
		Kinds:             p.Kinds,
		ExcludeNames:      p.ExcludeNames,
		ExcludeCategories: p.ExcludeCategories,
		ExcludeKinds:      p.ExcludeKinds,
	}
}

type AuthConfig struct {
	Enabled          bool     `yaml:"enabled"`
	JWKSURL          string   `yaml:"jwks_url"`
	Issuer           string   `yaml:"issuer"`
	Audience         string   `yaml:"audience"`
	ClockSkew        Duration `yaml:"clock_skew"`
	WriteScope       string   `yaml:"write_scope"`
	DestructiveScope string   `yaml:"destructive_scope"`
}

type ArtifactsConfig struct {
	Path            string   `yaml:"path"`
	TTL             Duration `yaml:"ttl"`
	CleanupSchedule string   `yaml:"cleanup_schedule"`
}

type LogConfig struct {
	Level string `yaml:"level"`
}

func DefaultConfig() *Config {
	return &Config{
		Engine: EngineConfig{
			Workers:           5,
			QueueSize:         10,
			CallTimeout:       Duration{60 * time.Second},
			NestedCallTimeout: Duration{15 * time.Second},
		},
		Discovery: DiscoveryConfig{
			AdvancedSearch: false,
		},
		Artifacts: ArtifactsConfig{
			Path:            "data/artifacts.db",
			TTL:             Duration{24 * time.Hour},
			CleanupSchedule: "@hourly",
		},
		Log: LogConfig{
			Level: "info",
		},
	}
}

func Load(path string) (*Config, error) {
	cfg := DefaultConfig()
	if path == "" {
		return cfg, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return nil, fmt.Errorf("reading config: %w", err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}
	return cfg, nil
}
