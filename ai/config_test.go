package ai

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validConfig() *Config {
	return &Config{
		EmbeddingHost:   "http://localhost:11434",
		GenerationHost:  "http://localhost:11434",
		EmbeddingModel:  "text-embedding-3-small",
		GenerationModel: "gpt-4o-mini",
		Temperature:     0.1,
		Dimensions:      1536,
	}
}

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	assert.NotNil(t, cfg)
	assert.Equal(t, "https://api.openai.com/v1", cfg.EmbeddingHost)
	assert.Equal(t, "https://api.openai.com/v1", cfg.GenerationHost)
	assert.Equal(t, "text-embedding-3-small", cfg.EmbeddingModel)
	assert.Equal(t, "gpt-4", cfg.GenerationModel)
	assert.InDelta(t, 0.1, cfg.Temperature, 1e-9)
	assert.Equal(t, 1536, cfg.Dimensions)
	assert.Equal(t, 30*time.Second, cfg.RequestTimeout)
}

func TestNewConfig(t *testing.T) {
	t.Run("with no options", func(t *testing.T) {
		cfg := NewConfig()
		assert.Equal(t, DefaultConfig(), cfg)
	})

	t.Run("with custom host", func(t *testing.T) {
		cfg := NewConfig(WithHost("http://custom:8080/v1"))

		assert.Equal(t, "http://custom:8080/v1", cfg.EmbeddingHost)
		assert.Equal(t, "http://custom:8080/v1", cfg.GenerationHost)
	})

	t.Run("with separate hosts", func(t *testing.T) {
		cfg := NewConfig(
			WithEmbeddingHost("http://embed:8080/v1"),
			WithGenerationHost("http://chat:9090/v1"),
		)

		assert.Equal(t, "http://embed:8080/v1", cfg.EmbeddingHost)
		assert.Equal(t, "http://chat:9090/v1", cfg.GenerationHost)
	})

	t.Run("with multiple options", func(t *testing.T) {
		cfg := NewConfig(
			WithEmbeddingModel("custom-embed"),
			WithGenerationModel("custom-chat"),
			WithAPIKey("sk-test"),
			WithConfigTemperature(0.3),
			WithDimensions(768),
			WithRequestTimeout(5*time.Second),
		)

		assert.Equal(t, "custom-embed", cfg.EmbeddingModel)
		assert.Equal(t, "custom-chat", cfg.GenerationModel)
		assert.Equal(t, "sk-test", cfg.APIKey)
		assert.InDelta(t, 0.3, cfg.Temperature, 1e-9)
		assert.Equal(t, 768, cfg.Dimensions)
		assert.Equal(t, 5*time.Second, cfg.RequestTimeout)
	})
}

func TestConfigNormalize(t *testing.T) {
	tests := []struct {
		name     string
		host     string
		expected string
	}{
		{name: "already has /v1", host: "http://localhost:11434/v1", expected: "http://localhost:11434/v1"},
		{name: "missing /v1", host: "http://localhost:11434", expected: "http://localhost:11434/v1"},
		{name: "has trailing slash", host: "http://localhost:11434/", expected: "http://localhost:11434/v1"},
		{name: "empty host", host: "", expected: ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := &Config{EmbeddingHost: tt.host, GenerationHost: tt.host}
			cfg.Normalize()

			assert.Equal(t, tt.expected, cfg.EmbeddingHost)
			assert.Equal(t, tt.expected, cfg.GenerationHost)
		})
	}
}

func TestConfigValidate(t *testing.T) {
	t.Run("valid config", func(t *testing.T) {
		cfg := validConfig()
		require.NoError(t, cfg.Validate())
		assert.Equal(t, "http://localhost:11434/v1", cfg.EmbeddingHost)
		assert.Equal(t, "http://localhost:11434/v1", cfg.GenerationHost)
	})

	tests := []struct {
		name   string
		mutate func(*Config)
		field  string
	}{
		{"missing embedding host", func(c *Config) { c.EmbeddingHost = "" }, "EmbeddingHost"},
		{"missing generation host", func(c *Config) { c.GenerationHost = "" }, "GenerationHost"},
		{"missing embedding model", func(c *Config) { c.EmbeddingModel = "" }, "EmbeddingModel"},
		{"missing generation model", func(c *Config) { c.GenerationModel = "" }, "GenerationModel"},
		{"temperature too high", func(c *Config) { c.Temperature = 2.5 }, "Temperature"},
		{"negative temperature", func(c *Config) { c.Temperature = -0.1 }, "Temperature"},
		{"zero dimensions", func(c *Config) { c.Dimensions = 0 }, "Dimensions"},
		{"negative timeout", func(c *Config) { c.RequestTimeout = -time.Second }, "RequestTimeout"},
		{"related above direct", func(c *Config) { c.DirectThreshold, c.RelatedThreshold = 0.4, 0.6 }, "thresholds"},
		{"direct above one", func(c *Config) { c.DirectThreshold, c.RelatedThreshold = 1.2, 0.5 }, "thresholds"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
			tt.mutate(cfg)

			err := cfg.Validate()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.field)
		})
	}
}

func TestConfigValidate_Defaults(t *testing.T) {
	require.NoError(t, NewConfig().Validate())
	require.NoError(t, DefaultConfig().Validate())
}

func TestConfigThresholds(t *testing.T) {
	t.Run("default model", func(t *testing.T) {
		direct, related := DefaultConfig().Thresholds()
		assert.InDelta(t, 0.5, direct, 1e-6)
		assert.InDelta(t, 0.3, related, 1e-6)
	})

	t.Run("ada-002 scores unrelated text below related", func(t *testing.T) {
		// ada-002 puts unrelated text pairs around 0.7.
		cfg := NewConfig(WithEmbeddingModel("text-embedding-ada-002"))
		direct, related := cfg.Thresholds()
		assert.Greater(t, related, float32(0.75))
		assert.Greater(t, direct, related)
		require.NoError(t, cfg.Validate())
	})

	t.Run("unknown model uses default calibration", func(t *testing.T) {
		cfg := NewConfig(WithEmbeddingModel("nomic-embed-text"))
		direct, related := cfg.Thresholds()
		assert.Equal(t, DefaultCalibration, Calibration{Direct: direct, Related: related})
	})

	t.Run("explicit thresholds win", func(t *testing.T) {
		cfg := NewConfig(WithEmbeddingModel("text-embedding-ada-002"), WithThresholds(0.9, 0.8))
		direct, related := cfg.Thresholds()
		assert.InDelta(t, 0.9, direct, 1e-6)
		assert.InDelta(t, 0.8, related, 1e-6)
	})
}
