// Copyright 2025 Poiesic Systems
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.


package ai

import (
	"errors"
	"strings"
	"time"
)

// Config holds configuration for AI service providers.
type Config struct {
	// EmbeddingHost is the base URL for the embedding service API.
	// Example: "https://api.openai.com/v1" or "http://localhost:11434/v1"
	EmbeddingHost string

	// GenerationHost is the base URL for the chat completion service API.
	GenerationHost string

	// EmbeddingModel is the model identifier to use for text embeddings.
	// Example: "text-embedding-3-small", "text-embedding-ada-002"
	EmbeddingModel string

	// GenerationModel is the model identifier used to answer questions.
	// Example: "gpt-4", "gpt-4o-mini"
	GenerationModel string

	// APIKey authenticates against the services. Local OpenAI-compatible
	// servers accept any value.
	APIKey string

	// Temperature for answer generation. Kept low so answers stay close to
	// the retrieved material.
	// Default: 0.1
	Temperature float64

	// Dimensions is the length of vectors produced by EmbeddingModel.
	// Default: 1536
	Dimensions int

	// RequestTimeout bounds a single call to either service.
	// Default: 30s
	RequestTimeout time.Duration

	// DirectThreshold and RelatedThreshold are the cosine scores at or above
	// which retrieved content counts as answering or relating to a question.
	// Zero means the calibration of EmbeddingModel (see Thresholds).
	DirectThreshold  float32
	RelatedThreshold float32
}

// Calibration holds relevance thresholds for one embedding model.
type Calibration struct {
	Direct  float32
	Related float32
}

// DefaultCalibration applies to models without a known calibration. It fits
// models whose unrelated texts score near zero.
var DefaultCalibration = Calibration{Direct: 0.5, Related: 0.3}

// calibrations maps embedding models to relevance thresholds. ada-002 packs
// every text into a narrow cone: unrelated pairs score around 0.7.
var calibrations = map[string]Calibration{
	"text-embedding-3-small": {Direct: 0.5, Related: 0.3},
	"text-embedding-3-large": {Direct: 0.5, Related: 0.3},
	"text-embedding-ada-002": {Direct: 0.86, Related: 0.79},
}

// CalibrationFor returns the thresholds for an embedding model.
func CalibrationFor(model string) Calibration {
	if c, ok := calibrations[model]; ok {
		return c
	}
	return DefaultCalibration
}

// Thresholds returns the explicit thresholds when set, otherwise the
// calibration of the embedding model.
func (c *Config) Thresholds() (direct, related float32) {
	if c.DirectThreshold > 0 || c.RelatedThreshold > 0 {
		return c.DirectThreshold, c.RelatedThreshold
	}
	cal := CalibrationFor(c.EmbeddingModel)
	return cal.Direct, cal.Related
}

// ConfigOption configures a Config.
type ConfigOption func(*Config)

func WithEmbeddingHost(host string) ConfigOption {
	return func(c *Config) {
		c.EmbeddingHost = host
	}
}

func WithGenerationHost(host string) ConfigOption {
	return func(c *Config) {
		c.GenerationHost = host
	}
}

// WithHost points both services at the same base URL.
func WithHost(host string) ConfigOption {
	return func(c *Config) {
		c.EmbeddingHost = host
		c.GenerationHost = host
	}
}

func WithEmbeddingModel(model string) ConfigOption {
	return func(c *Config) {
		c.EmbeddingModel = model
	}
}

func WithGenerationModel(model string) ConfigOption {
	return func(c *Config) {
		c.GenerationModel = model
	}
}

func WithAPIKey(key string) ConfigOption {
	return func(c *Config) {
		c.APIKey = key
	}
}

// WithConfigTemperature sets the provider's default generation temperature.
func WithConfigTemperature(temperature float64) ConfigOption {
	return func(c *Config) {
		c.Temperature = temperature
	}
}

// WithThresholds overrides the model calibration.
func WithThresholds(direct, related float32) ConfigOption {
	return func(c *Config) {
		c.DirectThreshold = direct
		c.RelatedThreshold = related
	}
}

func WithDimensions(dims int) ConfigOption {
	return func(c *Config) {
		c.Dimensions = dims
	}
}

func WithRequestTimeout(timeout time.Duration) ConfigOption {
	return func(c *Config) {
		c.RequestTimeout = timeout
	}
}

// DefaultConfig returns a configuration for the hosted OpenAI API.
func DefaultConfig() *Config {
	defaultHost := "https://api.openai.com/v1"
	return &Config{
		EmbeddingHost:   defaultHost,
		GenerationHost:  defaultHost,
		EmbeddingModel:  "text-embedding-3-small",
		GenerationModel: "gpt-4",
		Temperature:     0.1,
		Dimensions:      1536,
		RequestTimeout:  30 * time.Second,
	}
}

// NewConfig creates a Config from DefaultConfig modified by opts.
func NewConfig(opts ...ConfigOption) *Config {
	cfg := DefaultConfig()
	for _, opt := range opts {
		opt(cfg)
	}
	return cfg
}

// Normalize ensures both hosts end with /v1 for OpenAI-compatible APIs.
func (c *Config) Normalize() {
	c.EmbeddingHost = normalizeHost(c.EmbeddingHost)
	c.GenerationHost = normalizeHost(c.GenerationHost)
}

func normalizeHost(host string) string {
	if host == "" || strings.HasSuffix(host, "/v1") {
		return host
	}
	return strings.TrimSuffix(host, "/") + "/v1"
}

// Validate normalizes the config and checks required fields.
func (c *Config) Validate() error {
	c.Normalize()

	if c.EmbeddingHost == "" {
		return errors.New("ai config: EmbeddingHost is required")
	}
	if c.GenerationHost == "" {
		return errors.New("ai config: GenerationHost is required")
	}
	if c.EmbeddingModel == "" {
		return errors.New("ai config: EmbeddingModel is required")
	}
	if c.GenerationModel == "" {
		return errors.New("ai config: GenerationModel is required")
	}
	if c.Temperature < 0 || c.Temperature > 2 {
		return errors.New("ai config: Temperature must be between 0 and 2")
	}
	if c.Dimensions <= 0 {
		return errors.New("ai config: Dimensions must be positive")
	}
	if c.RequestTimeout < 0 {
		return errors.New("ai config: RequestTimeout must not be negative")
	}
	if direct, related := c.Thresholds(); related <= 0 || direct > 1 || related > direct {
		return errors.New("ai config: thresholds must satisfy 0 < related <= direct <= 1")
	}
	return nil
}
