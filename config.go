// ©Hayabusa Cloud Co., Ltd. 2026. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package durable

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/google/uuid"
	"gopkg.in/yaml.v3"
)

// Config defaults.
const (
	DefaultActivityConcurrency = 8
	DefaultBatchLimit          = 1000
)

// Config is the worker configuration file.
//
//	worker_id: ""          # random UUID when empty
//	codec: json            # json | proto
//	converter: json        # json | msgpack
//	batch_limit: 1000      # max commands per outgoing packet
//	activity:
//	  concurrency: 8
//	  rate: 0              # starts per second, 0 is unlimited
//	  burst: 1
//	  timeout: 0s
type Config struct {
	WorkerID   string         `yaml:"worker_id"`
	Codec      string         `yaml:"codec"`
	Converter  string         `yaml:"converter"`
	BatchLimit int            `yaml:"batch_limit"`
	Activity   ActivityConfig `yaml:"activity"`
}

// ActivityConfig controls activity execution.
type ActivityConfig struct {
	Concurrency int           `yaml:"concurrency"`
	Rate        float64       `yaml:"rate"`
	Burst       int           `yaml:"burst"`
	Timeout     time.Duration `yaml:"timeout"`
}

// DefaultConfig returns the defaults with a fresh worker id.
func DefaultConfig() Config {
	return Config{
		WorkerID:   uuid.NewString(),
		Codec:      CodecNameJSON,
		Converter:  "json",
		BatchLimit: DefaultBatchLimit,
		Activity: ActivityConfig{
			Concurrency: DefaultActivityConcurrency,
			Burst:       1,
		},
	}
}

// ParseConfig decodes YAML over the defaults and validates the result.
func ParseConfig(data []byte) (Config, error) {
	cfg := DefaultConfig()
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("parse config: %w", err)
	}
	if cfg.WorkerID == "" {
		cfg.WorkerID = uuid.NewString()
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// LoadConfig reads and parses the YAML file at path.
func LoadConfig(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("load config: %w", err)
	}
	return ParseConfig(data)
}

// Validate reports every invalid field.
func (c Config) Validate() error {
	var errs []error
	switch c.Codec {
	case CodecNameJSON, CodecNameProto:
	default:
		errs = append(errs, fmt.Errorf("codec: unknown %q", c.Codec))
	}
	switch c.Converter {
	case "json", "msgpack":
	default:
		errs = append(errs, fmt.Errorf("converter: unknown %q", c.Converter))
	}
	if c.BatchLimit <= 0 {
		errs = append(errs, fmt.Errorf("batch_limit: must be positive, got %d", c.BatchLimit))
	}
	if c.Activity.Concurrency <= 0 {
		errs = append(errs, fmt.Errorf("activity.concurrency: must be positive, got %d", c.Activity.Concurrency))
	}
	if c.Activity.Rate < 0 {
		errs = append(errs, fmt.Errorf("activity.rate: must not be negative, got %v", c.Activity.Rate))
	}
	if c.Activity.Timeout < 0 {
		errs = append(errs, fmt.Errorf("activity.timeout: must not be negative, got %v", c.Activity.Timeout))
	}
	return errors.Join(errs...)
}

// Options converts the configuration to WorkerOptions.
func (c Config) Options() []WorkerOption {
	return []WorkerOption{
		WithWorkerID(c.WorkerID),
		WithCodec(GetCodec(c.Codec)),
		WithConverter(GetConverter(c.Converter)),
		WithBatchLimit(c.BatchLimit),
		WithActivityConcurrency(c.Activity.Concurrency),
		WithActivityRate(c.Activity.Rate, c.Activity.Burst),
		WithActivityTimeout(c.Activity.Timeout),
	}
}
