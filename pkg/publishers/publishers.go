package publishers

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// Supported publisher types.
const (
	TypeHTTP   = "http"
	TypeSQS    = "sqs"
	TypeSNS    = "sns"
	TypePubSub = "pubsub"
)

const (
	httpDefaultMethod         = "POST"
	httpDefaultTimeoutSeconds = 5
)

type configFile struct {
	Publishers []PublisherConfig `json:"publishers" yaml:"publishers"`
}

// PublisherConfig declares one event sink. Exactly the block matching Type is read.
type PublisherConfig struct {
	ID      string                 `json:"id" yaml:"id"`
	Type    string                 `json:"type" yaml:"type"`
	Enabled *bool                  `json:"enabled" yaml:"enabled"`
	HTTP    *HTTPPublisherConfig   `json:"http" yaml:"http"`
	SQS     *SQSPublisherConfig    `json:"sqs" yaml:"sqs"`
	SNS     *SNSPublisherConfig    `json:"sns" yaml:"sns"`
	PubSub  *PubSubPublisherConfig `json:"pubsub" yaml:"pubsub"`
}

// HTTPPublisherConfig points at a webhook receiving events as JSON.
type HTTPPublisherConfig struct {
	URL            string            `json:"url" yaml:"url"`
	Method         string            `json:"method" yaml:"method"`
	Headers        map[string]string `json:"headers" yaml:"headers"`
	TimeoutSeconds int               `json:"timeout_seconds" yaml:"timeout_seconds"`
}

// SQSPublisherConfig targets an AWS SQS queue.
type SQSPublisherConfig struct {
	QueueURL        string `json:"uri" yaml:"uri"`
	AWSAccessConfig `json:",inline" yaml:",inline"`
}

// SNSPublisherConfig targets an AWS SNS topic.
type SNSPublisherConfig struct {
	TopicARN        string `json:"topic_arn" yaml:"topic_arn"`
	AWSAccessConfig `json:",inline" yaml:",inline"`
}

// PubSubPublisherConfig targets a GCP Pub/Sub topic.
type PubSubPublisherConfig struct {
	ProjectID       string `json:"project_id" yaml:"project_id"`
	Topic           string `json:"topic" yaml:"topic"`
	Endpoint        string `json:"endpoint" yaml:"endpoint"`
	CredentialsFile string `json:"credentials_file" yaml:"credentials_file"`
}

// LoadConfigs reads and validates publisher definitions from a YAML or JSON file.
func LoadConfigs(path string) ([]PublisherConfig, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		return nil, errors.New("publishers file path is empty")
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read publishers file: %w", err)
	}

	var file configFile
	switch strings.ToLower(filepath.Ext(path)) {
	case ".json":
		err = json.Unmarshal(raw, &file)
	default:
		// YAML also accepts JSON documents.
		err = yaml.Unmarshal(raw, &file)
	}
	if err != nil {
		return nil, fmt.Errorf("decode publishers file %s: %w", filepath.Base(path), err)
	}
	if len(file.Publishers) == 0 {
		return nil, errors.New("publishers file contains no publishers entries")
	}

	seen := make(map[string]bool, len(file.Publishers))
	for i := range file.Publishers {
		cfg := &file.Publishers[i]
		cfg.normalize()
		if err := cfg.validate(); err != nil {
			return nil, fmt.Errorf("publishers[%d]: %w", i, err)
		}
		if seen[cfg.ID] {
			return nil, fmt.Errorf("duplicate publisher id %q", cfg.ID)
		}
		seen[cfg.ID] = true
	}
	return file.Publishers, nil
}

// Enabled filters out entries switched off with `enabled: false`.
func Enabled(cfgs []PublisherConfig) []PublisherConfig {
	out := make([]PublisherConfig, 0, len(cfgs))
	for _, cfg := range cfgs {
		if cfg.IsEnabled() {
			out = append(out, cfg)
		}
	}
	return out
}

// IsEnabled defaults to true when the flag is omitted.
func (cfg PublisherConfig) IsEnabled() bool {
	return cfg.Enabled == nil || *cfg.Enabled
}

func (cfg *PublisherConfig) normalize() {
	cfg.ID = strings.TrimSpace(cfg.ID)
	cfg.Type = strings.ToLower(strings.TrimSpace(cfg.Type))
	if cfg.HTTP != nil {
		cfg.HTTP.normalize()
	}
	if cfg.SQS != nil {
		cfg.SQS.QueueURL = strings.TrimSpace(cfg.SQS.QueueURL)
		cfg.SQS.AWSAccessConfig.normalize()
	}
	if cfg.SNS != nil {
		cfg.SNS.TopicARN = strings.TrimSpace(cfg.SNS.TopicARN)
		cfg.SNS.AWSAccessConfig.normalize()
	}
	if cfg.PubSub != nil {
		p := cfg.PubSub
		p.ProjectID, p.Topic = strings.TrimSpace(p.ProjectID), strings.TrimSpace(p.Topic)
		p.Endpoint, p.CredentialsFile = strings.TrimSpace(p.Endpoint), strings.TrimSpace(p.CredentialsFile)
	}
}

func (h *HTTPPublisherConfig) normalize() {
	h.URL = strings.TrimSpace(h.URL)
	if h.Method = strings.ToUpper(strings.TrimSpace(h.Method)); h.Method == "" {
		h.Method = httpDefaultMethod
	}
	if h.TimeoutSeconds <= 0 {
		h.TimeoutSeconds = httpDefaultTimeoutSeconds
	}
	headers := make(map[string]string, len(h.Headers))
	for k, v := range h.Headers {
		if k, v = strings.TrimSpace(k), strings.TrimSpace(v); k != "" && v != "" {
			headers[k] = v
		}
	}
	h.Headers = headers
}

func (cfg PublisherConfig) validate() error {
	if cfg.ID == "" {
		return errors.New("id is required")
	}

	var missing []string
	require := func(field, value string) {
		if value == "" {
			missing = append(missing, field)
		}
	}

	switch cfg.Type {
	case "":
		return fmt.Errorf("publisher %q has no type", cfg.ID)
	case TypeHTTP:
		if cfg.HTTP == nil {
			return fmt.Errorf("publisher %q needs an http block", cfg.ID)
		}
		require("http.url", cfg.HTTP.URL)
	case TypeSQS:
		if cfg.SQS == nil {
			return fmt.Errorf("publisher %q needs an sqs block", cfg.ID)
		}
		require("sqs.uri", cfg.SQS.QueueURL)
		require("sqs.region", cfg.SQS.Region)
	case TypeSNS:
		if cfg.SNS == nil {
			return fmt.Errorf("publisher %q needs an sns block", cfg.ID)
		}
		require("sns.topic_arn", cfg.SNS.TopicARN)
		require("sns.region", cfg.SNS.Region)
	case TypePubSub:
		if cfg.PubSub == nil {
			return fmt.Errorf("publisher %q needs a pubsub block", cfg.ID)
		}
		require("pubsub.project_id", cfg.PubSub.ProjectID)
		require("pubsub.topic", cfg.PubSub.Topic)
	default:
		return fmt.Errorf("publisher %q has unsupported type %q", cfg.ID, cfg.Type)
	}

	if len(missing) > 0 {
		return fmt.Errorf("publisher %q is missing %s", cfg.ID, strings.Join(missing, ", "))
	}
	return nil
}
