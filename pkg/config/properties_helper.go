package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/notifylab/fanout/util"
)

// DefaultConfig returns the baseline configuration before flags and files.
func DefaultConfig() *Config {
	return &Config{
		EnginePort:     9000,
		EnableExporter: true,
		ExporterPort:   9100,
		EnableGzip:     false,
		LogLevel:       util.LogLevelInfo,

		LogDir:             "engine-logs",
		DiskFlushBatchSize: 50,
		LingerMS:           50,
		ChannelBufferSize:  1024,
		DiskWriteTimeoutMS: 5,
		SegmentSize:        1024 * 1024,
		RetentionMS:        0,

		DefaultPartitions: 4,
		MaxPayloadBytes:   64 * 1024,
		AutoCreateTopics:  true,

		LeaseDurationMS:  30000,
		LeaseCheckMS:     5000,
		OffsetsFlushMS:   2000,
		ConsumeBatchSize: 100,
		PollTimeoutMS:    1000,

		DedupHorizonMS:       30 * 60 * 1000,
		DedupMaxPerPartition: 100000,

		MaxPrefixLen: 16,

		TopKMax:             10,
		TopKSlack:           5,
		DecayFactor:         1.0,
		ReconcileIntervalMS: 60000,

		DeliveryMaxAttempts:   5,
		DeliveryBaseBackoffMS: 200,
		DeliveryRetryTickMS:   100,

		SessionTTL:     30 * time.Minute,
		SessionSweepMS: 30000,
		MaxSessions:    10000,
		PushQueueSize:  4096,
	}
}

// Validate rejects configurations that cannot run.
func (c *Config) Validate() error {
	if c.DefaultPartitions <= 0 {
		return fmt.Errorf("default_partitions must be positive, got %d", c.DefaultPartitions)
	}
	if c.MaxPayloadBytes <= 0 {
		return fmt.Errorf("max_payload_bytes must be positive, got %d", c.MaxPayloadBytes)
	}
	if c.LeaseDurationMS <= 0 {
		return fmt.Errorf("lease_duration_ms must be positive, got %d", c.LeaseDurationMS)
	}
	if c.TopKMax <= 0 {
		return fmt.Errorf("topk_max must be positive, got %d", c.TopKMax)
	}
	if c.TopKSlack < 0 {
		return fmt.Errorf("topk_slack must not be negative, got %d", c.TopKSlack)
	}
	if c.DecayFactor <= 0 || c.DecayFactor > 1 {
		return fmt.Errorf("decay_factor must be in (0, 1], got %f", c.DecayFactor)
	}
	if c.DeliveryMaxAttempts <= 0 {
		return fmt.Errorf("delivery_max_attempts must be positive, got %d", c.DeliveryMaxAttempts)
	}
	if c.MaxPrefixLen <= 0 {
		return fmt.Errorf("max_prefix_len must be positive, got %d", c.MaxPrefixLen)
	}
	return nil
}

// applyEnvOverrides lets deployment environments override the common knobs
// without a config file.
func applyEnvOverrides(cfg *Config) {
	overrideEnvInt(&cfg.EnginePort, "ENGINE_PORT")
	overrideEnvBool(&cfg.EnableExporter, "EXPORTER_ENABLE")
	overrideEnvInt(&cfg.ExporterPort, "EXPORTER_PORT")
	overrideEnvBool(&cfg.EnableGzip, "GZIP_ENABLE")
	overrideEnvString(&cfg.LogDir, "LOG_DIR")
	overrideEnvInt(&cfg.DefaultPartitions, "DEFAULT_PARTITIONS")
	overrideEnvInt(&cfg.LeaseDurationMS, "LEASE_DURATION_MS")
	overrideEnvInt(&cfg.TopKMax, "TOPK_MAX")
	overrideEnvInt(&cfg.PushQueueSize, "PUSH_QUEUE_SIZE")
}

func overrideEnvInt(target *int, key string) {
	if v := os.Getenv(key); v != "" {
		*target = util.ParseInt(v, *target)
	}
}

func overrideEnvBool(target *bool, key string) {
	if v := os.Getenv(key); v != "" {
		*target = util.ParseBool(v, *target)
	}
}

func overrideEnvString(target *string, key string) {
	if v := os.Getenv(key); v != "" {
		*target = v
	}
}

func parseLogLevel(s string) util.LogLevel {
	switch strings.ToLower(s) {
	case "debug":
		return util.LogLevelDebug
	case "warn", "warning":
		return util.LogLevelWarn
	case "error":
		return util.LogLevelError
	default:
		return util.LogLevelInfo
	}
}
