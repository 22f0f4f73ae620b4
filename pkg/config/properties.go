package config

import (
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/notifylab/fanout/util"
	"gopkg.in/yaml.v3"
)

// Config represents the engine configuration including tunable performance options
type Config struct {
	// Server settings
	EnginePort     int           `yaml:"engine_port" json:"engine.port"`
	EnableExporter bool          `yaml:"enable_exporter" json:"enable.exporter"`
	ExporterPort   int           `yaml:"exporter_port" json:"exporter.port"`
	EnableGzip     bool          `yaml:"enable_gzip" json:"gzip.enable"`
	LogLevel       util.LogLevel `yaml:"log_level" json:"log_level"`

	// Disk persistence
	LogDir             string `yaml:"log_dir" json:"log.dir"`
	DiskFlushBatchSize int    `yaml:"disk_flush_batch_size" json:"disk.flush.batch.size"`
	LingerMS           int    `yaml:"linger_ms" json:"linger.ms"`
	ChannelBufferSize  int    `yaml:"channel_buffer_size" json:"channel.buffer.size"`
	DiskWriteTimeoutMS int    `yaml:"disk_write_timeout_ms" json:"disk.write.timeout.ms"`
	SegmentSize        int    `yaml:"segment_size" json:"segment.size"`
	RetentionMS        int    `yaml:"retention_ms" json:"retention.ms"`

	// Event log
	DefaultPartitions int  `yaml:"default_partitions" json:"default.partitions"`
	MaxPayloadBytes   int  `yaml:"max_payload_bytes" json:"max.payload.bytes"`
	AutoCreateTopics  bool `yaml:"auto_create_topics" json:"auto.create.topics"`

	// Group coordinator
	LeaseDurationMS  int `yaml:"lease_duration_ms" json:"lease.duration.ms"`
	LeaseCheckMS     int `yaml:"lease_check_ms" json:"lease.check.ms"`
	OffsetsFlushMS   int `yaml:"offsets_flush_ms" json:"offsets.flush.ms"`
	ConsumeBatchSize int `yaml:"consume_batch_size" json:"consume.batch.size"`
	PollTimeoutMS    int `yaml:"poll_timeout_ms" json:"poll.timeout.ms"`

	// Dedup filter
	DedupHorizonMS       int `yaml:"dedup_horizon_ms" json:"dedup.horizon.ms"`
	DedupMaxPerPartition int `yaml:"dedup_max_per_partition" json:"dedup.max.per.partition"`

	// Fanout resolver
	MaxPrefixLen int `yaml:"max_prefix_len" json:"max.prefix.len"`

	// Ranked aggregate store
	TopKMax             int     `yaml:"topk_max" json:"topk.max"`
	TopKSlack           int     `yaml:"topk_slack" json:"topk.slack"`
	DecayFactor         float64 `yaml:"decay_factor" json:"decay.factor"`
	ReconcileIntervalMS int     `yaml:"reconcile_interval_ms" json:"reconcile.interval.ms"`

	// Delivery tracker
	DeliveryMaxAttempts   int `yaml:"delivery_max_attempts" json:"delivery.max.attempts"`
	DeliveryBaseBackoffMS int `yaml:"delivery_base_backoff_ms" json:"delivery.base.backoff.ms"`
	DeliveryRetryTickMS   int `yaml:"delivery_retry_tick_ms" json:"delivery.retry.tick.ms"`

	// Session registry
	SessionTTL     time.Duration `yaml:"session_ttl" json:"session.ttl"`
	SessionSweepMS int           `yaml:"session_sweep_ms" json:"session.sweep.ms"`
	MaxSessions    int           `yaml:"max_sessions" json:"max.sessions"`
	PushQueueSize  int           `yaml:"push_queue_size" json:"push.queue.size"`
}

// LoadConfig builds the configuration from flags and an optional YAML/JSON file.
func LoadConfig() (*Config, error) {
	cfg := DefaultConfig()

	configPath := flag.String("config", "", "Path to YAML/JSON config file")
	flag.IntVar(&cfg.EnginePort, "port", cfg.EnginePort, "Engine intake port")
	flag.BoolVar(&cfg.EnableExporter, "exporter", cfg.EnableExporter, "Enable Prometheus exporter")
	flag.IntVar(&cfg.ExporterPort, "exporter-port", cfg.ExporterPort, "Exporter port")
	flag.BoolVar(&cfg.EnableGzip, "gzip", cfg.EnableGzip, "Enable gzip compression on the intake")
	logLevelStr := flag.String("log-level", "info", "Log Level (debug, info, warn, error)")

	flag.StringVar(&cfg.LogDir, "log-dir", cfg.LogDir, "Path for event log segments")
	flag.IntVar(&cfg.DiskFlushBatchSize, "disk-flush-batch", cfg.DiskFlushBatchSize, "Number of events per disk flush")
	flag.IntVar(&cfg.LingerMS, "linger-ms", cfg.LingerMS, "Maximum time to wait before flush (ms)")
	flag.IntVar(&cfg.ChannelBufferSize, "channel-buffer", cfg.ChannelBufferSize, "Storage write channel buffer size")
	flag.IntVar(&cfg.DiskWriteTimeoutMS, "disk-write-timeout", cfg.DiskWriteTimeoutMS, "Synchronous write timeout if channel is full (ms)")
	flag.IntVar(&cfg.SegmentSize, "segment-size", cfg.SegmentSize, "Segment file size in bytes")
	flag.IntVar(&cfg.RetentionMS, "retention-ms", cfg.RetentionMS, "Segment retention in milliseconds (0=keep forever)")

	flag.IntVar(&cfg.DefaultPartitions, "partitions", cfg.DefaultPartitions, "Partition count for auto-created topics")
	flag.IntVar(&cfg.MaxPayloadBytes, "max-payload", cfg.MaxPayloadBytes, "Maximum event payload size in bytes")
	flag.BoolVar(&cfg.AutoCreateTopics, "auto-create-topics", cfg.AutoCreateTopics, "Auto-create topics on publish")

	flag.IntVar(&cfg.LeaseDurationMS, "lease-duration", cfg.LeaseDurationMS, "Partition lease duration in milliseconds")
	flag.IntVar(&cfg.LeaseCheckMS, "lease-check", cfg.LeaseCheckMS, "Lease expiry check interval in milliseconds")
	flag.IntVar(&cfg.ConsumeBatchSize, "consume-batch", cfg.ConsumeBatchSize, "Maximum events read per poll")
	flag.IntVar(&cfg.PollTimeoutMS, "poll-timeout", cfg.PollTimeoutMS, "Long-poll timeout in milliseconds")

	flag.IntVar(&cfg.DedupHorizonMS, "dedup-horizon", cfg.DedupHorizonMS, "Dedup window horizon in milliseconds")
	flag.IntVar(&cfg.DedupMaxPerPartition, "dedup-max", cfg.DedupMaxPerPartition, "Maximum dedup records per partition")

	flag.IntVar(&cfg.MaxPrefixLen, "max-prefix-len", cfg.MaxPrefixLen, "Maximum prefix length for key expansion")

	flag.IntVar(&cfg.TopKMax, "topk-max", cfg.TopKMax, "Retained entries per ranking key")
	flag.IntVar(&cfg.TopKSlack, "topk-slack", cfg.TopKSlack, "Trim slack above topk-max before eviction runs")
	flag.Float64Var(&cfg.DecayFactor, "decay-factor", cfg.DecayFactor, "Score recency decay factor")
	flag.IntVar(&cfg.ReconcileIntervalMS, "reconcile-interval", cfg.ReconcileIntervalMS, "Ranked view reconciliation interval in milliseconds")

	flag.IntVar(&cfg.DeliveryMaxAttempts, "delivery-max-attempts", cfg.DeliveryMaxAttempts, "Delivery attempt ceiling before Expired")
	flag.IntVar(&cfg.DeliveryBaseBackoffMS, "delivery-backoff", cfg.DeliveryBaseBackoffMS, "Base delivery retry backoff in milliseconds")
	flag.IntVar(&cfg.DeliveryRetryTickMS, "delivery-retry-tick", cfg.DeliveryRetryTickMS, "Delivery retry scan interval in milliseconds")

	flag.DurationVar(&cfg.SessionTTL, "session-ttl", cfg.SessionTTL, "Live session TTL")
	flag.IntVar(&cfg.SessionSweepMS, "session-sweep", cfg.SessionSweepMS, "Stale session sweep interval in milliseconds")
	flag.IntVar(&cfg.MaxSessions, "max-sessions", cfg.MaxSessions, "Maximum live sessions")
	flag.IntVar(&cfg.PushQueueSize, "push-queue", cfg.PushQueueSize, "Push handoff queue size")

	if envPath := os.Getenv("CONFIG_PATH"); envPath != "" && *configPath == "" {
		*configPath = envPath
	}

	flag.Parse()

	cfg.LogLevel = parseLogLevel(*logLevelStr)

	if *configPath != "" {
		if err := LoadFromFile(*configPath, cfg); err != nil {
			return nil, err
		}
	}
	applyEnvOverrides(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadFromFile overlays file values onto cfg. YAML and JSON are both accepted.
func LoadFromFile(path string, cfg *Config) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config file: %w", err)
	}

	if strings.HasSuffix(path, ".json") {
		if err := json.Unmarshal(data, cfg); err != nil {
			return fmt.Errorf("parse JSON config: %w", err)
		}
		return nil
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("parse YAML config: %w", err)
	}
	return nil
}
