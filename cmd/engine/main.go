package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"

	"github.com/notifylab/fanout/pkg/config"
	"github.com/notifylab/fanout/pkg/controller"
	"github.com/notifylab/fanout/pkg/coordinator"
	"github.com/notifylab/fanout/pkg/dedup"
	"github.com/notifylab/fanout/pkg/delivery"
	"github.com/notifylab/fanout/pkg/disk"
	"github.com/notifylab/fanout/pkg/fanout"
	"github.com/notifylab/fanout/pkg/offset"
	"github.com/notifylab/fanout/pkg/pipeline"
	"github.com/notifylab/fanout/pkg/push"
	"github.com/notifylab/fanout/pkg/ranking"
	"github.com/notifylab/fanout/pkg/server"
	"github.com/notifylab/fanout/pkg/session"
	"github.com/notifylab/fanout/pkg/topic"
	"github.com/notifylab/fanout/util"
)

const (
	eventsTopic = "events"
	fanoutGroup = "fanout-engine"
)

func main() {
	// Configuration
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("❌ Failed to load config: %v", err)
	}
	util.SetLevel(cfg.LogLevel)

	fmt.Printf("🚀 Starting fanout engine on port %d\n", cfg.EnginePort)
	fmt.Printf("📊 Exporter: %v | 🗜️ Gzip: %v\n", cfg.EnableExporter, cfg.EnableGzip)

	if err := os.MkdirAll(cfg.LogDir, 0755); err != nil {
		log.Fatalf("❌ Failed to create log dir '%s': %v", cfg.LogDir, err)
	}

	// Durable layers
	dm := disk.NewDiskManager(cfg)
	tm := topic.NewTopicManager(cfg, dm.Provider())
	tm.CreateTopic(eventsTopic, cfg.DefaultPartitions)

	om, err := offset.NewOffsetManager(filepath.Join(cfg.LogDir, "offsets.json"))
	if err != nil {
		log.Fatalf("❌ Failed to load offsets: %v", err)
	}
	counters, err := ranking.NewCounters(filepath.Join(cfg.LogDir, "ranking_counters.json"))
	if err != nil {
		log.Fatalf("❌ Failed to load ranking counters: %v", err)
	}
	archive, err := delivery.NewArchive(filepath.Join(cfg.LogDir, "delivery_archive.jsonl"))
	if err != nil {
		log.Fatalf("❌ Failed to open delivery archive: %v", err)
	}

	// Coordination and processing
	cd := coordinator.NewCoordinator(cfg)
	go cd.Start()

	store := ranking.NewStore(4, cfg.TopKMax, cfg.TopKSlack, cfg.DecayFactor, counters)
	store.Rebuild()
	reconciler := ranking.NewReconciler(store, counters,
		time.Duration(cfg.ReconcileIntervalMS)*time.Millisecond)

	registry := session.NewRegistry(cfg.MaxSessions, cfg.SessionTTL,
		time.Duration(cfg.SessionSweepMS)*time.Millisecond)
	directory := fanout.NewDirectory()
	resolver := fanout.NewResolver(registry, directory, cfg.MaxPrefixLen)
	pusher := push.NewQueue(cfg.PushQueueSize)

	tracker := delivery.NewTracker(registry, pusher, archive,
		cfg.DeliveryMaxAttempts,
		time.Duration(cfg.DeliveryBaseBackoffMS)*time.Millisecond,
		time.Duration(cfg.DeliveryRetryTickMS)*time.Millisecond)

	filter := dedup.NewFilter(time.Duration(cfg.DedupHorizonMS)*time.Millisecond,
		cfg.DedupMaxPerPartition)

	member := pipeline.NewMember(cfg, cd, tm.GetTopic(eventsTopic), om, filter,
		resolver, tracker, store, fanoutGroup, fanoutGroup+"-"+uuid.NewString()[:8])

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go reconciler.Run(ctx)
	go tracker.Run(ctx)
	go func() {
		if err := member.Run(ctx); err != nil {
			log.Fatalf("❌ Pipeline member failed: %v", err)
		}
	}()

	handler := controller.NewCommandHandler(tm, tracker, store, registry, directory,
		pusher, cd, cfg, eventsTopic, fanoutGroup)

	if err := server.RunServer(cfg, handler); err != nil {
		log.Fatalf("❌ Engine failed: %v", err)
	}
}
