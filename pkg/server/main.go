package server

import (
	"fmt"
	"io"
	"net"
	"strings"
	"time"

	"github.com/notifylab/fanout/pkg/config"
	"github.com/notifylab/fanout/pkg/controller"
	"github.com/notifylab/fanout/pkg/metrics"
	"github.com/notifylab/fanout/util"
)

const maxWorkers = 1000

// RunServer starts the intake listener. Every frame is a 4-byte length
// prefix followed by an optionally gzipped command line.
func RunServer(cfg *config.Config, handler *controller.CommandHandler) error {
	if cfg.EnableExporter {
		metrics.StartMetricsServer(cfg.ExporterPort)
		util.Info("📈 Prometheus exporter started on port %d", cfg.ExporterPort)
	} else {
		util.Info("📉 Exporter disabled")
	}

	addr := fmt.Sprintf(":%d", cfg.EnginePort)
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return err
	}

	util.Info("🧩 Engine listening on %s (Gzip=%v)", addr, cfg.EnableGzip)

	workerCh := make(chan net.Conn, maxWorkers)
	for i := 0; i < maxWorkers; i++ {
		go func() {
			for conn := range workerCh {
				HandleConnection(conn, handler, cfg.EnableGzip)
			}
		}()
	}

	for {
		conn, err := ln.Accept()
		if err != nil {
			util.Warn("⚠️ Accept error: %v", err)
			continue
		}
		workerCh <- conn
	}
}

// HandleConnection processes a single client connection. A connection that
// issued SUBSCRIBE stays open so the delivery path can push payloads down it,
// and its session is dropped when the connection dies.
func HandleConnection(conn net.Conn, handler *controller.CommandHandler, enableGzip bool) {
	defer conn.Close()

	subscribedRecipient := ""
	defer func() {
		if subscribedRecipient != "" {
			handler.Registry.Unregister(subscribedRecipient)
		}
	}()

	for {
		conn.SetReadDeadline(time.Now().Add(5 * time.Minute))
		msgBuf, err := util.ReadWithLength(conn)
		if err != nil {
			if err != io.EOF {
				util.Warn("⚠️ Read error: %v", err)
			}
			return
		}

		data, err := util.DecompressMessage(msgBuf, enableGzip)
		if err != nil {
			util.Warn("⚠️ Decompress error: %v", err)
			return
		}

		cmdStr := strings.TrimSpace(string(data))
		upper := strings.ToUpper(cmdStr)

		switch {
		case strings.EqualFold(cmdStr, "EXIT"):
			writeResponse(conn, "BYE")
			return
		case strings.HasPrefix(upper, "SUBSCRIBE "):
			resp := handler.HandleSubscribe(conn, cmdStr)
			if !strings.HasPrefix(resp, "ERROR:") {
				subscribedRecipient = subscriberFrom(cmdStr)
			}
			writeResponse(conn, resp)
		default:
			writeResponse(conn, handler.HandleCommand(cmdStr))
		}
	}
}

func subscriberFrom(cmd string) string {
	for _, part := range strings.Fields(cmd) {
		if strings.HasPrefix(part, "recipient=") {
			return strings.TrimPrefix(part, "recipient=")
		}
	}
	return ""
}

func writeResponse(conn net.Conn, msg string) {
	if err := util.WriteWithLength(conn, []byte(msg)); err != nil {
		util.Warn("⚠️ Write response error: %v", err)
	}
}
