package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"net"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/clawcraft-master/clawcraft/internal/persistence/chunkdb"
	persistlog "github.com/clawcraft-master/clawcraft/internal/persistence/log"
	"github.com/clawcraft-master/clawcraft/internal/sim/catalogs"
	"github.com/clawcraft-master/clawcraft/internal/sim/tuning"
	"github.com/clawcraft-master/clawcraft/internal/sim/world"
	"github.com/clawcraft-master/clawcraft/internal/transport/rpc"
	"github.com/clawcraft-master/clawcraft/internal/transport/ws"
)

func main() {
	var (
		addr       = flag.String("addr", ":8080", "http listen address")
		worldID    = flag.String("world", "world_1", "world id")
		seed       = flag.Int64("seed", 1337, "world seed (used only when starting a fresh world)")
		dataDir    = flag.String("data", "./data", "runtime data directory")
		blocksPath = flag.String("blocks", "./data/blocks.json", "path to block catalog json")
		tuningPath = flag.String("tuning", "./data/tuning.yaml", "path to tuning.yaml")
		backend    = flag.String("backend", "sqlite", "chunk persistence backend (sqlite|badger)")
		flushEvery = flag.Duration("flush_interval", 5*time.Second, "dirty chunk flush interval")
		authToken  = flag.String("auth_token", "", "shared auth token (empty disables auth)")
	)
	flag.Parse()

	logger := log.New(os.Stdout, "[server] ", log.LstdFlags|log.Lmicroseconds)

	cats, err := catalogs.Load(*blocksPath)
	if err != nil {
		if !os.IsNotExist(err) {
			logger.Fatalf("load block catalog: %v", err)
		}
		logger.Printf("block catalog not found (%s); using built-in defaults", *blocksPath)
		cats = catalogs.Default()
	}

	tune, err := tuning.Load(*tuningPath)
	if err != nil {
		if !os.IsNotExist(err) {
			logger.Fatalf("load tuning: %v", err)
		}
		logger.Printf("tuning not found (%s); using defaults", *tuningPath)
		tune = tuning.Defaults()
	}

	w, err := world.New(world.Config{
		Name:      *worldID,
		Seed:      *seed,
		AuthToken: strings.TrimSpace(*authToken),
		Tuning:    tune,
	}, cats)
	if err != nil {
		logger.Fatalf("create world: %v", err)
	}

	worldDir := filepath.Join(*dataDir, "worlds", *worldID)
	if err := os.MkdirAll(worldDir, 0o755); err != nil {
		logger.Fatalf("create world dir: %v", err)
	}

	dbPath := filepath.Join(worldDir, "chunks.db")
	if *backend == "badger" {
		dbPath = filepath.Join(worldDir, "chunks.badger")
	}
	be, err := chunkdb.Open(*backend, dbPath)
	if err != nil {
		logger.Fatalf("open chunk backend: %v", err)
	}

	// Persisted chunks win over regeneration, so mutations survive restarts.
	n, err := chunkdb.Hydrate(w.Store(), be)
	if err != nil {
		logger.Fatalf("hydrate chunks: %v", err)
	}
	logger.Printf("world %s seed=%d backend=%s hydrated=%d chunks", *worldID, *seed, *backend, n)

	tickLog := persistlog.NewTickLogger(worldDir)
	auditLog := persistlog.NewAuditLogger(worldDir)
	w.SetTickLogger(tickLog)
	w.SetAuditLogger(auditLog)

	ctx, cancel := signalContext()
	defer cancel()

	flusher := chunkdb.NewFlusher(w.Store(), be, *flushEvery, nil)
	flushDone := make(chan struct{})
	go func() {
		flusher.Run(ctx)
		close(flushDone)
	}()

	go func() {
		if err := w.Run(ctx); err != nil && err != context.Canceled {
			logger.Printf("world stopped: %v", err)
		}
	}()

	rpcSrv := rpc.NewServer(w, strings.TrimSpace(*authToken), logger)

	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", func(rw http.ResponseWriter, r *http.Request) {
		rw.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(rw).Encode(map[string]any{"ok": true, "tick": w.CurrentTick()})
	})
	mux.HandleFunc("/metrics", func(rw http.ResponseWriter, r *http.Request) {
		rw.Header().Set("Content-Type", "text/plain; version=0.0.4")

		m := w.Metrics()
		st := w.Status()

		// Minimal Prometheus exposition format.
		fmt.Fprintf(rw, "# HELP clawcraft_world_tick Current world tick.\n")
		fmt.Fprintf(rw, "# TYPE clawcraft_world_tick gauge\n")
		fmt.Fprintf(rw, "clawcraft_world_tick{world=%q} %d\n", *worldID, st.Tick)

		fmt.Fprintf(rw, "# HELP clawcraft_world_agents Current number of agents in the world.\n")
		fmt.Fprintf(rw, "# TYPE clawcraft_world_agents gauge\n")
		fmt.Fprintf(rw, "clawcraft_world_agents{world=%q} %d\n", *worldID, st.Agents)

		fmt.Fprintf(rw, "# HELP clawcraft_world_clients Current number of connected clients.\n")
		fmt.Fprintf(rw, "# TYPE clawcraft_world_clients gauge\n")
		fmt.Fprintf(rw, "clawcraft_world_clients{world=%q} %d\n", *worldID, st.Clients)

		fmt.Fprintf(rw, "# HELP clawcraft_world_loaded_chunks Loaded chunk count.\n")
		fmt.Fprintf(rw, "# TYPE clawcraft_world_loaded_chunks gauge\n")
		fmt.Fprintf(rw, "clawcraft_world_loaded_chunks{world=%q} %d\n", *worldID, st.Chunks)

		fmt.Fprintf(rw, "# HELP clawcraft_world_dirty_chunks Chunks mutated since the last flush.\n")
		fmt.Fprintf(rw, "# TYPE clawcraft_world_dirty_chunks gauge\n")
		fmt.Fprintf(rw, "clawcraft_world_dirty_chunks{world=%q} %d\n", *worldID, st.DirtyChunks)

		fmt.Fprintf(rw, "# HELP clawcraft_ticks_total Total simulation ticks stepped.\n")
		fmt.Fprintf(rw, "# TYPE clawcraft_ticks_total counter\n")
		fmt.Fprintf(rw, "clawcraft_ticks_total{world=%q} %d\n", *worldID, m.TicksTotal.Load())

		fmt.Fprintf(rw, "# HELP clawcraft_agents_joined_total Total agents ever joined.\n")
		fmt.Fprintf(rw, "# TYPE clawcraft_agents_joined_total counter\n")
		fmt.Fprintf(rw, "clawcraft_agents_joined_total{world=%q} %d\n", *worldID, m.AgentsJoined.Load())

		fmt.Fprintf(rw, "# HELP clawcraft_actions_total Actions processed by result.\n")
		fmt.Fprintf(rw, "# TYPE clawcraft_actions_total counter\n")
		fmt.Fprintf(rw, "clawcraft_actions_total{world=%q,result=%q} %d\n", *worldID, "ok", m.ActionsOK.Load())
		fmt.Fprintf(rw, "clawcraft_actions_total{world=%q,result=%q} %d\n", *worldID, "rejected", m.ActionsRejected.Load())

		fmt.Fprintf(rw, "# HELP clawcraft_blocks_total Block mutations by kind.\n")
		fmt.Fprintf(rw, "# TYPE clawcraft_blocks_total counter\n")
		fmt.Fprintf(rw, "clawcraft_blocks_total{world=%q,kind=%q} %d\n", *worldID, "placed", m.BlocksPlaced.Load())
		fmt.Fprintf(rw, "clawcraft_blocks_total{world=%q,kind=%q} %d\n", *worldID, "broken", m.BlocksBroken.Load())

		fmt.Fprintf(rw, "# HELP clawcraft_chat_messages_total Chat messages relayed.\n")
		fmt.Fprintf(rw, "# TYPE clawcraft_chat_messages_total counter\n")
		fmt.Fprintf(rw, "clawcraft_chat_messages_total{world=%q} %d\n", *worldID, m.ChatMessages.Load())

		fmt.Fprintf(rw, "# HELP clawcraft_chunks_flushed_total Chunks written to the persistence backend.\n")
		fmt.Fprintf(rw, "# TYPE clawcraft_chunks_flushed_total counter\n")
		fmt.Fprintf(rw, "clawcraft_chunks_flushed_total{world=%q} %d\n", *worldID, flusher.FlushedTotal.Load())

		fmt.Fprintf(rw, "# HELP clawcraft_chunk_flush_errors_total Failed flush batches.\n")
		fmt.Fprintf(rw, "# TYPE clawcraft_chunk_flush_errors_total counter\n")
		fmt.Fprintf(rw, "clawcraft_chunk_flush_errors_total{world=%q} %d\n", *worldID, flusher.FlushErrors.Load())

		fmt.Fprintf(rw, "# HELP clawcraft_chunks_retained Chunks held for retry after a failed flush.\n")
		fmt.Fprintf(rw, "# TYPE clawcraft_chunks_retained gauge\n")
		fmt.Fprintf(rw, "clawcraft_chunks_retained{world=%q} %d\n", *worldID, flusher.Retained.Load())

		fmt.Fprintf(rw, "# HELP clawcraft_rpc_calls_total Discrete-mode RPC calls by result.\n")
		fmt.Fprintf(rw, "# TYPE clawcraft_rpc_calls_total counter\n")
		fmt.Fprintf(rw, "clawcraft_rpc_calls_total{world=%q,result=%q} %d\n", *worldID, "ok", rpcSrv.Calls()-rpcSrv.Failures())
		fmt.Fprintf(rw, "clawcraft_rpc_calls_total{world=%q,result=%q} %d\n", *worldID, "error", rpcSrv.Failures())
	})

	// Local-only admin endpoints.
	mux.HandleFunc("/admin/v1/state", func(rw http.ResponseWriter, r *http.Request) {
		if !isLoopbackRemote(r.RemoteAddr) {
			http.Error(rw, "forbidden", http.StatusForbidden)
			return
		}
		rw.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(rw).Encode(w.Status())
	})
	mux.HandleFunc("/admin/v1/flush", func(rw http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			rw.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		if !isLoopbackRemote(r.RemoteAddr) {
			http.Error(rw, "forbidden", http.StatusForbidden)
			return
		}
		ctx2, cancel2 := context.WithTimeout(r.Context(), 5*time.Second)
		defer cancel2()
		rw.Header().Set("Content-Type", "application/json")
		if err := flusher.FlushNow(ctx2); err != nil {
			rw.WriteHeader(http.StatusServiceUnavailable)
			_ = json.NewEncoder(rw).Encode(map[string]any{"ok": false, "error": err.Error()})
			return
		}
		_ = json.NewEncoder(rw).Encode(map[string]any{"ok": true, "flushed_total": flusher.FlushedTotal.Load()})
	})

	mux.HandleFunc("/v1/ws", ws.NewServer(w, logger).Handler())
	mux.HandleFunc("/v1/rpc", rpcSrv.Handler())

	srv := &http.Server{
		Addr:              *addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		<-ctx.Done()
		ctx2, cancel2 := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel2()
		_ = srv.Shutdown(ctx2)
	}()

	logger.Printf("listening on %s", *addr)
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logger.Fatalf("ListenAndServe: %v", err)
	}

	// Shutdown order: stop the loop, let the flusher make its final pass, then
	// close the backend and log sinks.
	cancel()
	<-flushDone
	if err := be.Close(); err != nil {
		logger.Printf("close chunk backend: %v", err)
	}
	if err := tickLog.Close(); err != nil {
		logger.Printf("close tick log: %v", err)
	}
	if err := auditLog.Close(); err != nil {
		logger.Printf("close audit log: %v", err)
	}
	logger.Printf("shutdown complete")
}

func signalContext() (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(context.Background())
	ch := make(chan os.Signal, 2)
	signal.Notify(ch, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-ch
		cancel()
	}()
	return ctx, cancel
}

func isLoopbackRemote(remoteAddr string) bool {
	host := remoteAddr
	if h, _, err := net.SplitHostPort(remoteAddr); err == nil {
		host = h
	}
	host = strings.TrimPrefix(host, "[")
	host = strings.TrimSuffix(host, "]")
	ip := net.ParseIP(host)
	return ip != nil && ip.IsLoopback()
}
