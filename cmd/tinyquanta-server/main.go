// Command tinyquanta-server runs the dispatch/scheduling engine against a
// UDP socket, matching the original's standalone DPDK process entry point:
// bind a local address, fill the embedded key-value store, spin up one
// shard per worker thread, and serve until interrupted.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/zhluo94/tinyquanta"
	"github.com/zhluo94/tinyquanta/internal/bufpool"
	"github.com/zhluo94/tinyquanta/internal/constants"
	"github.com/zhluo94/tinyquanta/internal/logging"
	"github.com/zhluo94/tinyquanta/internal/nic"
	"github.com/zhluo94/tinyquanta/internal/sched"

	kvbackend "github.com/zhluo94/tinyquanta/backend"
)

func main() {
	var (
		addr         = flag.String("addr", fmt.Sprintf(":%d", constants.ServerUDPPort), "local UDP address to bind")
		numShards    = flag.Int("shards", constants.NumShards, "number of per-shard cooperative schedulers")
		numCoros     = flag.Int("coros", constants.NumCorosPerShard, "coroutine slots per shard")
		quantum      = flag.Uint64("quantum", constants.DefaultQuantumCycles, "preemption quantum in ticks")
		discipline   = flag.String("discipline", "fifo", "run-queue discipline: fifo, lifo, las")
		emptyHandler = flag.Bool("empty-handler", false, "disable preemption entirely (USE_EMPTY_HANDLER)")
		pin          = flag.Bool("pin", false, "pin each shard goroutine to its own CPU")
		baseCPU      = flag.Int("base-cpu", constants.DefaultBaseCPU, "first CPU a shard is pinned to")
		numKeys      = flag.Int("keys", 1024, "number of keys to pre-populate in the reference backend")
		logLevel     = flag.String("log-level", "info", "log level: debug, info, warn, error")
	)
	flag.Parse()

	logger := logging.NewLogger(&logging.Config{Level: parseLogLevel(*logLevel), Output: os.Stderr})
	logging.SetDefault(logger)

	disc, err := parseDiscipline(*discipline)
	if err != nil {
		logger.Error("invalid discipline", "err", err)
		os.Exit(1)
	}

	rxPool := bufpool.New("rx", constants.RXPoolSize, constants.RXPoolCacheSize)
	txPool := bufpool.New("tx", constants.TXPoolSize, constants.TXPoolCacheSize)

	udpRing, err := nic.NewUDPRing(*addr, rxPool, txPool)
	if err != nil {
		logger.Error("failed to bind UDP ring", "addr", *addr, "err", err)
		os.Exit(1)
	}
	defer udpRing.Close()

	store := kvbackend.NewKV()
	store.Populate(*numKeys)
	logger.Info("backend populated", "keys", store.Len())

	cfg := tinyquanta.DefaultDispatcherConfig()
	cfg.NumShards = *numShards
	cfg.NumCoros = *numCoros
	cfg.Discipline = disc
	cfg.Quantum = *quantum
	cfg.EmptyHandler = *emptyHandler
	cfg.Pin = *pin
	cfg.BaseCPU = *baseCPU
	cfg.Backend = store
	cfg.Ring = udpRing
	cfg.Logger = logger.With("dispatcher")

	dispatcher, err := tinyquanta.NewDispatcher(cfg)
	if err != nil {
		logger.Error("failed to construct dispatcher", "err", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	logger.Info("serving", "addr", *addr, "shards", cfg.NumShards, "coros_per_shard", cfg.NumCoros, "discipline", *discipline)
	dispatcher.Run(ctx)
	dispatcher.Stop()
	logger.Info("stopped")
}

func parseDiscipline(s string) (sched.Discipline, error) {
	switch s {
	case "fifo":
		return sched.FIFO, nil
	case "lifo":
		return sched.LIFOLoop, nil
	case "las":
		return sched.LAS, nil
	default:
		return sched.FIFO, fmt.Errorf("unknown discipline %q (want fifo, lifo, or las)", s)
	}
}

func parseLogLevel(s string) logging.LogLevel {
	switch s {
	case "debug":
		return logging.LevelDebug
	case "warn":
		return logging.LevelWarn
	case "error":
		return logging.LevelError
	default:
		return logging.LevelInfo
	}
}
