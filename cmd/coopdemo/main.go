package main

import (
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"runtime"
	"runtime/pprof"
	"syscall"
	"time"

	"github.com/ehrlich-b/go-coop/examples/pipeline"
	"github.com/ehrlich-b/go-coop/internal/logging"
)

func main() {
	var (
		count    = flag.Int("count", 16, "Number of values the producer sends")
		base     = flag.Int64("base", 1, "First value the producer sends")
		capacity = flag.Int("capacity", 4, "Channel capacity (waiter-list bound)")
		verbose  = flag.Bool("v", false, "Verbose output")
	)
	flag.Parse()

	logConfig := logging.DefaultConfig()
	if *verbose {
		logConfig.Level = logging.LevelDebug
	}
	logger := logging.NewLogger(logConfig)
	logging.SetDefault(logger)

	// Dump goroutine stacks on SIGUSR1 — useful when a run hangs because a
	// task parked somewhere the scheduler's deadlock sweep didn't reach.
	stackDumpCh := make(chan os.Signal, 1)
	signal.Notify(stackDumpCh, syscall.SIGUSR1)
	go func() {
		for range stackDumpCh {
			buf := make([]byte, 1<<20)
			n := runtime.Stack(buf, true)
			fmt.Fprintf(os.Stderr, "=== GOROUTINE STACK DUMP ===\n%s\n", buf[:n])
			pprof.Lookup("goroutine").WriteTo(os.Stderr, 2)
		}
	}()

	logger.Info("running pipeline", "count", *count, "base", *base, "capacity", *capacity)

	start := time.Now()
	result, err := pipeline.Run(*count, *base, *capacity)
	if err != nil {
		logger.Error("failed to run pipeline", "error", err)
		log.Fatalf("pipeline: %v", err)
	}

	elapsed := time.Since(start)
	logger.Info("pipeline finished",
		"status", result.Status,
		"produced", result.Produced,
		"consumed", result.Consumed,
		"sum", result.Sum,
		"elapsed", elapsed)

	fmt.Printf("status: %d\n", result.Status)
	fmt.Printf("produced: %d  consumed: %d  sum: %d\n", result.Produced, result.Consumed, result.Sum)
	if result.Status != 0 {
		os.Exit(1)
	}
}
