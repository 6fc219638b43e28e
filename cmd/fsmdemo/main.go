// Command fsmdemo runs an NPC brain on the tick loop and feeds it simulated
// sensor readings. State machine metrics are served for Prometheus.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"math/rand"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
	"go.uber.org/zap/exp/zapslog"
	"golang.org/x/sync/errgroup"

	"github.com/librescoot/tickfsm"
	"github.com/librescoot/tickfsm/config"
	"github.com/librescoot/tickfsm/internal/npc"
	"github.com/librescoot/tickfsm/loop"
	"github.com/librescoot/tickfsm/metrics"
)

func main() {
	configPath := flag.String("config", "", "path to a YAML config file")
	flag.Parse()

	if err := run(*configPath); err != nil {
		fmt.Fprintf(os.Stderr, "fsmdemo: %v\n", err)
		os.Exit(1)
	}
}

func run(configPath string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	logger, err := cfg.Log.Build()
	if err != nil {
		return fmt.Errorf("build logger: %w", err)
	}
	defer logger.Sync() //nolint:errcheck
	sugar := logger.Sugar()

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	collector := metrics.NewCollector(reg)

	opts := cfg.MachineOptions(slog.New(zapslog.NewHandler(logger.Core())))
	opts = append(opts, tickfsm.WithObserver(collector.Observer(cfg.Machine.Name)))
	m := tickfsm.NewMachine(opts...)
	m.OnStateChange(func(from, to tickfsm.StateID) {
		sugar.Infow("NPC changed state", "machine", cfg.Machine.Name, "from", from, "to", to)
	})
	defer m.Close()

	brain, err := npc.New(m, npc.DefaultStats())
	if err != nil {
		return fmt.Errorf("create npc: %w", err)
	}

	l := loop.New(cfg.LoopConfig(), logger, m)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return l.Run(ctx)
	})
	g.Go(func() error {
		return simulatePlayer(ctx, l, brain, sugar)
	})
	if cfg.Metrics.Enabled {
		srv := &http.Server{
			Addr:              cfg.Metrics.ListenAddr,
			Handler:           promhttp.HandlerFor(reg, promhttp.HandlerOpts{}),
			ReadHeaderTimeout: 5 * time.Second,
		}
		g.Go(func() error {
			sugar.Infof("Serving metrics on %s", cfg.Metrics.ListenAddr)
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return fmt.Errorf("metrics server: %w", err)
			}
			return nil
		})
		g.Go(func() error {
			<-ctx.Done()
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			return srv.Shutdown(shutdownCtx)
		})
	}

	return g.Wait()
}

// simulatePlayer wanders a player around the NPC and reports what the NPC
// would perceive. Events are posted so they reach the machine on the loop
// goroutine.
func simulatePlayer(ctx context.Context, l *loop.Loop, brain *npc.Brain, logger *zap.SugaredLogger) error {
	ticker := time.NewTicker(250 * time.Millisecond)
	defer ticker.Stop()

	distance := 12.0
	visible := false
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}

		distance += rand.Float64()*4 - 2.2
		if distance < 0 {
			distance = 0
		}
		d := distance

		var post func() error
		switch {
		case d < 8:
			visible = true
			post = func() error { return brain.Spot(d) }
		case visible:
			visible = false
			post = brain.Lose
		}
		if post != nil {
			if err := l.Post(post); err != nil {
				logger.Warnf("Dropping sensor reading: %v", err)
			}
		}

		if d < 1 && rand.Intn(4) == 0 {
			if err := l.Post(func() error { return brain.Hit(7) }); err != nil {
				logger.Warnf("Dropping hit: %v", err)
			}
		}
		if d > 20 {
			distance = 12
		}
	}
}
