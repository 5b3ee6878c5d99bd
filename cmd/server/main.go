package main

import (
	"context"
	"errors"
	"flag"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/Hero472/bdnsql/db"
	"github.com/Hero472/bdnsql/internal/config"
	"github.com/Hero472/bdnsql/internal/graph"
	httpserver "github.com/Hero472/bdnsql/internal/http"
	"github.com/Hero472/bdnsql/internal/progress"
	"github.com/Hero472/bdnsql/internal/report"
	"github.com/Hero472/bdnsql/internal/repository"
	"github.com/Hero472/bdnsql/internal/store"
	"github.com/Hero472/bdnsql/internal/workflow"
)

func main() {
	populate := flag.Bool("populate", false, "seed the content store with sample courses and exit")
	flag.Parse()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := config.LoadDotEnv(); err != nil {
		log.Fatalf("dotenv error: %v", err)
	}
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config error: %v", err)
	}

	logger := log.New(os.Stdout, "[bdnsql] ", log.LstdFlags|log.Lshortfile)

	dbCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	storeOpts := store.Options{
		MaxConns:               int32(cfg.DBMaxConns),
		MinConns:               int32(cfg.DBMinConns),
		MaxConnIdleTime:        time.Duration(cfg.DBMaxIdleSecs) * time.Second,
		MaxConnLifetime:        time.Duration(cfg.DBMaxLifeSecs) * time.Second,
		ConnTimeout:            time.Duration(cfg.DBConnTimeoutSecs) * time.Second,
		StatementCacheCapacity: cfg.DBStatementCache,
		Logger:                 logger,
	}

	st, err := store.New(dbCtx, cfg.DBURL, storeOpts)
	if err != nil {
		log.Fatalf("connect database: %v", err)
	}
	defer st.Close()

	if cfg.MigrateOnStart || *populate {
		if err := st.Migrate(dbCtx, db.Migrations); err != nil {
			log.Fatalf("migrate: %v", err)
		}
	}

	repo := repository.New(st)

	if *populate {
		if err := seedCourses(ctx, repo, logger); err != nil {
			log.Fatalf("populate: %v", err)
		}
		return
	}

	progressStore, err := progress.Open(progress.Options{
		Dir:        cfg.ProgressDir,
		InMemory:   cfg.ProgressInMemory,
		MaxRetries: cfg.ProgressMaxRetries,
		Logger:     logger,
	})
	if err != nil {
		log.Fatalf("open progress store: %v", err)
	}
	defer progressStore.Close()

	graphTimeout := time.Duration(cfg.GraphTimeoutSecs) * time.Second
	var mirror graph.Mirror = graph.Noop{}
	if cfg.GraphURL != "" {
		client, err := graph.NewNeo4jClient(cfg.GraphURL, cfg.GraphDatabase, cfg.GraphUser, cfg.GraphPassword, graphTimeout, logger)
		if err != nil {
			log.Fatalf("init graph client: %v", err)
		}
		mirror = client
	} else {
		logger.Printf("graph mirror disabled: GRAPH_URL not set")
	}

	reporter := report.New(logger, report.RollbarConfig{Token: cfg.RollbarToken, Environment: cfg.Env})
	defer reporter.Close()

	tracker := workflow.New(repo, progressStore, mirror, reporter, workflow.Options{
		StrictClassMembership: cfg.StrictClassMembership,
		MirrorTimeout:         graphTimeout,
		Logger:                logger,
	})

	server := httpserver.New(cfg, tracker, map[string]httpserver.HealthChecker{
		"content":  st,
		"progress": progressStore,
	}, reporter, logger)

	serverErrCh := make(chan error, 1)
	go func() {
		if err := server.Start(ctx); err != nil && !errors.Is(err, context.Canceled) {
			serverErrCh <- err
			return
		}
		serverErrCh <- nil
	}()

	select {
	case err := <-serverErrCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) && !errors.Is(err, context.Canceled) {
			log.Printf("server error: %v", err)
		}
	case <-ctx.Done():
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	if err := server.Shutdown(shutdownCtx); err != nil && !errors.Is(err, http.ErrServerClosed) {
		log.Printf("graceful shutdown error: %v", err)
	}
}
