package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"cloud.google.com/go/bigquery"
	"cloud.google.com/go/storage"
	"github.com/CAFxX/httpcompression"
	"github.com/dgraph-io/badger/v4"
	"github.com/getsentry/sentry-go"
	sentryhttp "github.com/getsentry/sentry-go/http"
	"github.com/ilyakaznacheev/cleanenv"
	"github.com/julienschmidt/httprouter"
	"github.com/rs/zerolog/log"
	"github.com/segmentio/kafka-go"

	"github.com/multios/introspect/internal/httputil"
	"github.com/multios/introspect/internal/logutil"
	"github.com/multios/introspect/internal/memory"
	"github.com/multios/introspect/internal/probe"
	"github.com/multios/introspect/internal/procd"
	"github.com/multios/introspect/internal/procfs"
	"github.com/multios/introspect/internal/storageprovider"
	"github.com/multios/introspect/internal/storageutil"
	"github.com/multios/introspect/internal/trace"
)

// KafkaWriter is the occurrence publisher seam, satisfied by *kafka.Writer.
type KafkaWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

type environment struct {
	config ServiceConfig

	registry *trace.Registry
	history  *trace.History
	store    *memory.Store

	occurrencesWriter   KafkaWriter
	occurrencesInserter *bigquery.Inserter

	storage       storageutil.ObjectHandler
	storageClient *storage.Client
	badgerDB      *badger.DB

	probeSource *probe.Source
}

var release string

func newEnvironment() (*environment, error) {
	var e environment
	if err := cleanenv.ReadEnv(&e.config); err != nil {
		return nil, err
	}

	var daemon procd.Client
	if e.config.CaptureDriver == "procd" || e.config.InspectorDriver == "procd" {
		var err error
		daemon, err = procd.NewClient(e.config.ProcdHost)
		if err != nil {
			return nil, err
		}
	}

	var source trace.Source
	switch e.config.CaptureDriver {
	case "procd":
		source = daemon
	case "probe":
		e.probeSource = probe.NewSource(e.config.ProbePinPath)
		source = e.probeSource
	default:
		return nil, fmt.Errorf("unknown capture driver %q", e.config.CaptureDriver)
	}

	var inspector memory.Inspector
	switch e.config.InspectorDriver {
	case "procd":
		inspector = daemon
	case "procfs":
		inspector = procfs.NewInspector()
	default:
		return nil, fmt.Errorf("unknown inspector driver %q", e.config.InspectorDriver)
	}

	e.history = trace.NewHistory(e.config.HistoryCapacity)
	e.registry = trace.NewRegistry(source, e.history)
	e.store = memory.NewStore(inspector)

	ctx := context.Background()
	var err error
	if e.config.SnapshotsBucket != "" {
		e.storageClient, err = storage.NewClient(ctx)
		if err != nil {
			return nil, err
		}
		e.storage = &storageprovider.Gcs{BucketHandle: e.storageClient.Bucket(e.config.SnapshotsBucket)}
	} else {
		e.badgerDB, err = badger.Open(badger.DefaultOptions(e.config.BadgerPath))
		if err != nil {
			return nil, err
		}
		e.storage = &storageprovider.Badger{DB: e.badgerDB}
	}

	if e.config.Environment == "production" {
		bqClient, err := bigquery.NewClient(ctx, e.config.BigQueryProject)
		if err != nil {
			return nil, err
		}
		e.occurrencesInserter = bqClient.Dataset("issues").Table("occurrences").Inserter()
	}
	e.occurrencesWriter = &kafka.Writer{
		Addr:         kafka.TCP(e.config.OccurrencesKafkaBrokers...),
		Async:        true,
		Balancer:     kafka.CRC32Balancer{},
		BatchSize:    100,
		ReadTimeout:  3 * time.Second,
		Topic:        e.config.OccurrencesKafkaTopic,
		WriteTimeout: 3 * time.Second,
	}
	return &e, nil
}

func (e *environment) shutdown() {
	// Stopping the registry first flushes every live session into the
	// history before the stores and writers go away.
	e.registry.Close()
	if e.probeSource != nil {
		if err := e.probeSource.Close(); err != nil {
			sentry.CaptureException(err)
		}
	}
	if e.storageClient != nil {
		if err := e.storageClient.Close(); err != nil {
			sentry.CaptureException(err)
		}
	}
	if e.badgerDB != nil {
		if err := e.badgerDB.Close(); err != nil {
			sentry.CaptureException(err)
		}
	}
	if err := e.occurrencesWriter.Close(); err != nil {
		sentry.CaptureException(err)
	}
	sentry.Flush(5 * time.Second)
}

func (e *environment) newRouter() (*httprouter.Router, error) {
	compress, err := httpcompression.DefaultAdapter()
	if err != nil {
		return nil, err
	}

	routes := []struct {
		method  string
		path    string
		handler http.HandlerFunc
	}{
		{http.MethodGet, "/health", e.getHealth},
		{http.MethodPost, "/processes/:process_id/sessions", e.postSession},
		{http.MethodGet, "/processes/:process_id/analysis", e.getProcessAnalysis},
		{http.MethodPost, "/processes/:process_id/snapshots", e.postSnapshot},
		{http.MethodGet, "/processes/:process_id/snapshots", e.getProcessSnapshots},
		{http.MethodGet, "/sessions", e.getSessions},
		{http.MethodGet, "/sessions/:session_id", e.getSession},
		{http.MethodPost, "/sessions/:session_id/stop", e.postSessionStop},
		{http.MethodGet, "/sessions/:session_id/events", e.getSessionEvents},
		{http.MethodGet, "/sessions/:session_id/stats", e.getSessionStats},
		{http.MethodGet, "/snapshots/:snapshot_id", e.getSnapshot},
		{http.MethodGet, "/snapshots/:snapshot_id/fragmentation", e.getSnapshotFragmentation},
		{http.MethodGet, "/snapshots/:snapshot_id/diff/:other_id", e.getSnapshotDiff},
		{http.MethodPost, "/snapshots/:snapshot_id/archive", e.postSnapshotArchive},
	}

	router := httprouter.New()

	for _, route := range routes {
		handlerFunc := httputil.AnonymizeTransactionName(route.handler)
		handlerFunc = httputil.DecompressPayload(handlerFunc)
		handler := compress(handlerFunc)

		router.Handler(route.method, route.path, handler)
	}

	return router, nil
}

func main() {
	logutil.ConfigureLogger()

	env, err := newEnvironment()
	if err != nil {
		log.Fatal().Err(err).Msg("error setting up environment")
	}

	err = sentry.Init(sentry.ClientOptions{
		BeforeSendTransaction: httputil.SetHTTPStatusCodeTag,
		Dsn:                   env.config.SentryDSN,
		EnableTracing:         true,
		Environment:           env.config.Environment,
		Release:               release,
		TracesSampleRate:      1.0,
	})
	if err != nil {
		log.Fatal().Err(err).Msg("can't initialize sentry")
	}

	router, err := env.newRouter()
	if err != nil {
		sentry.CaptureException(err)
		log.Fatal().Err(err).Msg("error setting up the router")
	}

	server := http.Server{
		Addr:    fmt.Sprintf(":%d", env.config.Port),
		Handler: sentryhttp.New(sentryhttp.Options{}).Handle(router),
	}

	waitForShutdown := make(chan os.Signal)
	go func() {
		c := make(chan os.Signal, 1)
		signal.Notify(c, os.Interrupt, syscall.SIGTERM)
		<-c

		cctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		if err := server.Shutdown(cctx); err != nil {
			sentry.CaptureException(err)
			log.Err(err).Msg("error shutting down server")
		}

		close(waitForShutdown)
	}()

	err = server.ListenAndServe()
	if err != nil && err != http.ErrServerClosed {
		sentry.CaptureException(err)
		log.Err(err).Msg("server failed")
	}

	<-waitForShutdown

	// Shutdown the rest of the environment after the HTTP connections are closed
	env.shutdown()
}

func (e *environment) getHealth(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusNoContent)
}
