// Package app wires every SPEC_FULL.md component into one bootable
// process, generalized from the teacher's internal/app.App/New/Start/
// Run/Close bootstrap (logger -> config -> Postgres -> repos/services ->
// router), trading its auth/course/material domain wiring for the job
// engine's own: store -> queue backend + reaper -> flow builder -> step
// registry -> orchestrator -> mirror -> worker pool -> enqueuer ->
// health/metrics -> gin router.
package app

import (
	"context"
	"fmt"
	"sync"

	"github.com/gin-gonic/gin"

	"github.com/flowforge/mediaflow/internal/domain"
	"github.com/flowforge/mediaflow/internal/enqueuer"
	"github.com/flowforge/mediaflow/internal/flow"
	"github.com/flowforge/mediaflow/internal/health"
	"github.com/flowforge/mediaflow/internal/media"
	"github.com/flowforge/mediaflow/internal/mirror"
	"github.com/flowforge/mediaflow/internal/observability"
	"github.com/flowforge/mediaflow/internal/orchestrator"
	"github.com/flowforge/mediaflow/internal/platform/envutil"
	"github.com/flowforge/mediaflow/internal/platform/gcp"
	"github.com/flowforge/mediaflow/internal/platform/logger"
	"github.com/flowforge/mediaflow/internal/queue"
	"github.com/flowforge/mediaflow/internal/steps"
	"github.com/flowforge/mediaflow/internal/store"
	"github.com/flowforge/mediaflow/internal/store/memstore"
	"github.com/flowforge/mediaflow/internal/store/postgres"
	wrk "github.com/flowforge/mediaflow/internal/worker"
)

// queueNames lists every durable queue a worker pool drains (§4.1).
var queueNames = []string{domain.QueueTranscode, domain.QueueIntelligence, domain.QueueRender, domain.QueueLabels}

// App bundles every wired component, mirroring the teacher's App struct
// shape (Log/Cfg/Router plus the wired domain surface) with Repos/Services/
// SSEHub replaced by the job engine's own pieces.
type App struct {
	Log    *logger.Logger
	Cfg    Config
	Router *gin.Engine

	Store        store.TaskStore
	Queue        *queue.RedisBackend
	Reaper       *queue.Reaper
	Orchestrator *orchestrator.Engine
	Mirror       *mirror.Mirror
	Enqueuer     *enqueuer.Enqueuer
	Health       *health.Checker
	Metrics      *health.Metrics

	workers []*worker
	cancel  context.CancelFunc
	wg      sync.WaitGroup

	closers      []func() error
	otelShutdown func(context.Context) error
}

type worker struct {
	queueName string
	run       func(ctx context.Context, queueName string) error
}

// New builds every component but does not start any background loop — the
// split mirrors the teacher's New() (wire everything) vs Start() (launch
// the worker service) separation.
func New() (*App, error) {
	cfg := LoadConfig()

	log, err := logger.New(cfg.LogMode)
	if err != nil {
		return nil, fmt.Errorf("init logger: %w", err)
	}

	otelShutdown := observability.Init(context.Background(), log, observability.Config{
		ServiceName: "mediaflow",
		Environment: cfg.LogMode,
	})

	taskStore, closeStore, err := wireStore(cfg, log)
	if err != nil {
		log.Sync()
		return nil, fmt.Errorf("init store: %w", err)
	}

	ctx := context.Background()
	rdb, err := queue.NewRedisBackend(ctx, cfg.RedisAddr, log)
	if err != nil {
		log.Sync()
		return nil, fmt.Errorf("init queue backend: %w", err)
	}
	reaper := queue.NewReaper(rdb, log, queue.DefaultReaperInterval)

	deps, closeDeps, err := wireStepDeps(cfg, log, taskStore)
	if err != nil {
		log.Sync()
		return nil, fmt.Errorf("init step deps: %w", err)
	}
	registry := steps.BuildRegistry(deps)
	overrides, err := flow.LoadRegistry(envutil.String("FLOW_OVERRIDES_PATH", ""))
	if err != nil {
		log.Sync()
		return nil, fmt.Errorf("load flow overrides: %w", err)
	}
	builder := flow.NewBuilder(overrides)

	mir := mirror.New(taskStore, log, cfg.ProgressDebounce)
	orch := orchestrator.New(rdb, mir)

	enq := enqueuer.New(taskStore, builder, rdb, log, enqueuer.Config{
		PollInterval: cfg.PollInterval,
		BatchSize:    cfg.BatchSize,
	})

	checker := health.New(rdb, taskStore, nil)
	metrics := health.NewMetrics(rdb, log)

	workers := make([]*worker, 0, len(queueNames)*cfg.WorkersPerQueue)
	for _, qn := range queueNames {
		n := cfg.WorkersPerQueue
		if n <= 0 {
			n = 1
		}
		for i := 0; i < n; i++ {
			w := wrk.New(rdb, registry, orch, mir, taskStore, log)
			workers = append(workers, &worker{queueName: qn, run: w.Run})
		}
	}

	a := &App{
		Log:          log,
		Cfg:          cfg,
		Store:        taskStore,
		Queue:        rdb,
		Reaper:       reaper,
		Orchestrator: orch,
		Mirror:       mir,
		Enqueuer:     enq,
		Health:       checker,
		Metrics:      metrics,
		workers:      workers,
		closers:      append([]func() error{closeStore}, closeDeps...),
		otelShutdown: otelShutdown,
	}
	a.Router = wireRouter(a)
	return a, nil
}

// Start launches the reaper, the worker pool, and the enqueuer as
// cancellable background goroutines, mirroring the teacher's Start()
// spawning CourseGeneration.StartWorker under its own context.
func (a *App) Start() {
	if a == nil || a.cancel != nil {
		return
	}
	ctx, cancel := context.WithCancel(context.Background())
	a.cancel = cancel

	a.wg.Add(1)
	go func() {
		defer a.wg.Done()
		a.Reaper.Run(ctx)
	}()

	for _, w := range a.workers {
		w := w
		a.wg.Add(1)
		go func() {
			defer a.wg.Done()
			if err := w.run(ctx, w.queueName); err != nil && ctx.Err() == nil {
				a.Log.Error("worker exited", "queue", w.queueName, "error", err)
			}
		}()
	}

	a.wg.Add(1)
	go func() {
		defer a.wg.Done()
		a.Enqueuer.Run(ctx)
	}()
}

// Run serves HTTP (health + metrics) on addr, blocking until the server
// exits.
func (a *App) Run(addr string) error {
	if a == nil || a.Router == nil {
		return fmt.Errorf("app not initialized")
	}
	return a.Router.Run(addr)
}

func (a *App) Close() {
	if a == nil {
		return
	}
	if a.cancel != nil {
		a.cancel()
		a.cancel = nil
	}
	a.wg.Wait()
	for _, c := range a.closers {
		if c != nil {
			_ = c()
		}
	}
	if a.otelShutdown != nil {
		_ = a.otelShutdown(context.Background())
	}
	if a.Log != nil {
		a.Log.Sync()
	}
}

func wireStore(cfg Config, log *logger.Logger) (store.TaskStore, func() error, error) {
	switch cfg.StorageBackend {
	case StorageBackendPostgres:
		s, err := postgres.New(postgres.Config{
			Host:     cfg.Postgres.Host,
			Port:     cfg.Postgres.Port,
			User:     cfg.Postgres.User,
			Password: cfg.Postgres.Password,
			Name:     cfg.Postgres.Name,
			SSLMode:  cfg.Postgres.SSLMode,
		}, log)
		if err != nil {
			return nil, nil, err
		}
		return s, s.Close, nil
	default:
		s := memstore.New()
		return s, s.Close, nil
	}
}

// trackResolver adapts store.TaskStore's GetTracksByIDs onto
// steps.TrackResolver's GetByIDs — the two were named independently after
// their own teacher precedents (JobRunRepo.GetByIDs) and don't share a
// method name, so the store can't satisfy the interface structurally.
type trackResolver struct {
	store store.TaskStore
}

func (r trackResolver) GetByIDs(ctx context.Context, ids []string) (map[string]map[string]any, error) {
	return r.store.GetTracksByIDs(ctx, ids)
}

func wireStepDeps(cfg Config, log *logger.Logger, taskStore store.TaskStore) (steps.Deps, []func() error, error) {
	var closers []func() error

	uploader, err := gcp.NewUploader(log)
	if err != nil {
		return steps.Deps{}, nil, fmt.Errorf("init uploader: %w", err)
	}
	closers = append(closers, uploader.Close)

	vision, err := gcp.NewVisionAnnotator(log)
	if err != nil {
		return steps.Deps{}, nil, fmt.Errorf("init vision annotator: %w", err)
	}
	closers = append(closers, vision.Close)

	videoIntel, err := gcp.NewVideoIntelligence(log)
	if err != nil {
		return steps.Deps{}, nil, fmt.Errorf("init video intelligence: %w", err)
	}
	closers = append(closers, videoIntel.Close)

	speechPreview, err := gcp.NewSpeechPreview(log)
	if err != nil {
		return steps.Deps{}, nil, fmt.Errorf("init speech preview: %w", err)
	}
	closers = append(closers, speechPreview.Close)

	toolchain := media.NewToolchain(envutil.String("FFMPEG_BIN", ""), envutil.String("FFPROBE_BIN", ""), nil)

	return steps.Deps{
		Toolchain: toolchain,
		Uploader:  uploader,
		Vision:    vision,
		Video:     videoIntel,
		Speech:    speechPreview,
		Tracks:    trackResolver{store: taskStore},
		WorkDir:   cfg.WorkDir,
	}, closers, nil
}
