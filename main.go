package main

import (
	"context"
	"database/sql"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/IliaW/name-check-worker/config"
	"github.com/IliaW/name-check-worker/internal/analyser"
	"github.com/IliaW/name-check-worker/internal/api"
	"github.com/IliaW/name-check-worker/internal/aws_s3"
	"github.com/IliaW/name-check-worker/internal/broker"
	"github.com/IliaW/name-check-worker/internal/browser"
	cacheClient "github.com/IliaW/name-check-worker/internal/cache"
	"github.com/IliaW/name-check-worker/internal/captcha"
	"github.com/IliaW/name-check-worker/internal/crawler"
	"github.com/IliaW/name-check-worker/internal/llm"
	"github.com/IliaW/name-check-worker/internal/logging"
	"github.com/IliaW/name-check-worker/internal/model"
	"github.com/IliaW/name-check-worker/internal/persistence"
	"github.com/IliaW/name-check-worker/internal/portal"
	"github.com/IliaW/name-check-worker/internal/worker"
	"github.com/go-sql-driver/mysql"
	"github.com/google/uuid"
	jsoniter "github.com/json-iterator/go"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
)

var (
	cfg         *config.Config
	log         *slog.Logger
	logFile     io.Closer
	db          *sql.DB
	s3          aws_s3.BucketClient
	cache       cacheClient.CachedClient
	historyRepo persistence.HistoryStorage
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := rootCmd().ExecuteContext(ctx); err != nil {
		os.Exit(1)
	}
}

func rootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "name-check-worker",
		Short:         "Checks company names against the MCA portal.",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.AddCommand(serveCmd(), checkCmd())
	return root
}

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API, the worker pool and the kafka consumer.",
		RunE: func(cmd *cobra.Command, _ []string) error {
			setup(false)
			defer teardown()
			return serve(cmd.Context())
		},
	}
}

func checkCmd() *cobra.Command {
	var codes, checkType string
	cmd := &cobra.Command{
		Use:   "check <company name>",
		Short: "Run one name check and print the result.",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			setup(true)
			defer teardown()
			return check(cmd.Context(), args[0], codes, checkType)
		},
	}
	cmd.Flags().StringVar(&codes, "codes", "", "comma separated activity codes (default from config)")
	cmd.Flags().StringVar(&checkType, "type", "", "check type passed to the suggestion service")
	return cmd
}

func setup(requireConfig bool) {
	cfg = config.MustLoad(requireConfig)
	log, logFile = logging.New(cfg, os.Stdout)
	slog.SetDefault(log)
	log.Debug("debug messages are enabled.")

	historyRepo = persistence.NoopStorage{}
	if cfg.DbSettings.Enabled {
		db = setupDatabase()
		repo := persistence.NewHistoryRepository(db, log)
		if err := repo.Migrate(context.Background()); err != nil {
			log.Error("failed to create history table.", slog.String("err", err.Error()))
			os.Exit(1)
		}
		historyRepo = repo
	}
	if cfg.S3Settings.Enabled {
		client, err := aws_s3.NewS3BucketClient(cfg.S3Settings, log)
		if err != nil {
			log.Error("failed to connect to s3.", slog.String("err", err.Error()))
			os.Exit(1)
		}
		s3 = client
	}
	cache = cacheClient.New(cfg.CacheSettings, log)
}

func teardown() {
	cache.Close()
	closeDatabase()
	if err := logFile.Close(); err != nil {
		fmt.Fprintln(os.Stderr, "failed to close log file:", err)
	}
}

func newWorker(input <-chan *model.NameCheckTask, output chan<- *model.NameCheckResult, panicChan chan struct{},
	wg *sync.WaitGroup) *worker.NameCheckWorker {
	var store browser.ArtifactStore
	if s3 != nil {
		store = s3
	}
	provider, err := llm.NewProvider(cfg.LlmSettings)
	if err != nil {
		log.Warn("llm provider unavailable. suggestions will use the fallback.", slog.String("err", err.Error()))
	}
	return &worker.NameCheckWorker{
		InputChan:  input,
		OutputChan: output,
		PanicChan:  panicChan,
		Automation: portal.NewAutomation(portal.ChromeSessions(log), captcha.NewClient(cfg.CaptchaSettings, log),
			store, log),
		Analyser: analyser.New(llm.NewService(provider, cfg.LlmSettings, log), log),
		Cfg:      cfg,
		Log:      log,
		Db:       historyRepo,
		S3:       s3,
		Cache:    cache,
		Wg:       wg,
	}
}

func serve(ctx context.Context) error {
	log.Info("starting application on port "+cfg.Port, slog.String("env", cfg.Env))
	taskChan := make(chan *model.NameCheckTask, cfg.WorkerSettings.QueueSize)
	panicChan := make(chan struct{}, cfg.WorkerSettings.MaxWorkers)
	var resultChan chan *model.NameCheckResult
	kafkaWg := &sync.WaitGroup{}
	if cfg.KafkaSettings.Enabled {
		resultChan = make(chan *model.NameCheckResult, cfg.WorkerSettings.QueueSize)
		kafkaWg.Add(1)
		go broker.NewKafkaProducer(resultChan, cfg.KafkaSettings.Producer, log, kafkaWg).Run()
	}

	// Each worker drives one browser at a time.
	workerWg := &sync.WaitGroup{}
	nameCheckWorker := newWorker(taskChan, resultChan, panicChan, workerWg)
	for i := 0; i < cfg.WorkerSettings.MaxWorkers; i++ {
		workerWg.Add(1)
		go nameCheckWorker.Run(ctx)
	}
	// Restart workers if they panic. A crashed worker has already added one to workerWg for its replacement.
	restartCtx, stopRestarts := context.WithCancel(ctx)
	defer stopRestarts()
	restartDone := make(chan struct{})
	go func() {
		defer close(restartDone)
		for range panicChan {
			if restartCtx.Err() != nil {
				workerWg.Done()
				continue
			}
			go nameCheckWorker.Run(ctx)
			select {
			case <-time.After(3 * time.Minute): // timeout to avoid polluting logs if something unrecoverable happened
			case <-restartCtx.Done():
			}
		}
	}()

	status := crawler.NewStatusService(cfg.StatusSettings, log)
	server := api.NewServer(taskChan, nameCheckWorker.Analyser, cache, status, cfg, log)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return server.Run(gctx) })
	if cfg.KafkaSettings.Enabled {
		consumerWg := &sync.WaitGroup{}
		consumerWg.Add(1)
		g.Go(func() error {
			broker.NewKafkaConsumer(taskChan, cfg.KafkaSettings.Consumer, log, consumerWg).Run(gctx)
			return nil
		})
	}

	// Graceful shutdown.
	// 1. Stop the HTTP server and the kafka consumer. Refuse new checks and close taskChan
	// 2. Wait till all Workers processed all tasks from taskChan. Close resultChan and panicChan
	// 3. Wait till Producer process all messages from resultChan and write to kafka
	err := g.Wait()
	log.Info("stopping server...")
	stopRestarts()
	server.Stop()
	close(taskChan)
	log.Info("close taskChan.")
	workerWg.Wait()
	if resultChan != nil {
		close(resultChan)
		log.Info("close resultChan.")
	}
	close(panicChan)
	<-restartDone
	kafkaWg.Wait()
	return err
}

func check(ctx context.Context, name, codes, checkType string) error {
	w := newWorker(nil, nil, nil, nil)
	result := w.Process(ctx, &model.NameCheckTask{
		ID:        uuid.NewString(),
		Name:      name,
		NicCode:   codes,
		CheckType: model.CheckType(checkType),
	})

	out, err := jsoniter.ConfigCompatibleWithStandardLibrary.MarshalIndent(result.Envelope(), "", "  ")
	if err != nil {
		return err
	}
	fmt.Println(string(out))
	if !result.Success {
		return fmt.Errorf("name check failed: %s", result.Error)
	}
	return nil
}

func setupDatabase() *sql.DB {
	log.Info("connecting to the database...")
	sqlCfg := mysql.Config{
		User:                 cfg.DbSettings.User,
		Passwd:               cfg.DbSettings.Password,
		Net:                  "tcp",
		Addr:                 fmt.Sprintf("%s:%s", cfg.DbSettings.Host, cfg.DbSettings.Port),
		DBName:               cfg.DbSettings.Name,
		AllowNativePasswords: true,
		ParseTime:            true,
	}
	database, err := sql.Open("mysql", sqlCfg.FormatDSN())
	if err != nil {
		log.Error("failed to establish database connection.", slog.String("err", err.Error()))
		os.Exit(1)
	}
	database.SetConnMaxLifetime(cfg.DbSettings.ConnMaxLifetime)
	database.SetMaxOpenConns(cfg.DbSettings.MaxOpenConns)
	database.SetMaxIdleConns(cfg.DbSettings.MaxIdleConns)

	maxRetry := 6
	for i := 1; i <= maxRetry; i++ {
		log.Info("ping the database.", slog.String("attempt", fmt.Sprintf("%d/%d", i, maxRetry)))
		pingErr := database.Ping()
		if pingErr != nil {
			log.Error("not responding.", slog.String("err", pingErr.Error()))
			if i == maxRetry {
				log.Error("failed to establish database connection.")
				os.Exit(1)
			}
			log.Info(fmt.Sprintf("wait %d seconds", 5*i))
			time.Sleep(time.Duration(5*i) * time.Second)
		} else {
			break
		}
	}
	log.Info("connected to the database!")

	return database
}

func closeDatabase() {
	if db == nil {
		return
	}
	log.Info("closing database connection.")
	err := db.Close()
	if err != nil {
		log.Error("failed to close database connection.", slog.String("err", err.Error()))
	}
}
