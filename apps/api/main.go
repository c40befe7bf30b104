package main

import (
	"context"
	"expvar"
	"fmt"
	"log"
	"net/http"
	_ "net/http/pprof"
	"os"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/redis/go-redis/v9"

	echoapi "github.com/trezcool/educore/apps/api/echo"
	"github.com/trezcool/educore/core"
	"github.com/trezcool/educore/core/action"
	"github.com/trezcool/educore/core/admission"
	"github.com/trezcool/educore/core/auth"
	"github.com/trezcool/educore/core/registration"
	"github.com/trezcool/educore/services/broker"
	"github.com/trezcool/educore/services/email"
	"github.com/trezcool/educore/services/logger"
	"github.com/trezcool/educore/services/metrics"
	"github.com/trezcool/educore/services/ratelimit"
	"github.com/trezcool/educore/storage/database"
	"github.com/trezcool/educore/storage/database/sqlx"
)

func main() {
	// =========================================================================
	// Set up Dependencies

	conf := core.NewConfig()

	// set up loggers
	logger := logsvc.NewRollbarLogger(
		log.New(os.Stdout, "API : ", log.LstdFlags|log.Lmicroseconds|log.Lshortfile),
		conf,
	)
	logger.Enable(!conf.Debug)

	dbLogger := logsvc.NewRollbarLogger(
		log.New(os.Stdout, "DB : ", log.LstdFlags|log.Lmicroseconds|log.Lshortfile),
		conf,
	)
	dbLogger.Enable(!conf.Debug)

	logger.Info(fmt.Sprintf("Application initializing : %s", conf))
	defer logger.Info("Application stopped")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	checks := make(map[string]core.Pinger)

	// set up DB
	db, err := setUpDB(conf)
	if err != nil {
		logger.Fatal(fmt.Sprintf("setting up database: %v", err), err)
	}
	defer func() {
		if err = db.Close(); err != nil {
			dbLogger.Error("Failed to close", err)
		}
	}()
	checks["database"] = db

	// set up services
	var mailSvc core.EmailService
	if conf.Debug {
		mailSvc = emailsvc.NewConsoleService(conf, logger)
	} else {
		mailSvc = emailsvc.NewSendgridService(conf, logger)
	}
	defer mailSvc.Wait()

	var events registration.EventPublisher
	if conf.Broker.URL != "" {
		publisher, err := brokersvc.NewRabbitMQPublisher(conf.Broker.URL, conf.Broker.Queue, logger)
		if err != nil {
			logger.Fatal(fmt.Sprintf("setting up broker: %v", err), err)
		}
		defer func() {
			if err := publisher.Close(); err != nil {
				logger.Error("Failed to close broker", err)
			}
		}()
		events = publisher
		checks["broker"] = publisher
	}

	regSvc := registration.NewService(sqlxrepos.NewRegistrationRepository(db), mailSvc, events, logger, conf)

	// =========================================================================
	// Set up Admission & Gate

	memLimiter := admission.NewMemoryLimiter(admission.Settings{
		Limit:   conf.Admission.Limit,
		Window:  conf.Admission.Window,
		IdleTTL: conf.Admission.IdleTTL,
	})
	go memLimiter.Run(ctx, conf.Admission.SweepInterval, time.Now)

	var limiter admission.Limiter = memLimiter
	if conf.Redis.Address != "" {
		rdb := redis.NewClient(&redis.Options{
			Addr:     conf.Redis.Address,
			Password: conf.Redis.Password,
			DB:       conf.Redis.DB,
		})
		defer func() {
			if err := rdb.Close(); err != nil {
				logger.Error("Failed to close redis", err)
			}
		}()
		limiter = ratelimitsvc.NewRedisLimiter(rdb, memLimiter, logger)
		checks["redis"] = core.PingFunc(func(ctx context.Context) error { return rdb.Ping(ctx).Err() })
	}

	validate := core.NewValidator()
	metrics := metricsvc.NewCollector()

	pipeline := action.NewPipeline(
		limiter,
		auth.NewGate(auth.NewValidator([]byte(conf.SecretKey)), auth.DefaultPolicy, logger),
		action.NewBridge(conf, validate.Translator(), logger),
		metrics,
	)

	// =========================================================================
	// Start Debug Service
	//
	// /debug/pprof - Added to the default mux by importing the net/http/pprof package.
	// /debug/vars - Added to the default mux by importing the expvar package.

	// Expose important info under /debug/vars.
	expvar.NewString("build").Set(conf.Build)
	expvar.NewString("env").Set(conf.Env)
	expvar.Publish("admissionWindows", expvar.Func(func() interface{} { return memLimiter.Len() }))

	go func() {
		if err := http.ListenAndServe(conf.Server.DebugHost, http.DefaultServeMux); err != nil {
			logger.Error(fmt.Sprintf("debug server closed: %v", err), err)
		}
	}()

	// =========================================================================
	// Start API Service

	server := echoapi.NewServer(
		echoapi.ServerDeps{
			Conf:            conf,
			Logger:          logger,
			Pipeline:        pipeline,
			RegistrationSvc: regSvc,
			Validate:        validate,
			Checks:          checks,
			Metrics:         metrics.Handler(),
		},
	)

	go func() {
		server.Start()
	}()

	// =========================================================================
	// Shutdown

	select {
	case err = <-server.Errors():
		logger.Error(fmt.Sprintf("server error: %v", err), err)

	case sig := <-server.ShutdownSignal():
		logger.Info(fmt.Sprintf("%v: Start shutdown...", sig))

		// give outstanding requests a deadline for completion
		shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), conf.Server.ShutdownTimeout)
		defer cancelShutdown()

		// asking listener to shutdown and shed load
		if err = server.Shutdown(shutdownCtx); err != nil {
			logger.Error(fmt.Sprintf("could not stop server gracefully: %v", err), err)

			if err = server.Close(); err != nil {
				logger.Error(fmt.Sprintf("could not force stop server: %v", err), err)
			}
		}
	}
}

func setUpDB(conf *core.Config) (*sqlx.DB, error) {
	if err := database.CreateIfNotExist(conf); err != nil {
		return nil, err
	}

	db, err := database.Open(conf)
	if err != nil {
		return nil, err
	}

	if err = database.Migrate(db.DB); err != nil {
		return nil, err
	}
	return db, nil
}
