// README: Entry point; loads config, wires services, starts the HTTP server and the timeout sweeper.
package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"

	"quickauto/internal/config"
	httptransport "quickauto/internal/http"
	"quickauto/internal/infra"
	"quickauto/internal/logging"
	"quickauto/internal/modules/dispatch"
	"quickauto/internal/modules/notify"
	"quickauto/internal/modules/pricing"
	"quickauto/internal/modules/profile"
	"quickauto/internal/modules/ride"
	"quickauto/internal/modules/support"
)

const shutdownTimeout = 10 * time.Second

func main() {
	cfg, err := config.Load()
	if err != nil {
		logrus.Fatal(err)
	}
	log := logging.New(cfg.Log.Level, cfg.Log.Format)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, log); err != nil {
		log.WithError(err).Fatal("quickauto-api stopped")
	}
}

func run(ctx context.Context, cfg config.Config, log *logrus.Logger) error {
	fb, err := infra.NewFirebase(ctx, cfg.Firebase.ProjectID, cfg.Firebase.CredentialsFile)
	if err != nil {
		return err
	}
	defer fb.Close()

	profileSvc := profile.NewService(
		profile.NewFirestoreStore(fb.Firestore),
		profile.NewFirebaseIdentity(fb.Auth),
		cfg.Identity.EmailDomain,
		log,
	)
	supportSvc := support.NewService(support.NewFirestoreStore(fb.Firestore), profileSvc)
	notifier := notify.NewFCM(fb.Messaging, profileSvc, cfg.Firebase.DriverTopic, log)
	defer notifier.Wait()

	var (
		repo  ride.Repository
		sinks ride.MultiSink
	)
	if cfg.DB.DSN != "" {
		pool, err := infra.NewDB(ctx, cfg.DB.DSN)
		if err != nil {
			return err
		}
		defer pool.Close()
		pg := ride.NewPGStore(pool)
		sinks = append(sinks, ride.NewPGEventLog(pg))
		if cfg.Ride.Backend == config.BackendPostgres {
			repo = pg
		}
	}
	switch cfg.Ride.Backend {
	case config.BackendFirestore:
		repo = ride.NewFirestoreStore(fb.Firestore)
	case config.BackendMemory:
		log.Warn("memory ride backend: rides are lost on restart and not shared between instances")
		repo = ride.NewMemoryStore()
	}

	if len(cfg.Kafka.Brokers) > 0 {
		writer := infra.NewKafkaWriter(cfg.Kafka.Brokers, cfg.Kafka.Topic)
		defer writer.Close()
		sinks = append(sinks, ride.NewKafkaSink(writer))
	}

	rideOpts := []ride.Option{
		ride.WithLogger(log),
		ride.WithNotifier(notifier),
		ride.WithTimeouts(ride.Timeouts{
			Normal:  cfg.Ride.NormalTimeout,
			VIP:     cfg.Ride.VIPTimeout,
			Advance: cfg.Ride.AdvanceTimeout,
		}),
		ride.WithSweepInterval(cfg.Ride.SweepInterval),
	}
	if len(sinks) > 0 {
		rideOpts = append(rideOpts, ride.WithEvents(sinks))
	}

	var grace dispatch.GraceStore = dispatch.NewMemoryGraceStore(time.Now)
	if cfg.Redis.Addr != "" {
		rdb, err := infra.NewRedis(ctx, cfg.Redis.Addr)
		if err != nil {
			return err
		}
		defer rdb.Close()
		rideOpts = append(rideOpts,
			ride.WithFeed(ride.NewRedisFeed(rdb, log)),
			ride.WithIdempotency(ride.NewRedisIdempotency(rdb)),
		)
		grace = dispatch.NewRedisGraceStore(rdb)
	} else {
		log.Info("QA_REDIS_ADDR not set: change feed and grace windows are process-local")
	}

	rideSvc := ride.NewService(repo, pricing.NewService(), profileSvc, rideOpts...)
	dispatchSvc := dispatch.NewService(rideSvc, grace, cfg.Dispatch.GraceWindow, log)

	api := httptransport.NewServer(httptransport.ServerDeps{
		Rides:    rideSvc,
		Dispatch: dispatchSvc,
		Profiles: profileSvc,
		Support:  supportSvc,
		Verifier: fb.Verifier(),
		Log:      log,
	})
	server := &http.Server{
		Addr:              cfg.HTTP.Addr,
		Handler:           api.Routes(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go rideSvc.RunTimeoutMonitor(ctx)

	errCh := make(chan error, 1)
	go func() {
		log.WithFields(logrus.Fields{"addr": cfg.HTTP.Addr, "backend": cfg.Ride.Backend}).Info("http server listening")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}
	log.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	return server.Shutdown(shutdownCtx)
}
