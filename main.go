// main.go

package main

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/contrib/instrumentation/google.golang.org/grpc/otelgrpc"
	"golang.org/x/sync/errgroup"
	"google.golang.org/grpc"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/reflection"

	"github.com/norun9/rocketshoes-cart/cart"
	"github.com/norun9/rocketshoes-cart/cartstore"
	"github.com/norun9/rocketshoes-cart/catalog"
	"github.com/norun9/rocketshoes-cart/config"
	"github.com/norun9/rocketshoes-cart/events"
	"github.com/norun9/rocketshoes-cart/services"
)

const (
	sessionIdle     = 30 * time.Minute
	pruneInterval   = 5 * time.Minute
	shutdownTimeout = 10 * time.Second
)

var log *logrus.Logger

func init() {
	log = logrus.New()
	log.Level = logrus.DebugLevel
	log.Formatter = &logrus.JSONFormatter{
		FieldMap: logrus.FieldMap{
			logrus.FieldKeyTime:  "timestamp",
			logrus.FieldKeyLevel: "severity",
			logrus.FieldKeyMsg:   "message",
		},
		TimestampFormat: time.RFC3339Nano,
	}
	log.Out = os.Stdout
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load(".env")
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}
	if lvl, err := logrus.ParseLevel(cfg.LogLevel); err == nil {
		log.SetLevel(lvl)
	} else {
		log.Warnf("unknown LOG_LEVEL %q, keeping %s", cfg.LogLevel, log.GetLevel())
	}

	tp, err := initTracerProvider(ctx, cfg)
	if err != nil {
		log.Fatalf("failed to initialize tracer provider: %v", err)
	}
	defer func() {
		if err := tp.Shutdown(context.Background()); err != nil {
			log.Errorf("error shutting down tracer provider: %v", err)
		}
	}()
	mp, err := initMeterProvider(ctx, cfg)
	if err != nil {
		log.Fatalf("failed to initialize meter provider: %v", err)
	}
	defer func() {
		if err := mp.Shutdown(context.Background()); err != nil {
			log.Errorf("error shutting down meter provider: %v", err)
		}
	}()
	log.WithField("exporter", cfg.OTelExporter).Info("telemetry initialized")

	store, closeStore, err := newCartStore(ctx, cfg)
	if err != nil {
		log.Fatalf("failed to create cart store: %v", err)
	}
	defer closeStore()
	if err := store.Initialize(ctx); err != nil {
		log.Fatalf("failed to initialize cart store: %v", err)
	}
	log.WithFields(logrus.Fields{"store": cfg.CartStore, "codec": cfg.CartCodec}).Info("cart store initialized")

	api := catalog.NewClient(cfg.APIBaseURL, cfg.APITimeout, log)
	var products cart.ProductCatalog = api
	if cfg.CatalogTTL > 0 {
		products = catalog.NewCachedCatalog(api, cfg.CatalogTTL)
	}

	var publisher services.CartPublisher
	if cfg.RabbitMQURL != "" {
		conn, ch, err := events.SetupConn(cfg.RabbitMQURL, log)
		if err != nil {
			log.Fatalf("failed to connect to RabbitMQ: %v", err)
		}
		defer conn.Close()
		defer ch.Close()
		publisher = events.NewPublisher(ch, log)
		log.WithField("exchange", events.ExchangeName).Info("publishing cart updates")
	}

	sessions := services.NewSessions(cart.Deps{
		Storage: store,
		Stock:   api,
		Catalog: products,
		Logger:  log,
	}, cfg.ToastBuffer, publisher, log)

	httpSrv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           services.NewCartServer(sessions, api, store, log).Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	grpcServer := grpc.NewServer(
		grpc.StatsHandler(otelgrpc.NewServerHandler()),
	)
	healthpb.RegisterHealthServer(grpcServer, services.NewHealthCheckService(store, log))
	reflection.Register(grpcServer)

	grpcAddr := fmt.Sprintf(":%s", cfg.GRPCPort)
	lis, err := net.Listen("tcp", grpcAddr)
	if err != nil {
		log.Fatalf("failed to listen on %s: %v", grpcAddr, err)
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.Infof("cart API listening on %s", httpSrv.Addr)
		if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return errors.Wrap(err, "http server")
		}
		return nil
	})
	g.Go(func() error {
		log.Infof("gRPC health server listening on %s", grpcAddr)
		if err := grpcServer.Serve(lis); err != nil && !errors.Is(err, grpc.ErrServerStopped) {
			return errors.Wrap(err, "grpc server")
		}
		return nil
	})
	g.Go(func() error {
		return sessions.PruneEvery(gctx, pruneInterval, sessionIdle)
	})
	g.Go(func() error {
		<-gctx.Done()
		log.Info("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		grpcServer.GracefulStop()
		return httpSrv.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil {
		log.Errorf("server stopped: %v", err)
	}
}

// newCartStore picks the storage backend named by CART_STORE. The returned
// func releases its connections.
func newCartStore(ctx context.Context, cfg config.Config) (cartstore.ICartStore, func(), error) {
	codec, err := cartstore.CodecByName(cfg.CartCodec)
	if err != nil {
		return nil, nil, err
	}

	switch cfg.CartStore {
	case "redis":
		log.Infof("using RedisCartStore with address %s", cfg.RedisAddress())
		s := cartstore.NewRedisCartStore(cfg.RedisAddress(), codec, log)
		return s, func() { s.Close() }, nil
	case "mongo":
		log.Infof("using MongoCartStore with database %s", cfg.MongoDatabase)
		s, err := cartstore.NewMongoCartStore(ctx, cfg.MongoURI, cfg.MongoDatabase, codec, log)
		if err != nil {
			return nil, nil, err
		}
		return s, func() { s.Close(context.Background()) }, nil
	default:
		log.Info("using LocalCartStore")
		return cartstore.NewLocalCartStore(codec), func() {}, nil
	}
}
