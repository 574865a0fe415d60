package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/aws/aws-lambda-go/events"
	"github.com/aws/aws-lambda-go/lambda"
	ginadapter "github.com/awslabs/aws-lambda-go-api-proxy/gin"
	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/imrishuroy/go-storefront/internal/admin"
	"github.com/imrishuroy/go-storefront/internal/applications"
	"github.com/imrishuroy/go-storefront/internal/audit"
	"github.com/imrishuroy/go-storefront/internal/auth"
	"github.com/imrishuroy/go-storefront/internal/aws"
	"github.com/imrishuroy/go-storefront/internal/catalog"
	"github.com/imrishuroy/go-storefront/internal/config"
	"github.com/imrishuroy/go-storefront/internal/handlers"
	"github.com/imrishuroy/go-storefront/internal/idempotency"
	"github.com/imrishuroy/go-storefront/internal/logging"
	"github.com/imrishuroy/go-storefront/internal/notify"
	"github.com/imrishuroy/go-storefront/internal/orders"
	"github.com/imrishuroy/go-storefront/internal/payments"
	"github.com/imrishuroy/go-storefront/internal/users"
)

// app holds what main needs after wiring: the router and the hooks to run
// on shutdown.
type app struct {
	router   *gin.Engine
	notifier *notify.Notifier
	redis    *redis.Client
}

func setupApp(cfg *config.Config, clients *aws.AWSClients, logger *zap.Logger) *app {
	tables := cfg.Tables()
	db := clients.DynamoDB

	productStore := catalog.NewStore(db, tables.Products)
	userStore := users.NewStore(db, tables.Users)
	auditStore := audit.NewStore(db, tables.Audit)
	idemStore := idempotency.NewStore(db, tables.Idempotency, cfg.IdempotencyTTL)

	a := &app{}

	var cache catalog.Cache
	if cfg.RedisAddr != "" {
		a.redis = redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
		cache = catalog.NewRedisCache(a.redis, cfg.ProductCacheTTL, logger)
		logger.Info("product cache enabled", zap.String("redis_addr", cfg.RedisAddr))
	}

	// a nil interface keeps the notifier from calling a nil *Publisher
	var sender notify.Sender
	if cfg.NotificationsQueueURL != "" {
		sender = aws.NewPublisher(clients.SQS, cfg.NotificationsQueueURL)
	} else {
		logger.Warn("NOTIFICATIONS_QUEUE_URL not set, notifications disabled")
	}
	a.notifier = notify.New(sender, userStore, logger)

	var metrics orders.MetricsRecorder
	if cfg.MetricsEnabled {
		metrics = aws.NewMetrics(clients.CloudWatch, cfg.MetricsNamespace)
	}

	if cfg.PaymentKeySecret == "" {
		logger.Warn("PAYMENT_KEY_SECRET not set, every payment verification will fail")
	}
	verifier := payments.NewVerifier(cfg.PaymentKeySecret)
	issuer := auth.NewIssuer(cfg.JWTSecret, cfg.TokenTTL)

	catalogSvc := catalog.NewService(productStore, cache, logger)
	orderSvc := orders.NewService(orders.Deps{
		Orders:      orders.NewStore(db, tables.Orders),
		Products:    productStore,
		Audit:       auditStore,
		Idempotency: idemStore,
		Cache:       catalogSvc,
		Events:      a.notifier,
		Metrics:     metrics,
		Verifier:    verifier,
		Logger:      logger,
	})
	appSvc := applications.NewService(applications.NewStore(db, tables.Applications), auditStore, a.notifier, logger)

	a.router = handlers.NewRouter(handlers.HandlerConfig{
		Catalog:      catalogSvc,
		Auth:         auth.NewService(userStore, issuer, auth.NewAdminAuthenticator(cfg.AdminEmail, cfg.AdminPassword, cfg.AdminPasswordHash), logger),
		Tokens:       issuer,
		Orders:       orderSvc,
		Payments:     payments.NewService(orderSvc, verifier, logger),
		Applications: appSvc,
		Admin:        admin.NewService(productStore, userStore, orderSvc, appSvc, logger),
		Audit:        auditStore,
		Idempotency:  idemStore,
		Logger:       logger,
	})
	return a
}

func (a *app) close() {
	a.notifier.Wait()
	if a.redis != nil {
		_ = a.redis.Close()
	}
}

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}
	logger, err := logging.New(cfg.LogLevel)
	if err != nil {
		log.Fatalf("failed to build logger: %v", err)
	}
	defer func() { _ = logger.Sync() }()

	gin.SetMode(gin.ReleaseMode)

	clients, err := aws.NewAWSClients(context.Background(), cfg.AWSRegion, cfg.AWSEndpoint)
	if err != nil {
		logger.Fatal("failed to init aws clients", zap.Error(err))
	}
	a := setupApp(cfg, clients, logger)
	defer a.close()

	if cfg.RunLocal {
		runLocal(a.router, cfg.Port, logger)
		return
	}

	adapter := ginadapter.New(a.router)
	lambda.Start(func(ctx context.Context, req events.APIGatewayProxyRequest) (events.APIGatewayProxyResponse, error) {
		resp, err := adapter.ProxyWithContext(ctx, req)
		// fire-and-forget sends must finish before the execution environment freezes
		a.notifier.Wait()
		return resp, err
	})
}

// runLocal serves HTTP until SIGINT or SIGTERM, then drains in-flight requests.
func runLocal(r http.Handler, port string, logger *zap.Logger) {
	srv := &http.Server{
		Addr:              ":" + port,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		logger.Info("running local server", zap.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("listen", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	logger.Info("shutting down server")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		logger.Error("server forced to shutdown", zap.Error(err))
	}
}
