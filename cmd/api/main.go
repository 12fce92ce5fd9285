package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"storefront-core/config"
	"storefront-core/internal/delivery/http/middleware"
	v1 "storefront-core/internal/delivery/http/v1"
	"storefront-core/internal/domain"
	"storefront-core/internal/infrastructure/cache"
	"storefront-core/internal/infrastructure/intent"
	"storefront-core/internal/infrastructure/notify"
	"storefront-core/internal/infrastructure/payment"
	"storefront-core/internal/infrastructure/receipt"
	"storefront-core/internal/repository/memory"
	"storefront-core/internal/repository/postgres"
	"storefront-core/internal/usecase"
	"storefront-core/pkg/logger"
	"storefront-core/pkg/metrics"
	"storefront-core/pkg/storage"
	"storefront-core/pkg/utils"

	"github.com/NYTimes/gziphandler"
	"github.com/jackc/pgx/v5/pgxpool"
)

// repositories bundles whichever storage driver is configured.
type repositories struct {
	orders    domain.OrderRepository
	coupons   domain.CouponRepository
	returns   domain.ReturnRepository
	catalog   domain.CatalogService
	txManager domain.TransactionManager
	pool      *pgxpool.Pool
}

func main() {
	cfg := config.LoadConfig()
	utils.SetSecret(cfg.JWTSecret)

	logger.Init(cfg.Env, cfg.LogLevel)
	log := logger.Get()

	ctx := context.Background()

	repos, err := openRepositories(ctx, cfg)
	if err != nil {
		log.Fatal().Err(err).Str("driver", cfg.StorageDriver).Msg("Failed to initialise storage")
	}
	log.Info().Str("driver", cfg.StorageDriver).Msg("Storage ready")

	// Default expiration 30m, cleanup every 60m
	memCache := cache.NewMemoryCache(30*time.Minute, 60*time.Minute)

	var intents domain.IntentStore
	if cfg.RedisAddr != "" {
		client, err := intent.NewRedisClient(ctx, cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
		if err != nil {
			log.Fatal().Err(err).Str("addr", cfg.RedisAddr).Msg("Failed to connect to Redis")
		}
		defer client.Close()
		intents = intent.NewRedisStore(client, cfg.IntentTTL)
		log.Info().Str("addr", cfg.RedisAddr).Msg("Payment intents stored in Redis")
	} else {
		intents = intent.NewCacheStore(memCache, cfg.IntentTTL)
		log.Warn().Msg("REDIS_ADDR not set, payment intents are process-local")
	}

	var (
		notifier domain.Notifier       = notify.LogNotifier{}
		loyalty  domain.LoyaltyService = notify.LogLoyalty{}
		closers  []func() error
	)
	if len(cfg.KafkaBrokers) > 0 {
		orderEvents := notify.NewKafkaNotifier(notify.NewKafkaWriter(cfg.KafkaBrokers, cfg.KafkaOrderTopic))
		accruals := notify.NewKafkaLoyalty(notify.NewKafkaWriter(cfg.KafkaBrokers, cfg.KafkaLoyaltyTopic))
		notifier, loyalty = orderEvents, accruals
		closers = append(closers, orderEvents.Close, accruals.Close)
		log.Info().Strs("brokers", cfg.KafkaBrokers).Msg("Order events published to Kafka")
	}

	var receipts domain.ReceiptArchiver
	if cfg.ReceiptsEnabled() {
		r2, err := storage.NewR2Storage(ctx, storage.R2Config{
			AccountID:       cfg.R2AccountID,
			AccessKeyID:     cfg.R2AccessKeyID,
			AccessKeySecret: cfg.R2AccessKeySecret,
			Bucket:          cfg.R2BucketName,
			PublicURL:       cfg.R2PublicURL,
			UploadTimeout:   cfg.R2UploadTimeout,
		})
		if err != nil {
			log.Fatal().Err(err).Msg("Failed to initialise R2 storage")
		}
		receipts = receipt.NewArchiver(r2)
		log.Info().Str("bucket", cfg.R2BucketName).Msg("Receipts archived to R2")
	}

	methods := []domain.SettlementMethod{payment.NewCOD(nil)}
	if cfg.BKash.Enabled() {
		methods = append(methods, payment.NewBKash(gatewayConfig(cfg.BKash, cfg.GatewayTimeout)))
	}
	if cfg.Nagad.Enabled() {
		methods = append(methods, payment.NewNagad(gatewayConfig(cfg.Nagad, cfg.GatewayTimeout)))
	}

	// Usecases
	dispatcher := usecase.NewDispatcher(notifier, loyalty, receipts)
	machine := usecase.NewOrderStateMachine(repos.orders, repos.coupons, repos.catalog, repos.txManager, dispatcher, nil)
	couponUC := usecase.NewCouponUsecase(repos.coupons, nil)
	checkoutUC := usecase.NewCheckoutUsecase(repos.catalog, couponUC, intents, repos.orders, machine,
		methods, domain.Money(cfg.ShippingCharge), cfg.PublicBaseURL, nil)
	orderUC := usecase.NewOrderUsecase(repos.orders, machine, nil)
	aftersalesUC := usecase.NewAftersalesUsecase(orderUC, repos.returns, machine, dispatcher, nil)

	for _, m := range checkoutUC.Methods() {
		log.Info().Str("method", string(m)).Msg("Payment method enabled")
	}

	// Set up Router
	mux := http.NewServeMux()
	v1.RegisterRoutes(mux, v1.Handlers{
		Checkout:    v1.NewCheckoutHandler(checkoutUC),
		Order:       v1.NewOrderHandler(orderUC, aftersalesUC),
		AdminOrder:  v1.NewAdminOrderHandler(orderUC, aftersalesUC),
		AdminCoupon: v1.NewAdminCouponHandler(couponUC),
		Config:      v1.NewConfigHandler(memCache, checkoutUC, domain.Money(cfg.ShippingCharge), cfg.CacheEnumsTTL),
	})

	healthHandler := func(w http.ResponseWriter, r *http.Request) {
		status := map[string]string{"status": "ok", "storage": cfg.StorageDriver}
		if repos.pool != nil {
			if err := repos.pool.Ping(r.Context()); err != nil {
				status["status"] = "degraded"
				utils.WriteJSON(w, http.StatusServiceUnavailable, status)
				return
			}
		}
		utils.WriteJSON(w, http.StatusOK, status)
	}
	mux.HandleFunc("GET /api/v1/health", healthHandler)
	mux.HandleFunc("GET /health", healthHandler) // root health check for load balancers
	mux.Handle("GET /metrics", metrics.Handler())

	rateLimiter := middleware.NewRateLimiter(
		ctx,
		cfg.RateLimitRPS,
		cfg.RateLimitBurst,
		time.Minute,   // cleanup period
		3*time.Minute, // client TTL
	)

	handler := middleware.NewCORSMiddleware(cfg)(mux)
	handler = middleware.RequestLogger(handler)
	handler = rateLimiter.Middleware()(handler)
	handler = gziphandler.GzipHandler(handler)

	addr := fmt.Sprintf(":%s", cfg.Port)
	srv := &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("Server failed to start")
		}
	}()
	logger.ServiceStart("storefront-core", "1.0.0", cfg.Port)

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)
	<-quit

	log.Info().Msg("Server shutting down...")
	rateLimiter.Shutdown()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Server forced to shutdown")
	}

	// In-flight notifications finish before their brokers are closed.
	dispatcher.Wait()
	for _, c := range closers {
		if err := c(); err != nil {
			log.Warn().Err(err).Msg("Failed to close event writer")
		}
	}
	if repos.pool != nil {
		repos.pool.Close()
	}

	logger.ServiceStop("storefront-core")
}

func openRepositories(ctx context.Context, cfg *config.Config) (*repositories, error) {
	var seed []domain.CatalogProduct
	if cfg.SeedProductsFile != "" {
		products, err := memory.ReadProductSeed(cfg.SeedProductsFile)
		if err != nil {
			return nil, err
		}
		seed = products
	}

	if cfg.StorageDriver == config.StoragePostgres {
		pool, err := postgres.NewPgxPool(ctx, cfg)
		if err != nil {
			return nil, fmt.Errorf("connect: %w", err)
		}
		if err := postgres.Migrate(ctx, pool); err != nil {
			pool.Close()
			return nil, fmt.Errorf("migrate: %w", err)
		}
		if len(seed) > 0 {
			if err := postgres.SeedProducts(ctx, pool, seed); err != nil {
				pool.Close()
				return nil, fmt.Errorf("seed products: %w", err)
			}
		}
		return &repositories{
			orders:    postgres.NewOrderRepository(pool),
			coupons:   postgres.NewCouponRepository(pool),
			returns:   postgres.NewReturnRepository(pool),
			catalog:   postgres.NewCatalogService(pool),
			txManager: postgres.NewTransactionManager(pool),
			pool:      pool,
		}, nil
	}

	store := memory.NewStore()
	for _, p := range seed {
		store.PutProduct(p)
	}
	return &repositories{
		orders:    memory.NewOrderRepository(store),
		coupons:   memory.NewCouponRepository(store),
		returns:   memory.NewReturnRepository(store),
		catalog:   memory.NewCatalogService(store),
		txManager: store,
	}, nil
}

func gatewayConfig(g config.GatewayConfig, timeout time.Duration) payment.GatewayConfig {
	return payment.GatewayConfig{
		BaseURL: g.BaseURL,
		AppKey:  g.AppKey,
		Secret:  g.Secret,
		Timeout: timeout,
	}
}
