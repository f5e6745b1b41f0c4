package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"workshop_booking/api"
	"workshop_booking/application/aggregates"
	"workshop_booking/application/anomaly"
	"workshop_booking/application/notification"
	"workshop_booking/application/projection"
	"workshop_booking/application/saga"
	"workshop_booking/application/usecases"
	"workshop_booking/infrastructure/database"
	"workshop_booking/infrastructure/eventstore"
	"workshop_booking/infrastructure/idempotency"
	"workshop_booking/infrastructure/kv"
	"workshop_booking/infrastructure/messaging"
	"workshop_booking/infrastructure/outbox"
	"workshop_booking/infrastructure/payment"
	"workshop_booking/infrastructure/repository"
	"workshop_booking/pkg/config"
	"workshop_booking/pkg/obs"
)

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API and background consumers",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return fmt.Errorf("config: %w", err)
			}
			return serve(cfg)
		},
	}
}

// stores groups everything that differs between postgres and memory mode.
type stores struct {
	events      eventstore.EventStore
	outbox      eventstore.Outbox
	directory   interface {
		repository.WorkshopDirectory
		repository.VehicleDirectory
		repository.CustomerDirectory
	}
	settlements repository.SettlementRepository
	sessions    payment.SessionStore
	view        repository.BookingView
	alerts      repository.AlertStore
	ledger      idempotency.Ledger
	close       func()
}

func openStores(ctx context.Context, cfg config.App, local kv.Store) (*stores, error) {
	if cfg.StorageMode == "memory" {
		log.Println("⚠️  Memory storage: state is lost on restart")
		es := eventstore.NewMemoryEventStore()
		dir := repository.NewMemoryDirectory()
		seedDemo(dir)
		return &stores{
			events:      es,
			outbox:      es,
			directory:   dir,
			settlements: repository.NewMemorySettlementRepository(),
			sessions:    payment.NewMemorySessionStore(),
			view:        repository.NewMemoryBookingView(),
			alerts:      repository.NewMemoryAlertStore(),
			ledger:      idempotency.NewKVLedger(local, 7*24*time.Hour),
			close:       func() {},
		}, nil
	}

	db, err := database.Open(ctx, cfg.DatabaseURL, cfg.XRaySQL, cfg.ConnectAttempts)
	if err != nil {
		return nil, err
	}
	if err := db.Migrate(ctx); err != nil {
		db.Close()
		return nil, err
	}
	es := eventstore.NewPostgresEventStore(db.DB.DB)
	log.Println("✅ Event Store initialized")

	return &stores{
		events:      es,
		outbox:      es,
		directory:   repository.NewSQLDirectory(db.DB),
		settlements: repository.NewSQLSettlementRepository(db.DB),
		sessions:    repository.NewSQLSessionStore(db.DB),
		view:        repository.NewSQLBookingView(db.DB),
		alerts:      repository.NewSQLAlertStore(db.DB),
		ledger:      idempotency.NewProcessedEventsRepository(db.DB.DB),
		close:       func() { db.Close() },
	}, nil
}

func seedDemo(dir *repository.MemoryDirectory) {
	dir.AddWorkshop(repository.Workshop{ID: "w-demo", Name: "Demo Workshop", Status: repository.WorkshopApproved})
	dir.AddCustomer(repository.Customer{ID: "c-demo", Email: "demo@example.com", DisplayName: "Demo Customer"})
	dir.AddVehicle(repository.Vehicle{ID: "v-demo", OwnerID: "c-demo", Brand: "Fiat", Model: "Uno", Year: 2012, Plate: "ABC1D23"})
	log.Println("🌱 Seeded demo workshop w-demo, customer c-demo, vehicle v-demo")
}

// connectBus dials RabbitMQ with retries, or returns the in-process bus when
// no URL is configured.
func connectBus(url, exchange string, attempts int) (messaging.Bus, func() error, error) {
	if url == "" {
		bus := messaging.NewMemoryBus(0)
		log.Printf("✅ In-process bus for %s", exchange)
		return bus, bus.Close, nil
	}

	mq := messaging.NewRabbitMQ(url, exchange)
	var err error
	for i := 0; i < attempts; i++ {
		if err = mq.Connect(); err == nil {
			return mq, mq.Close, nil
		}
		log.Printf("⏳ Attempt %d/%d: Failed to connect to RabbitMQ: %v", i+1, attempts, err)
		time.Sleep(2 * time.Second)
	}
	return nil, nil, fmt.Errorf("failed to connect to RabbitMQ after %d attempts: %w", attempts, err)
}

func newGateway(cfg config.App) (payment.Gateway, error) {
	secret := []byte(cfg.WebhookSecret)
	if cfg.GatewayProvider == "omise" {
		return payment.NewOmiseGateway(cfg.OmisePublicKey, cfg.OmiseSecretKey, cfg.OmiseSourceType, secret)
	}
	log.Println("⚠️  Using the fake payment gateway")
	return payment.NewFakeGateway(secret), nil
}

func serve(cfg config.App) error {
	log.Println("🚀 Starting Workshop Booking Service...")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	shutdownTracer, err := obs.InitTracer(cfg.ServiceName, cfg.OTLPEndpoint, cfg.Env)
	if err != nil {
		return err
	}
	defer shutdownTracer(context.Background())

	// =====================================================
	// 1. Local key-value store (devices, rate limits, dedupe)
	// =====================================================
	local, err := kv.OpenBolt(cfg.BoltPath)
	if err != nil {
		return err
	}
	defer local.Close()
	go local.RunPurger(ctx, 10*time.Minute)

	// =====================================================
	// 2. Storage
	// =====================================================
	st, err := openStores(ctx, cfg, local)
	if err != nil {
		return err
	}
	defer st.close()

	// =====================================================
	// 3. Messaging
	// =====================================================
	bus, closeBus, err := connectBus(cfg.RabbitMQURL, cfg.EventsExchange, cfg.ConnectAttempts)
	if err != nil {
		return err
	}
	defer closeBus()

	var notifier notification.Notifier = notification.LogNotifier{}
	if cfg.RabbitMQURL != "" {
		notifyBus, closeNotify, err := connectBus(cfg.RabbitMQURL, cfg.NotifyExchange, cfg.ConnectAttempts)
		if err != nil {
			return err
		}
		defer closeNotify()
		notifier = notification.NewAMQPNotifier(notifyBus)
	}

	// =====================================================
	// 4. Use cases and saga
	// =====================================================
	rate, err := cfg.Rate()
	if err != nil {
		return err
	}
	gateway, err := newGateway(cfg)
	if err != nil {
		return err
	}

	aggregateStore := aggregates.NewAggregateStore(st.events)
	bookingSaga := saga.NewBookingSaga(
		aggregateStore,
		usecases.NewCreateBookingUseCase(aggregateStore, st.directory, st.directory),
		usecases.NewSettleBookingUseCase(aggregateStore, st.settlements, rate),
		usecases.NewBookingHistoryUseCase(aggregateStore),
		st.settlements,
		gateway,
		st.sessions,
		st.ledger,
		local,
		st.view,
		saga.Options{
			Currency:         cfg.Currency,
			Retry:            cfg.RetryPolicy(),
			GatewayTimeout:   cfg.GatewayTimeout,
			CreateRateLimit:  cfg.CreateRateLimit,
			CreateRateWindow: cfg.CreateRateWindow,
			SuggestionTTL:    cfg.SuggestionTTL,
		},
	)
	log.Println("✅ Saga orchestrator initialized")

	// =====================================================
	// 5. Consumers
	// =====================================================
	devices := notification.NewDeviceRegistry(local, cfg.DeviceTokenTTL)
	consumers := []interface{ Start(messaging.Bus) error }{
		projection.NewProjector(aggregateStore, st.view),
		notification.NewDispatcher(st.directory, devices, st.ledger, notifier),
		anomaly.NewMonitor(st.alerts, st.ledger, anomaly.Rules{
			RejectionWindow:    cfg.RejectionWindow,
			RejectionMinSample: cfg.RejectionMinSample,
			RejectionThreshold: cfg.RejectionThreshold,
			SpikeLimit:         cfg.SpikeLimit,
			SpikeWindow:        cfg.SpikeWindow,
			LowRatingMax:       cfg.LowRatingMax,
		}),
	}
	for _, c := range consumers {
		if err := c.Start(bus); err != nil {
			return err
		}
	}

	outboxPub := outbox.NewOutboxPublisher(st.outbox, bus, cfg.OutboxInterval)
	go func() {
		log.Println("🔄 Starting Outbox Publisher...")
		if err := outboxPub.Start(ctx); err != nil && ctx.Err() == nil {
			log.Printf("❌ Outbox publisher error: %v", err)
		}
	}()
	go bookingSaga.RunSweeper(ctx, time.Minute)

	// =====================================================
	// 6. HTTP
	// =====================================================
	handler := api.NewBookingHandler(bookingSaga, devices, st.alerts)
	server := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           api.NewRouter(handler, []byte(cfg.JWTSecret)),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Printf("🌐 Starting HTTP server on %s...", cfg.HTTPAddr)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	log.Println("✅ All services started successfully!")

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	select {
	case <-sigChan:
	case err := <-errCh:
		log.Printf("❌ HTTP server error: %v", err)
	}
	log.Println("🛑 Shutting down gracefully...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Printf("❌ HTTP server shutdown error: %v", err)
	}
	cancel()

	log.Println("👋 Goodbye!")
	return nil
}
