package main

import (
	"lanedesk/internal/agreement"
	allochandler "lanedesk/internal/allocation/handler"
	allocrepo "lanedesk/internal/allocation/repository"
	allocservice "lanedesk/internal/allocation/service"
	"lanedesk/internal/audit"
	"lanedesk/internal/broadcast"
	commithandler "lanedesk/internal/commit/handler"
	commitrepo "lanedesk/internal/commit/repository"
	commitservice "lanedesk/internal/commit/service"
	"lanedesk/internal/identity"
	identityrepo "lanedesk/internal/identity/repository"
	sessionhandler "lanedesk/internal/lanesession/handler"
	sessionrepo "lanedesk/internal/lanesession/repository"
	sessionservice "lanedesk/internal/lanesession/service"
	sessionvalidator "lanedesk/internal/lanesession/validator"
	paymenthandler "lanedesk/internal/payment/handler"
	paymentrepo "lanedesk/internal/payment/repository"
	paymentservice "lanedesk/internal/payment/service"
	"lanedesk/internal/policy"
	"lanedesk/internal/pricing"
	"lanedesk/pkg/app"
	"lanedesk/pkg/config"
	"lanedesk/pkg/contracts"
	"lanedesk/pkg/kafka"
	kafka_config "lanedesk/pkg/kafka/config"
	kafkamiddleware "lanedesk/pkg/kafka/middleware"
	"lanedesk/pkg/sealer"
)

const ServiceName = "lanes"

func main() {
	cfg := config.Load(ServiceName)
	cfg.SetMongo()

	cfg.Log.Info("Starting Lanes service")
	handlers := initServices(cfg)
	serverApp := app.NewApplication(cfg)
	serverApp.SetApp(handlers...)
	serverApp.Run()
}

func initServices(cfg *config.Config) []contracts.Handler {
	publisher := initPublisher(cfg)

	inputValidator := sessionvalidator.NewSessionValidator(cfg.Log)
	auditor := audit.NewMongoAuditRepository(cfg)

	customerRepo := identityrepo.NewMongoCustomerRepository(cfg)
	sessionRepo := sessionrepo.NewMongoLaneSessionRepository(cfg)
	resourceRepo := allocrepo.NewMongoResourceRepository(cfg)
	waitlistRepo := allocrepo.NewMongoWaitlistRepository(cfg)
	lockRepo := allocrepo.NewMongoLaneLockRepository(cfg)
	intentRepo := paymentrepo.NewMongoPaymentIntentRepository(cfg)
	visitRepo := commitrepo.NewMongoVisitRepository(cfg)
	blockRepo := commitrepo.NewMongoOccupancyBlockRepository(cfg)
	agreementRepo := commitrepo.NewMongoAgreementRepository(cfg)

	resolver := identity.NewStoreResolver(customerRepo)
	authorizer := policy.NewPinAuthorizer(cfg.AdminPIN)
	quoter := pricing.NewTableQuoter()
	renderer := agreement.NewTextRenderer()

	signatureSealer, err := sealer.New()
	if err != nil {
		cfg.Log.Fatal("Failed to initialize signature sealer", "error", err)
	}

	sessionService := sessionservice.NewLaneSessionService(
		sessionRepo,
		resolver,
		customerRepo,
		customerRepo,
		resourceRepo,
		intentRepo,
		auditor,
		publisher,
		inputValidator,
		cfg,
	)
	allocatorService := allocservice.NewAllocatorService(
		resourceRepo,
		waitlistRepo,
		lockRepo,
		sessionRepo,
		auditor,
		publisher,
		inputValidator,
		cfg,
	)
	estimator := allocservice.NewWaitlistEstimator(waitlistRepo, blockRepo, cfg)
	paymentService := paymentservice.NewPaymentService(
		intentRepo,
		sessionRepo,
		customerRepo,
		customerRepo,
		quoter,
		authorizer,
		auditor,
		publisher,
		inputValidator,
		cfg,
	)
	commitService := commitservice.NewCommitService(
		sessionRepo,
		resourceRepo,
		allocatorService,
		intentRepo,
		visitRepo,
		blockRepo,
		agreementRepo,
		renderer,
		signatureSealer,
		authorizer,
		auditor,
		publisher,
		inputValidator,
		cfg,
	)

	cfg.Log.Info("Lane services initialized", "database", cfg.MongoDatabaseName)
	return []contracts.Handler{
		sessionhandler.NewLaneSessionHandler(sessionService, cfg.Log),
		allochandler.NewAllocationHandler(allocatorService, estimator, cfg.Log),
		paymenthandler.NewPaymentHandler(paymentService, cfg.Log),
		commithandler.NewCommitHandler(commitService, cfg.Log),
	}
}

// initPublisher builds the Kafka broadcast path. Projection reads go
// straight to the repositories so published state always reflects the
// store of record.
func initPublisher(cfg *config.Config) broadcast.Publisher {
	kafkaCfg, err := kafka_config.Load()
	if err != nil {
		cfg.Log.Fatal("Invalid Kafka configuration", "error", err)
	}

	stateProducer, err := kafka.NewProducer(kafkaCfg, kafkaCfg.StateTopic)
	if err != nil {
		cfg.Log.Fatal("Failed to create state producer", "error", err)
	}
	eventProducer, err := kafka.NewProducer(kafkaCfg, kafkaCfg.EventTopic)
	if err != nil {
		cfg.Log.Fatal("Failed to create event producer", "error", err)
	}
	stateProducer.Use(kafkamiddleware.LoggingProducerMiddleware(cfg.Log))
	eventProducer.Use(kafkamiddleware.LoggingProducerMiddleware(cfg.Log))

	projector := broadcast.NewProjector(
		sessionrepo.NewMongoLaneSessionRepository(cfg),
		allocrepo.NewMongoResourceRepository(cfg),
		paymentrepo.NewMongoPaymentIntentRepository(cfg),
		identityrepo.NewMongoCustomerRepository(cfg),
	)
	return broadcast.NewKafkaPublisher(projector, stateProducer, eventProducer, cfg.Log)
}
