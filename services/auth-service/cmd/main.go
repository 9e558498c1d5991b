package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/readpref"
	"google.golang.org/grpc"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"

	"github.com/vasapolrittideah/crm-identity-api/services/auth-service/internal/config"
	"github.com/vasapolrittideah/crm-identity-api/services/auth-service/internal/handler"
	"github.com/vasapolrittideah/crm-identity-api/services/auth-service/internal/repository"
	"github.com/vasapolrittideah/crm-identity-api/services/auth-service/internal/usecase"
	"github.com/vasapolrittideah/crm-identity-api/shared/auth"
	"github.com/vasapolrittideah/crm-identity-api/shared/discovery"
	"github.com/vasapolrittideah/crm-identity-api/shared/interceptor"
	"github.com/vasapolrittideah/crm-identity-api/shared/logger"
	"github.com/vasapolrittideah/crm-identity-api/shared/mailer"
	"github.com/vasapolrittideah/crm-identity-api/shared/metrics"
	"github.com/vasapolrittideah/crm-identity-api/shared/utilities"
)

const (
	shutdownTimeout = 10 * time.Second
	sweepInterval   = 15 * time.Minute
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		bootstrap := logger.New("auth-service", "info", "production")
		bootstrap.Fatal().Err(err).Msg("failed to load configuration")
	}

	log := logger.New(cfg.ServiceName, cfg.LogLevel, cfg.Environment)
	metrics.Init()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	client, err := repository.Connect(ctx, cfg.Mongo.URI, cfg.Mongo.QueryTimeout)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to connect to MongoDB")
	}
	defer func() {
		if err := client.Disconnect(context.Background()); err != nil {
			log.Error().Err(err).Msg("failed to disconnect from MongoDB")
		}
	}()
	db := client.Database(cfg.Mongo.Database)

	accountRepo := repository.NewAccountMongoRepository(ctx, log, db, cfg.Mongo.QueryTimeout)
	resetRepo := repository.NewResetRequestMongoRepository(ctx, log, db, cfg.Mongo.QueryTimeout)
	sessionRepo := repository.NewSessionMongoRepository(ctx, log, db, cfg.Mongo.QueryTimeout)
	auditRepo := repository.NewAuditEventMongoRepository(db, cfg.Mongo.QueryTimeout)

	proxies, err := utilities.ParseTrustedProxies(cfg.TrustedProxies)
	if err != nil {
		log.Fatal().Err(err).Msg("invalid trusted proxies")
	}

	jwtAuth := auth.NewJWTAuthenticator(cfg.Token.Issuer, cfg.Token.Issuer)
	tokenIssuer := usecase.NewTokenIssuer(accountRepo, sessionRepo, jwtAuth, cfg.Token)
	sessionValidator := usecase.NewSessionValidator(accountRepo, sessionRepo, jwtAuth, cfg.Token.AccessTokenSecret)
	auditRecorder := usecase.NewAuditRecorder(auditRepo, log)

	identityUsecase := usecase.NewIdentityUsecase(
		accountRepo,
		tokenIssuer,
		auditRecorder,
		config.LoadProviders,
		log,
	)
	passwordResetUsecase := usecase.NewPasswordResetUsecase(
		accountRepo,
		resetRepo,
		newResetDelivery(cfg, log),
		auditRecorder,
		cfg.PasswordReset,
		cfg.IsProduction(),
		log,
	)

	httpHandler := handler.NewAuthHTTPHandler(
		identityUsecase,
		passwordResetUsecase,
		sessionValidator,
		handler.NewProfileFetchers(config.LoadProviders, &http.Client{Timeout: 10 * time.Second}),
		mongoHealthCheck(client),
		cfg.RateLimit,
		proxies,
		log,
	)

	httpServer := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           httpHandler.Routes(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	grpcServer := grpc.NewServer(
		grpc.ChainUnaryInterceptor(
			handler.ClientInfoInterceptor(proxies),
			interceptor.NewJWTInterceptor(
				sessionValidator.Validate,
				[]string{healthpb.Health_Check_FullMethodName, handler.ValidateSessionMethod},
			),
		),
	)
	utilities.RegisterHealthServer(grpcServer)
	handler.RegisterIdentityGRPCHandler(grpcServer, handler.NewIdentityGRPCHandler(identityUsecase, sessionValidator, log))

	go func() {
		log.Info().Str("addr", cfg.HTTPAddr).Msg("HTTP server listening")
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("HTTP server failed")
		}
	}()

	go func() {
		lis, err := net.Listen("tcp", cfg.GRPCAddr)
		if err != nil {
			log.Fatal().Err(err).Str("addr", cfg.GRPCAddr).Msg("failed to listen")
		}
		log.Info().Str("addr", cfg.GRPCAddr).Msg("gRPC server listening")
		if err := grpcServer.Serve(lis); err != nil {
			log.Fatal().Err(err).Msg("gRPC server failed")
		}
	}()

	go runSweeper(ctx, passwordResetUsecase, log)

	deregister := registerWithConsul(cfg, log)

	<-ctx.Done()
	log.Info().Msg("shutting down")

	deregister()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("failed to shut down HTTP server")
	}
	grpcServer.GracefulStop()
}

// newResetDelivery mails reset links in production and whenever SMTP is
// configured. Otherwise the link is only logged.
func newResetDelivery(cfg *config.AuthServiceConfig, log *zerolog.Logger) usecase.ResetDelivery {
	if cfg.IsProduction() || os.Getenv("SMTP_HOST") != "" {
		return usecase.NewEmailDelivery(mailer.NewMailer(log), cfg.AppPasswordResetURL)
	}
	log.Warn().Msg("SMTP is not configured, password reset links are only logged")
	return usecase.NewDevDelivery(cfg.AppPasswordResetURL, log)
}

func mongoHealthCheck(client *mongo.Client) handler.HealthCheck {
	return func(ctx context.Context) error {
		ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
		defer cancel()
		return client.Ping(ctx, readpref.Primary())
	}
}

func runSweeper(ctx context.Context, uc usecase.PasswordResetUsecase, log *zerolog.Logger) {
	ticker := time.NewTicker(sweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := uc.Sweep(ctx); err != nil {
				log.Warn().Err(err).Msg("failed to sweep password reset requests")
			}
		}
	}
}

func registerWithConsul(cfg *config.AuthServiceConfig, log *zerolog.Logger) func() {
	if !cfg.Consul.Enabled {
		return func() {}
	}

	registry, err := discovery.NewConsulRegistry(cfg.Consul.Address, log)
	if err != nil {
		log.Error().Err(err).Msg("failed to create consul client")
		return func() {}
	}

	_, portStr, err := net.SplitHostPort(cfg.HTTPAddr)
	if err != nil {
		log.Error().Err(err).Msg("invalid HTTP address")
		return func() {}
	}
	port, err := strconv.Atoi(portStr)
	if err != nil {
		log.Error().Err(err).Msg("invalid HTTP port")
		return func() {}
	}

	serviceID := cfg.Consul.ServiceID
	if serviceID == "" {
		serviceID = fmt.Sprintf("%s-%s-%d", cfg.ServiceName, cfg.Consul.AdvertiseHost, port)
	}

	if err := registry.Register(discovery.ServiceRegistration{
		ID:        serviceID,
		Name:      cfg.ServiceName,
		Address:   cfg.Consul.AdvertiseHost,
		Port:      port,
		HealthURL: fmt.Sprintf("http://%s/healthz", net.JoinHostPort(cfg.Consul.AdvertiseHost, portStr)),
		Tags:      []string{"http", "auth"},
	}); err != nil {
		log.Error().Err(err).Msg("failed to register with consul")
		return func() {}
	}

	return func() {
		if err := registry.Deregister(serviceID); err != nil {
			log.Error().Err(err).Msg("failed to deregister from consul")
		}
	}
}
