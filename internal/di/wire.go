//go:build wireinject
// +build wireinject

package di

import (
	"context"
	"log/slog"

	"github.com/sandeepkv93/secure-qr-auth-service/internal/app"
	"github.com/sandeepkv93/secure-qr-auth-service/internal/config"
	"github.com/sandeepkv93/secure-qr-auth-service/internal/http/handler"
	"github.com/sandeepkv93/secure-qr-auth-service/internal/repository"
	"github.com/sandeepkv93/secure-qr-auth-service/internal/service"

	"github.com/google/wire"
	sdklog "go.opentelemetry.io/otel/sdk/log"
)

var storeSet = wire.NewSet(
	provideDatabase,
	repository.NewStore,
	wire.Bind(new(repository.Store), new(*repository.GormStore)),
)

var serviceSet = wire.NewSet(
	provideRedis,
	provideAuditor,
	provideRoleResolver,
	provideRoleBindingService,
)

func InitializeApp(ctx context.Context, cfg *config.Config, logger *slog.Logger, lp *sdklog.LoggerProvider) (*app.App, error) {
	wire.Build(
		storeSet,
		serviceSet,
		provideObservability,
		provideJWTManager,
		providePayloadCodec,
		provideTicketPepper,
		provideNegativeLookupCache,
		provideImageRenderer,
		provideTicketIssuer,
		provideQRBroker,
		provideApprovalHandshake,
		provideInviteRegistry,
		service.NewUserService,
		handler.NewQRHandler,
		handler.NewInviteHandler,
		handler.NewRoleBindingHandler,
		handler.NewUserHandler,
		provideReadiness,
		provideRouter,
		provideHTTPServer,
		app.New,
	)
	return nil, nil
}

func InitializeAdminTools(cfg *config.Config, logger *slog.Logger) (*AdminTools, error) {
	wire.Build(
		storeSet,
		serviceSet,
		provideAdminTools,
	)
	return nil, nil
}
