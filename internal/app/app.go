package app

import (
	"context"
	"sync"

	"github.com/mselser95/typed-signer/pkg/config"
	"github.com/mselser95/typed-signer/pkg/healthprobe"
	"github.com/mselser95/typed-signer/pkg/httpserver"
	"go.uber.org/zap"
)

// App is the long-running service behind the serve command.
type App struct {
	cfg           *config.Config
	logger        *zap.Logger
	healthChecker *healthprobe.HealthChecker
	httpServer    *httpserver.Server
	components    *Components
	ctx           context.Context
	cancel        context.CancelFunc
	wg            sync.WaitGroup
}

// New creates a new application instance.
func New(cfg *config.Config, logger *zap.Logger) (*App, error) {
	ctx, cancel := context.WithCancel(context.Background())

	components, err := Build(ctx, cfg, logger)
	if err != nil {
		cancel()
		return nil, err
	}

	healthChecker := setupHealthChecker(components)
	httpServer := setupHTTPServer(cfg, logger, healthChecker, components)

	return &App{
		cfg:           cfg,
		logger:        logger,
		healthChecker: healthChecker,
		httpServer:    httpServer,
		components:    components,
		ctx:           ctx,
		cancel:        cancel,
	}, nil
}
