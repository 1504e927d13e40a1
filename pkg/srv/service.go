package srv

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sandevgo/tuskmem/pkg/log"
	"golang.org/x/sync/errgroup"
)

// Service is a long-running component. Start blocks until ctx is done or
// the service finishes on its own.
type Service interface {
	Start(ctx context.Context) error
	Shutdown(ctx context.Context) error
}

const shutdownTimeout = 10 * time.Second

// Run starts all services and blocks until ctx is cancelled or one of them
// fails. Services are then shut down in reverse order.
func Run(ctx context.Context, services ...Service) error {
	logger := log.FromCtx(ctx)

	g, gctx := errgroup.WithContext(ctx)
	for _, service := range services {
		g.Go(func() error {
			if err := service.Start(gctx); err != nil && !errors.Is(err, context.Canceled) {
				return fmt.Errorf("%T failed: %w", service, err)
			}
			return nil
		})
	}

	runErr := g.Wait()
	if runErr != nil {
		logger.Error().Err(runErr).Msg("service stopped with error")
	}

	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
	defer cancel()

	return errors.Join(runErr, Shutdown(shutdownCtx, services...))
}

// Shutdown stops services in reverse order, collecting errors.
func Shutdown(ctx context.Context, services ...Service) error {
	var errs []error
	for i := len(services) - 1; i >= 0; i-- {
		if err := services[i].Shutdown(ctx); err != nil {
			log.FromCtx(ctx).Error().Err(err).Msgf("%T failed to shutdown", services[i])
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
