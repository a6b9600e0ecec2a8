// internal/app/bootstrap/shutdown.go
package bootstrap

import (
	"context"

	"github.com/dalemusser/waffle/config"
	"go.uber.org/zap"
)

// Shutdown stops the workers, then closes the cache and the Mongo client.
// Queued emails are delivered before the notifier returns.
func Shutdown(ctx context.Context, coreCfg *config.CoreConfig, appCfg AppConfig, deps DBDeps, logger *zap.Logger) error {
	if deps.Reconciler != nil {
		deps.Reconciler.Stop()
	}
	if deps.Notifier != nil {
		deps.Notifier.Stop()
	}
	if deps.Limiter != nil {
		deps.Limiter.Close()
	}
	if deps.Cache != nil {
		if err := deps.Cache.Close(); err != nil {
			logger.Warn("cache close failed", zap.Error(err))
		}
	}
	if deps.MongoClient != nil {
		logger.Info("disconnecting MongoDB client")
		if err := deps.MongoClient.Disconnect(ctx); err != nil {
			logger.Error("MongoDB disconnect failed", zap.Error(err))
			return err
		}
	}
	return nil
}
