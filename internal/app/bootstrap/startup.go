// internal/app/bootstrap/startup.go
package bootstrap

import (
	"context"

	"github.com/dalemusser/waffle/config"
	"go.uber.org/zap"
)

// Startup runs after connections and indexes are in place and before the
// handler is built. It starts the email workers and the pending-identity
// reconciler; Shutdown stops both.
func Startup(ctx context.Context, coreCfg *config.CoreConfig, appCfg AppConfig, deps DBDeps, logger *zap.Logger) error {
	deps.Notifier.Start()
	deps.Reconciler.Start()
	logger.Info("background workers started",
		zap.Duration("reconcile_interval", appCfg.ReconcileInterval),
		zap.Bool("mail_enabled", deps.Mailer.Enabled()))
	return nil
}
