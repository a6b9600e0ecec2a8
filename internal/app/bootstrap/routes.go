// internal/app/bootstrap/routes.go
package bootstrap

import (
	"net/http"
	"strings"

	agorafeature "github.com/dalemusser/commonshub/internal/app/features/agora"
	communityfeature "github.com/dalemusser/commonshub/internal/app/features/community"
	coursesfeature "github.com/dalemusser/commonshub/internal/app/features/courses"
	forumfeature "github.com/dalemusser/commonshub/internal/app/features/forum"
	healthfeature "github.com/dalemusser/commonshub/internal/app/features/health"
	profilefeature "github.com/dalemusser/commonshub/internal/app/features/profile"
	sessionfeature "github.com/dalemusser/commonshub/internal/app/features/session"
	subscriptionsfeature "github.com/dalemusser/commonshub/internal/app/features/subscriptions"
	uploadsfeature "github.com/dalemusser/commonshub/internal/app/features/uploads"
	"github.com/dalemusser/commonshub/internal/app/system/apierr"
	"github.com/dalemusser/commonshub/internal/app/system/auth"
	"github.com/dalemusser/commonshub/internal/app/system/forumid"
	"github.com/dalemusser/waffle/config"
	"github.com/dalemusser/waffle/pantry/fileserver"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"go.uber.org/zap"
)

// BuildHandler constructs the root router.
//
// Global middleware runs in this order: request id, panic recovery, CORS,
// metrics and access logging, then the session loader so every handler can
// see the signed-in user. Write endpoints additionally pass through the
// per-IP rate limiter.
func BuildHandler(coreCfg *config.CoreConfig, appCfg AppConfig, deps DBDeps, logger *zap.Logger) (http.Handler, error) {
	// Secure cookies are enabled in production mode.
	secure := coreCfg.Env == "prod"
	sessionMgr, err := auth.NewSessionManager(appCfg.SessionKey, appCfg.SessionName, appCfg.SessionDomain,
		appCfg.SessionMaxAge, appCfg.TokenTTL, secure, logger)
	if err != nil {
		logger.Error("session manager init failed", zap.Error(err))
		return nil, err
	}

	errLog := apierr.NewErrorLogger(logger, coreCfg.Env != "prod")
	limit := deps.Limiter.Middleware(errLog.TooManyRequests)

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   appCfg.CORSOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-Request-ID"},
		ExposedHeaders:   []string{"X-Request-ID"},
		AllowCredentials: true,
		MaxAge:           300,
	}))
	r.Use(deps.Metrics.Middleware(logger))
	r.Use(sessionMgr.LoadSessionUser)

	r.Method(http.MethodGet, "/metrics", deps.Metrics.Handler())
	if appCfg.StorageType == "local" {
		prefix := strings.TrimRight(appCfg.StorageLocalURL, "/")
		r.Handle(prefix+"/*", fileserver.Handler(prefix, appCfg.StorageLocalPath))
	}
	r.Mount("/health", healthfeature.Routes(healthfeature.NewHandler(deps.MongoClient, deps.Cache, logger)))
	r.Mount("/auth", sessionfeature.Routes(sessionfeature.NewHandler(deps.Users, sessionMgr, errLog, logger), limit))

	communityHandler := communityfeature.NewHandler(deps.Communities, deps.Users, deps.Linker,
		deps.Cache, appCfg.CacheTTL, deps.Metrics, errLog, logger)

	forumHandler := forumfeature.NewHandler(forumfeature.Config{
		Linker:   deps.Linker,
		Bridge:   &forumid.Bridge{Linker: deps.Linker, Secret: appCfg.DiscourseSSOSecret},
		Sessions: sessionMgr,
		Client:   deps.Forum,
		Cache:    deps.Cache,
		CacheTTL: appCfg.CacheTTL,
		Metrics:  deps.Metrics,
		LoginURL: appCfg.LoginURL,
	}, errLog, logger)
	r.Mount("/discourse", forumfeature.Routes(forumHandler, limit))

	r.Mount("/agora", agorafeature.Routes(agorafeature.NewHandler(deps.Agora, appCfg.AgoraAppID, errLog, logger)))

	uploadsHandler := uploadsfeature.NewHandler(deps.Uploader, uploadsfeature.Limits{
		Image: appCfg.MaxImageBytes,
		Video: appCfg.MaxVideoBytes,
	}, deps.Metrics, errLog, logger)

	subsHandler := subscriptionsfeature.NewHandler(subscriptionsfeature.Config{
		Users:    deps.Users,
		Gateway:  deps.Razorpay,
		Secret:   appCfg.RazorpayKeySecret,
		Plans:    appCfg.RazorpayPlans,
		Notifier: deps.Notifier,
		SiteName: appCfg.SiteName,
		Metrics:  deps.Metrics,
	}, errLog, logger)

	r.Route("/api", func(api chi.Router) {
		api.Mount("/communities/{communityId}/courses",
			coursesfeature.Routes(coursesfeature.NewHandler(deps.Communities, deps.Courses, errLog, logger), limit))
		api.Mount("/users",
			profilefeature.Routes(profilefeature.NewHandler(deps.Users, deps.Communities, deps.Mappings, errLog, logger)))
		uploadsfeature.Register(api, uploadsHandler, limit)
		subscriptionsfeature.Register(api, subsHandler, limit)
	})

	// Community endpoints keep their original top-level paths.
	r.Mount("/", communityfeature.Routes(communityHandler, limit))

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		errLog.NotFound(w, r, "Not found")
	})

	logger.Info("router ready",
		zap.Strings("cors_origins", appCfg.CORSOrigins),
		zap.Bool("uploads", deps.Uploader != nil))
	return r, nil
}
