// internal/app/bootstrap/db.go
package bootstrap

import (
	"context"
	"fmt"
	"time"

	agoraclient "github.com/dalemusser/commonshub/internal/app/clients/agora"
	"github.com/dalemusser/commonshub/internal/app/clients/cloudinary"
	"github.com/dalemusser/commonshub/internal/app/clients/discourse"
	"github.com/dalemusser/commonshub/internal/app/clients/razorpay"
	communitystore "github.com/dalemusser/commonshub/internal/app/store/communities"
	coursestore "github.com/dalemusser/commonshub/internal/app/store/courses"
	mappingstore "github.com/dalemusser/commonshub/internal/app/store/discoursemappings"
	userstore "github.com/dalemusser/commonshub/internal/app/store/users"
	"github.com/dalemusser/commonshub/internal/app/system/cache"
	"github.com/dalemusser/commonshub/internal/app/system/forumid"
	"github.com/dalemusser/commonshub/internal/app/system/indexes"
	"github.com/dalemusser/commonshub/internal/app/system/mailer"
	"github.com/dalemusser/commonshub/internal/app/system/media"
	"github.com/dalemusser/commonshub/internal/app/system/metrics"
	"github.com/dalemusser/commonshub/internal/app/system/ratelimit"
	"github.com/dalemusser/commonshub/internal/app/system/sealer"
	"github.com/dalemusser/commonshub/internal/app/system/timeouts"
	"github.com/dalemusser/commonshub/internal/app/system/workers"
	"github.com/dalemusser/waffle/config"
	"github.com/dalemusser/waffle/pantry/storage"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readpref"
	"go.uber.org/zap"
)

// ConnectDB connects MongoDB and the cache, then builds the stores, upstream
// clients and workers that hang off them. Any failure after the Mongo
// connection is made disconnects it again.
func ConnectDB(ctx context.Context, coreCfg *config.CoreConfig, appCfg AppConfig, logger *zap.Logger) (DBDeps, error) {
	timeouts.Configure(timeouts.Config{Medium: appCfg.UpstreamTimeout, Upload: appCfg.UploadTimeout})

	opts := options.Client().
		ApplyURI(appCfg.MongoURI).
		SetMaxPoolSize(appCfg.MongoMaxPoolSize).
		SetMinPoolSize(appCfg.MongoMinPoolSize)

	client, err := mongo.Connect(ctx, opts)
	if err != nil {
		return DBDeps{}, fmt.Errorf("mongo connect: %w", err)
	}
	pingCtx, cancel := context.WithTimeout(ctx, timeouts.Ping())
	defer cancel()
	if err := client.Ping(pingCtx, readpref.Primary()); err != nil {
		_ = client.Disconnect(ctx)
		return DBDeps{}, fmt.Errorf("mongo ping: %w", err)
	}
	logger.Info("connected to MongoDB", zap.String("database", appCfg.MongoDatabase))

	deps := DBDeps{
		MongoClient:   client,
		MongoDatabase: client.Database(appCfg.MongoDatabase),
		Metrics:       metrics.New(),
	}
	if err := buildServices(ctx, appCfg, &deps, logger); err != nil {
		if deps.Cache != nil {
			_ = deps.Cache.Close()
		}
		_ = client.Disconnect(ctx)
		return DBDeps{}, err
	}
	return deps, nil
}

func buildServices(ctx context.Context, appCfg AppConfig, deps *DBDeps, logger *zap.Logger) error {
	db := deps.MongoDatabase

	if appCfg.RedisAddr != "" {
		r, err := cache.NewRedis(ctx, cache.RedisOptions{
			Addr:     appCfg.RedisAddr,
			Password: appCfg.RedisPassword,
			DB:       appCfg.RedisDB,
			Prefix:   "commonshub:",
		})
		if err != nil {
			return fmt.Errorf("redis: %w", err)
		}
		deps.Cache = r
		logger.Info("using redis cache", zap.String("addr", appCfg.RedisAddr))
	} else {
		deps.Cache = cache.NewMemory(appCfg.CacheTTL)
	}

	deps.Users = userstore.New(db)
	deps.Communities = communitystore.New(db)
	deps.Courses = coursestore.New(db)
	deps.Mappings = mappingstore.New(db)

	seal, err := sealer.New(appCfg.SealPassphrase)
	if err != nil {
		return fmt.Errorf("sealer: %w", err)
	}

	apiKey, apiUser, timeout := appCfg.DiscourseAPIKey, appCfg.DiscourseAPIUsername, appCfg.DiscourseTimeout
	deps.Forum = func(baseURL string) *discourse.Client {
		return discourse.New(baseURL, apiKey, apiUser, timeout)
	}
	deps.Linker = &forumid.Linker{
		Mappings:    deps.Mappings,
		Users:       deps.Users,
		Communities: deps.Communities,
		Sealer:      seal,
		Forum:       func(baseURL string) forumid.Forum { return deps.Forum(baseURL) },
		Metrics:     deps.Metrics,
		Log:         logger,
	}

	deps.Mailer = mailer.New(mailer.Config{
		Host:     appCfg.MailSMTPHost,
		Port:     appCfg.MailSMTPPort,
		User:     appCfg.MailSMTPUser,
		Pass:     appCfg.MailSMTPPass,
		From:     appCfg.MailFrom,
		FromName: appCfg.MailFromName,
	})
	if !deps.Mailer.Enabled() {
		logger.Warn("mail_smtp_host is empty; subscription emails will be logged and dropped")
	}
	dropped := deps.Metrics.NotifyDropped
	deps.Notifier = workers.NewNotifier(deps.Mailer, logger, appCfg.NotifyWorkers, appCfg.NotifyQueue, func() { dropped.Inc() })
	deps.Reconciler = workers.NewReconciler(deps.Linker, logger, appCfg.ReconcileInterval, appCfg.ReconcileBatch)

	up, err := newUploader(ctx, appCfg, logger)
	if err != nil {
		return err
	}
	deps.Uploader = up

	deps.Razorpay = razorpay.New(appCfg.RazorpayBaseURL, appCfg.RazorpayKeyID, appCfg.RazorpayKeySecret, timeouts.Medium())
	deps.Agora = agoraclient.NewBuilder(appCfg.AgoraAppID, appCfg.AgoraAppCertificate)
	deps.Limiter = ratelimit.New(appCfg.RateLimitRPS, appCfg.RateLimitBurst, 10*time.Minute)
	return nil
}

// newUploader returns nil with no error when uploads are switched off or
// Cloudinary has no credentials. Local and S3 go through waffle storage.
func newUploader(ctx context.Context, appCfg AppConfig, logger *zap.Logger) (media.Uploader, error) {
	switch appCfg.StorageType {
	case "s3":
		store, err := storage.NewS3(ctx, storage.S3Config{
			Bucket:                   appCfg.StorageS3Bucket,
			Region:                   appCfg.StorageS3Region,
			AccessKeyID:              appCfg.StorageS3AccessKeyID,
			SecretAccessKey:          appCfg.StorageS3SecretAccessKey,
			Endpoint:                 appCfg.StorageS3Endpoint,
			UsePathStyle:             appCfg.StorageS3Endpoint != "",
			Prefix:                   appCfg.StorageS3Prefix,
			BaseURL:                  appCfg.StorageS3PublicURL,
			CloudFrontURL:            appCfg.StorageCFURL,
			CloudFrontKeyPairID:      appCfg.StorageCFKeyPairID,
			CloudFrontPrivateKeyPath: appCfg.StorageCFKeyPath,
		})
		if err != nil {
			return nil, fmt.Errorf("s3 storage: %w", err)
		}
		logger.Info("uploads go to s3", zap.String("bucket", appCfg.StorageS3Bucket))
		return media.NewStoreUploader(store), nil
	case "local":
		store, err := storage.NewLocal(storage.LocalConfig{
			BasePath: appCfg.StorageLocalPath,
			BaseURL:  appCfg.StorageLocalURL,
		})
		if err != nil {
			return nil, fmt.Errorf("local storage: %w", err)
		}
		logger.Info("uploads go to local disk", zap.String("path", appCfg.StorageLocalPath))
		return media.NewStoreUploader(store), nil
	case "cloudinary":
		if appCfg.CloudinaryCloudName == "" || appCfg.CloudinaryAPIKey == "" || appCfg.CloudinaryAPISecret == "" {
			logger.Warn("cloudinary credentials missing; uploads disabled")
			return nil, nil
		}
		c, err := cloudinary.New(appCfg.CloudinaryBaseURL, appCfg.CloudinaryCloudName,
			appCfg.CloudinaryAPIKey, appCfg.CloudinaryAPISecret, timeouts.Upload())
		if err != nil {
			return nil, err
		}
		return &media.CloudinaryUploader{Client: c, Folder: appCfg.CloudinaryFolder}, nil
	default:
		logger.Info("storage_type is blank; uploads disabled")
		return nil, nil
	}
}

// EnsureSchema creates the unique and lookup indexes every store relies on.
func EnsureSchema(ctx context.Context, coreCfg *config.CoreConfig, appCfg AppConfig, deps DBDeps, logger *zap.Logger) error {
	if err := indexes.EnsureAll(ctx, deps.MongoDatabase); err != nil {
		logger.Error("ensure indexes failed", zap.Error(err))
		return err
	}
	logger.Info("indexes ensured")
	return nil
}
