// internal/app/bootstrap/dbdeps.go
package bootstrap

import (
	agoraclient "github.com/dalemusser/commonshub/internal/app/clients/agora"
	"github.com/dalemusser/commonshub/internal/app/clients/discourse"
	"github.com/dalemusser/commonshub/internal/app/clients/razorpay"
	communitystore "github.com/dalemusser/commonshub/internal/app/store/communities"
	coursestore "github.com/dalemusser/commonshub/internal/app/store/courses"
	mappingstore "github.com/dalemusser/commonshub/internal/app/store/discoursemappings"
	userstore "github.com/dalemusser/commonshub/internal/app/store/users"
	"github.com/dalemusser/commonshub/internal/app/system/cache"
	"github.com/dalemusser/commonshub/internal/app/system/forumid"
	"github.com/dalemusser/commonshub/internal/app/system/mailer"
	"github.com/dalemusser/commonshub/internal/app/system/media"
	"github.com/dalemusser/commonshub/internal/app/system/metrics"
	"github.com/dalemusser/commonshub/internal/app/system/ratelimit"
	"github.com/dalemusser/commonshub/internal/app/system/workers"
	"go.mongodb.org/mongo-driver/mongo"
)

// DBDeps holds the connected backends and the services built on them.
// ConnectDB fills it; Startup starts the workers; Shutdown tears it down.
type DBDeps struct {
	MongoClient   *mongo.Client
	MongoDatabase *mongo.Database

	Cache   cache.Cache
	Metrics *metrics.Registry
	Limiter *ratelimit.Limiter

	Users       *userstore.Store
	Communities *communitystore.Store
	Courses     *coursestore.Store
	Mappings    *mappingstore.Store

	// Forum returns an admin client for a community's forum base URL.
	Forum  func(baseURL string) *discourse.Client
	Linker *forumid.Linker

	Mailer     *mailer.Mailer
	Notifier   *workers.Notifier
	Reconciler *workers.Reconciler

	// Uploader is nil when no media backend is configured.
	Uploader media.Uploader
	Razorpay *razorpay.Client
	Agora    *agoraclient.Builder
}
