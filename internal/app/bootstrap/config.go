// internal/app/bootstrap/config.go
package bootstrap

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/dalemusser/waffle/config"
	wafflemongo "github.com/dalemusser/waffle/pantry/mongo"
	"go.uber.org/zap"
)

const devSessionKey = "dev-only-change-me-please-0123456789ABCDEF"

// appConfigKeys defines the configuration keys for commonshub.
// These are loaded via WAFFLE's config system with support for:
//   - Config files: mongo_uri, discourse_api_key, etc.
//   - Environment variables: COMMONSHUB_MONGO_URI, COMMONSHUB_DISCOURSE_API_KEY, etc.
//   - Command-line flags: --mongo_uri, --discourse_api_key, etc.
var appConfigKeys = []config.AppKey{
	{Name: "mongo_uri", Default: "mongodb://localhost:27017", Desc: "MongoDB connection URI"},
	{Name: "mongo_database", Default: "commonshub", Desc: "MongoDB database name"},
	{Name: "mongo_max_pool_size", Default: 100, Desc: "MongoDB max connection pool size"},
	{Name: "mongo_min_pool_size", Default: 5, Desc: "MongoDB min connection pool size"},

	{Name: "session_key", Default: devSessionKey, Desc: "Session and token signing key (must be strong in production)"},
	{Name: "session_name", Default: "commonshub-session", Desc: "Session cookie name"},
	{Name: "session_domain", Default: "", Desc: "Session cookie domain (blank means current host)"},
	{Name: "session_max_age", Default: "720h", Desc: "Session cookie lifetime"},
	{Name: "token_ttl", Default: "24h", Desc: "Bearer token lifetime"},

	{Name: "redis_addr", Default: "", Desc: "Redis address for the shared cache (blank uses an in-process cache)"},
	{Name: "redis_password", Default: "", Desc: "Redis password"},
	{Name: "redis_db", Default: 0, Desc: "Redis database number"},
	{Name: "cache_ttl", Default: "60s", Desc: "TTL for cached listings and forum feeds"},

	{Name: "discourse_api_key", Default: "", Desc: "Discourse admin API key"},
	{Name: "discourse_api_username", Default: "system", Desc: "Discourse admin API username"},
	{Name: "discourse_sso_secret", Default: "", Desc: "Discourse Connect shared secret"},
	{Name: "discourse_timeout", Default: "10s", Desc: "Timeout for Discourse API calls"},
	{Name: "login_url", Default: "", Desc: "Frontend login page for SSO requests without a signed-in user"},

	{Name: "razorpay_base_url", Default: "https://api.razorpay.com/v1", Desc: "Razorpay API base URL"},
	{Name: "razorpay_key_id", Default: "", Desc: "Razorpay key id"},
	{Name: "razorpay_key_secret", Default: "", Desc: "Razorpay key secret"},
	{Name: "razorpay_plans", Default: "", Desc: "Plan name to plan_id pairs, e.g. monthly=plan_A,yearly=plan_B"},

	// Upload storage
	{Name: "storage_type", Default: "cloudinary", Desc: "Upload backend: 'cloudinary', 's3', 'local' or blank to disable"},
	{Name: "cloudinary_base_url", Default: "https://api.cloudinary.com", Desc: "Cloudinary upload API host"},
	{Name: "cloudinary_cloud_name", Default: "", Desc: "Cloudinary cloud name"},
	{Name: "cloudinary_api_key", Default: "", Desc: "Cloudinary API key"},
	{Name: "cloudinary_api_secret", Default: "", Desc: "Cloudinary API secret"},
	{Name: "cloudinary_folder", Default: "commonshub", Desc: "Cloudinary folder for uploads"},
	{Name: "storage_local_path", Default: "./uploads", Desc: "Local storage path for uploaded files"},
	{Name: "storage_local_url", Default: "/files", Desc: "URL prefix for serving local files"},

	// S3/CloudFront configuration
	{Name: "storage_s3_region", Default: "", Desc: "AWS region for S3"},
	{Name: "storage_s3_bucket", Default: "", Desc: "S3 bucket name"},
	{Name: "storage_s3_prefix", Default: "uploads/", Desc: "S3 key prefix"},
	{Name: "storage_s3_endpoint", Default: "", Desc: "S3-compatible endpoint (blank for AWS)"},
	{Name: "storage_s3_access_key_id", Default: "", Desc: "S3 access key id (blank uses the default AWS chain)"},
	{Name: "storage_s3_secret_access_key", Default: "", Desc: "S3 secret access key"},
	{Name: "storage_s3_public_url", Default: "", Desc: "Public URL prefix for uploaded objects"},
	{Name: "storage_cf_url", Default: "", Desc: "CloudFront distribution URL"},
	{Name: "storage_cf_keypair_id", Default: "", Desc: "CloudFront key pair ID"},
	{Name: "storage_cf_key_path", Default: "", Desc: "Path to CloudFront private key file"},

	{Name: "max_image_mb", Default: 10, Desc: "Largest accepted image upload in MB"},
	{Name: "max_video_mb", Default: 100, Desc: "Largest accepted video upload in MB"},

	{Name: "agora_app_id", Default: "", Desc: "Agora app id"},
	{Name: "agora_app_certificate", Default: "", Desc: "Agora app certificate"},

	{Name: "mail_smtp_host", Default: "", Desc: "SMTP server host (blank disables email)"},
	{Name: "mail_smtp_port", Default: 587, Desc: "SMTP server port"},
	{Name: "mail_smtp_user", Default: "", Desc: "SMTP username"},
	{Name: "mail_smtp_pass", Default: "", Desc: "SMTP password"},
	{Name: "mail_from", Default: "noreply@commonshub.local", Desc: "From email address"},
	{Name: "mail_from_name", Default: "CommonsHub", Desc: "From display name"},
	{Name: "site_name", Default: "CommonsHub", Desc: "Site name used in emails"},

	{Name: "cors_origins", Default: "http://localhost:3000", Desc: "Comma-separated allowed CORS origins"},
	{Name: "rate_limit_rps", Default: "5", Desc: "Sustained write requests per second per client IP"},
	{Name: "rate_limit_burst", Default: 20, Desc: "Write request burst per client IP"},

	{Name: "reconcile_interval", Default: "5m", Desc: "How often pending forum ids are retried"},
	{Name: "reconcile_batch", Default: 50, Desc: "Pending mappings retried per tick"},
	{Name: "notify_workers", Default: 2, Desc: "Email delivery workers"},
	{Name: "notify_queue", Default: 256, Desc: "Email queue capacity"},

	{Name: "upstream_timeout", Default: "15s", Desc: "Timeout for calls to Discourse, Razorpay and other upstreams"},
	{Name: "upload_timeout", Default: "5m", Desc: "Timeout for forwarding an upload to the media backend"},

	{Name: "seal_passphrase", Default: "", Desc: "Passphrase for sealing stored forum passwords (blank uses session_key)"},
}

// LoadConfig loads WAFFLE core config and app-specific config.
//
// Precedence is flags > env > files > defaults, as handled by
// config.LoadWithAppConfig.
func LoadConfig(logger *zap.Logger) (*config.CoreConfig, AppConfig, error) {
	coreCfg, v, err := config.LoadWithAppConfig(logger, "COMMONSHUB", appConfigKeys)
	if err != nil {
		return nil, AppConfig{}, err
	}

	plans, err := parsePlans(v.String("razorpay_plans"))
	if err != nil {
		return nil, AppConfig{}, err
	}
	rps, err := strconv.ParseFloat(strings.TrimSpace(v.String("rate_limit_rps")), 64)
	if err != nil {
		return nil, AppConfig{}, fmt.Errorf("rate_limit_rps: %w", err)
	}

	appCfg := AppConfig{
		MongoURI:         v.String("mongo_uri"),
		MongoDatabase:    v.String("mongo_database"),
		MongoMaxPoolSize: uint64(v.Int("mongo_max_pool_size")),
		MongoMinPoolSize: uint64(v.Int("mongo_min_pool_size")),

		SessionKey:    v.String("session_key"),
		SessionName:   v.String("session_name"),
		SessionDomain: v.String("session_domain"),
		SessionMaxAge: v.Duration("session_max_age", 30*24*time.Hour),
		TokenTTL:      v.Duration("token_ttl", 24*time.Hour),

		RedisAddr:     v.String("redis_addr"),
		RedisPassword: v.String("redis_password"),
		RedisDB:       v.Int("redis_db"),
		CacheTTL:      v.Duration("cache_ttl", time.Minute),

		DiscourseAPIKey:      v.String("discourse_api_key"),
		DiscourseAPIUsername: v.String("discourse_api_username"),
		DiscourseSSOSecret:   v.String("discourse_sso_secret"),
		DiscourseTimeout:     v.Duration("discourse_timeout", 10*time.Second),
		LoginURL:             v.String("login_url"),

		RazorpayBaseURL:   v.String("razorpay_base_url"),
		RazorpayKeyID:     v.String("razorpay_key_id"),
		RazorpayKeySecret: v.String("razorpay_key_secret"),
		RazorpayPlans:     plans,

		StorageType:         strings.ToLower(strings.TrimSpace(v.String("storage_type"))),
		CloudinaryBaseURL:   v.String("cloudinary_base_url"),
		CloudinaryCloudName: v.String("cloudinary_cloud_name"),
		CloudinaryAPIKey:    v.String("cloudinary_api_key"),
		CloudinaryAPISecret: v.String("cloudinary_api_secret"),
		CloudinaryFolder:    v.String("cloudinary_folder"),
		StorageLocalPath:    v.String("storage_local_path"),
		StorageLocalURL:     v.String("storage_local_url"),

		StorageS3Region:          v.String("storage_s3_region"),
		StorageS3Bucket:          v.String("storage_s3_bucket"),
		StorageS3Prefix:          v.String("storage_s3_prefix"),
		StorageS3Endpoint:        v.String("storage_s3_endpoint"),
		StorageS3AccessKeyID:     v.String("storage_s3_access_key_id"),
		StorageS3SecretAccessKey: v.String("storage_s3_secret_access_key"),
		StorageS3PublicURL:       v.String("storage_s3_public_url"),
		StorageCFURL:             v.String("storage_cf_url"),
		StorageCFKeyPairID:       v.String("storage_cf_keypair_id"),
		StorageCFKeyPath:         v.String("storage_cf_key_path"),

		MaxImageBytes:       int64(v.Int("max_image_mb")) << 20,
		MaxVideoBytes:       int64(v.Int("max_video_mb")) << 20,

		AgoraAppID:          v.String("agora_app_id"),
		AgoraAppCertificate: v.String("agora_app_certificate"),

		MailSMTPHost: v.String("mail_smtp_host"),
		MailSMTPPort: v.Int("mail_smtp_port"),
		MailSMTPUser: v.String("mail_smtp_user"),
		MailSMTPPass: v.String("mail_smtp_pass"),
		MailFrom:     v.String("mail_from"),
		MailFromName: v.String("mail_from_name"),
		SiteName:     v.String("site_name"),

		CORSOrigins:    splitList(v.String("cors_origins")),
		RateLimitRPS:   rps,
		RateLimitBurst: v.Int("rate_limit_burst"),

		ReconcileInterval: v.Duration("reconcile_interval", 5*time.Minute),
		ReconcileBatch:    v.Int("reconcile_batch"),
		NotifyWorkers:     v.Int("notify_workers"),
		NotifyQueue:       v.Int("notify_queue"),

		UpstreamTimeout: v.Duration("upstream_timeout", 15*time.Second),
		UploadTimeout:   v.Duration("upload_timeout", 5*time.Minute),

		SealPassphrase: v.String("seal_passphrase"),
	}
	if appCfg.SealPassphrase == "" {
		appCfg.SealPassphrase = appCfg.SessionKey
	}

	return coreCfg, appCfg, nil
}

// ValidateConfig rejects configs that would fail at first use. Production
// additionally requires real secrets.
func ValidateConfig(coreCfg *config.CoreConfig, appCfg AppConfig, logger *zap.Logger) error {
	if err := wafflemongo.ValidateURI(appCfg.MongoURI); err != nil {
		logger.Error("invalid MongoDB URI", zap.Error(err))
		return fmt.Errorf("invalid MongoDB URI: %w", err)
	}
	if err := validateApp(appCfg, coreCfg.Env == "prod"); err != nil {
		logger.Error("invalid configuration", zap.Error(err))
		return err
	}
	if appCfg.DiscourseSSOSecret == "" {
		logger.Warn("discourse_sso_secret is empty; SSO requests will be rejected")
	}
	if appCfg.AgoraAppID == "" {
		logger.Warn("agora_app_id is empty; token requests will answer 503")
	}
	return nil
}

// validateApp holds the checks that do not need a logger.
func validateApp(c AppConfig, prod bool) error {
	switch c.StorageType {
	case "", "cloudinary":
	case "s3":
		if c.StorageS3Bucket == "" {
			return fmt.Errorf("storage_type s3 requires storage_s3_bucket")
		}
	case "local":
		if c.StorageLocalPath == "" {
			return fmt.Errorf("storage_type local requires storage_local_path")
		}
		if !strings.HasPrefix(c.StorageLocalURL, "/") {
			return fmt.Errorf("storage_local_url must start with '/', got %q", c.StorageLocalURL)
		}
	default:
		return fmt.Errorf("storage_type must be 'cloudinary', 's3', 'local' or blank, got %q", c.StorageType)
	}
	if c.RateLimitRPS <= 0 || c.RateLimitBurst < 1 {
		return fmt.Errorf("rate_limit_rps and rate_limit_burst must be positive")
	}
	if c.MaxImageBytes <= 0 || c.MaxVideoBytes <= 0 {
		return fmt.Errorf("max_image_mb and max_video_mb must be positive")
	}
	if c.ReconcileInterval <= 0 {
		return fmt.Errorf("reconcile_interval must be positive")
	}

	if !prod {
		return nil
	}
	if c.SessionKey == devSessionKey || len(c.SessionKey) < 32 {
		return fmt.Errorf("session_key must be a strong secret of at least 32 characters in production")
	}
	for _, req := range []struct{ name, value string }{
		{"discourse_api_key", c.DiscourseAPIKey},
		{"discourse_sso_secret", c.DiscourseSSOSecret},
		{"razorpay_key_id", c.RazorpayKeyID},
		{"razorpay_key_secret", c.RazorpayKeySecret},
	} {
		if req.value == "" {
			return fmt.Errorf("%s is required in production", req.name)
		}
	}
	return nil
}

// parsePlans reads "name=plan_id" pairs separated by commas.
func parsePlans(s string) (map[string]string, error) {
	plans := map[string]string{}
	for _, pair := range splitList(s) {
		name, id, ok := strings.Cut(pair, "=")
		name, id = strings.TrimSpace(name), strings.TrimSpace(id)
		if !ok || name == "" || id == "" {
			return nil, fmt.Errorf("razorpay_plans: bad entry %q, want name=plan_id", pair)
		}
		plans[name] = id
	}
	return plans, nil
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}
