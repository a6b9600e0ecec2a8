// internal/app/bootstrap/appconfig.go
package bootstrap

import "time"

// AppConfig holds service-specific configuration for commonshub.
//
// Values come from environment variables (COMMONSHUB_*), configuration
// files, or command-line flags, loaded in LoadConfig. WAFFLE's CoreConfig
// still owns ports, TLS, log level and request body limits.
type AppConfig struct {
	// MongoDB connection configuration
	MongoURI         string
	MongoDatabase    string
	MongoMaxPoolSize uint64
	MongoMinPoolSize uint64

	// Session cookie and bearer tokens
	SessionKey    string
	SessionName   string
	SessionDomain string
	SessionMaxAge time.Duration
	TokenTTL      time.Duration

	// Cache for listings and forum feeds. Blank RedisAddr keeps it in process.
	RedisAddr     string
	RedisPassword string
	RedisDB       int
	CacheTTL      time.Duration

	// Discourse admin API and Discourse Connect
	DiscourseAPIKey      string
	DiscourseAPIUsername string
	DiscourseSSOSecret   string
	DiscourseTimeout     time.Duration
	LoginURL             string // where SSO requests without a user are sent

	// Razorpay subscriptions
	RazorpayBaseURL   string
	RazorpayKeyID     string
	RazorpayKeySecret string
	RazorpayPlans     map[string]string // plan name -> plan_id

	// Upload storage: "cloudinary", "s3", "local" or "" to disable.
	StorageType         string
	CloudinaryBaseURL   string
	CloudinaryCloudName string
	CloudinaryAPIKey    string
	CloudinaryAPISecret string
	CloudinaryFolder    string

	StorageLocalPath string // Local storage path (e.g., "./uploads")
	StorageLocalURL  string // URL prefix for serving local files (e.g., "/files")

	// S3/CloudFront configuration (only used if StorageType is "s3")
	StorageS3Region          string
	StorageS3Bucket          string
	StorageS3Prefix          string
	StorageS3Endpoint        string // S3-compatible endpoint; blank for AWS
	StorageS3AccessKeyID     string // blank uses the default AWS chain
	StorageS3SecretAccessKey string
	StorageS3PublicURL       string // public URL prefix for objects
	StorageCFURL             string
	StorageCFKeyPairID       string
	StorageCFKeyPath         string

	MaxImageBytes       int64
	MaxVideoBytes       int64

	// Agora RTC tokens
	AgoraAppID          string
	AgoraAppCertificate string

	// Email/SMTP configuration
	MailSMTPHost string
	MailSMTPPort int
	MailSMTPUser string
	MailSMTPPass string
	MailFrom     string
	MailFromName string
	SiteName     string

	// HTTP surface
	CORSOrigins    []string
	RateLimitRPS   float64
	RateLimitBurst int

	// Background workers
	ReconcileInterval time.Duration
	ReconcileBatch    int
	NotifyWorkers     int
	NotifyQueue       int

	// Request-scoped timeouts for upstream calls and uploads.
	UpstreamTimeout time.Duration
	UploadTimeout   time.Duration

	// Passphrase for sealing stored forum passwords.
	SealPassphrase string
}
