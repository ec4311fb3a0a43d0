package commands

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/wolfeidau/ownerportal/internal/auth"
	"github.com/wolfeidau/ownerportal/internal/bootstrap"
	"github.com/wolfeidau/ownerportal/internal/company"
	httpx "github.com/wolfeidau/ownerportal/internal/http"
	"github.com/wolfeidau/ownerportal/internal/identity"
	"github.com/wolfeidau/ownerportal/internal/logger"
	"github.com/wolfeidau/ownerportal/internal/login"
	"github.com/wolfeidau/ownerportal/internal/notify"
	"github.com/wolfeidau/ownerportal/internal/payout"
	"github.com/wolfeidau/ownerportal/internal/provision"
	"github.com/wolfeidau/ownerportal/internal/ratelimit"
	"github.com/wolfeidau/ownerportal/internal/server"
	"github.com/wolfeidau/ownerportal/internal/storage"
	"github.com/wolfeidau/ownerportal/internal/telemetry"
	"github.com/wolfeidau/ownerportal/internal/timeout"
)

type ServeCmd struct {
	// Server configuration
	Listen  string `help:"HTTP server listen address" default:"0.0.0.0:8080" env:"OWNERPORTAL_LISTEN"`
	Cert    string `help:"path to TLS cert file, serves plain HTTP when empty" default:"" env:"OWNERPORTAL_TLS_CERT"`
	Key     string `help:"path to TLS key file" default:"" env:"OWNERPORTAL_TLS_KEY"`
	BaseURL string `help:"public URL of the portal" default:"http://localhost:8080" env:"OWNERPORTAL_BASE_URL"`

	CORSOrigins       []string `help:"trusted cross origins for browser requests" env:"OWNERPORTAL_CORS_ORIGINS"`
	TrustProxyHeaders bool     `help:"read the client IP from X-Forwarded-For (only behind a trusted proxy)" env:"OWNERPORTAL_TRUST_PROXY_HEADERS"`

	SessionTTL      time.Duration `help:"session TTL" default:"24h" env:"OWNERPORTAL_SESSION_TTL"`
	InsecureCookies bool          `help:"drop the Secure cookie flag (local development over http)" env:"OWNERPORTAL_INSECURE_COOKIES"`
	InviteSecret    string        `help:"HMAC secret for invitation tokens (at least 32 bytes)" env:"OWNERPORTAL_INVITE_SECRET"`
	InviteTTL       time.Duration `help:"invitation token lifetime" default:"72h" env:"OWNERPORTAL_INVITE_TTL"`
	AdminEmail      string        `help:"create or promote this admin at startup" env:"OWNERPORTAL_ADMIN_EMAIL"`

	SessionSweepInterval time.Duration `help:"how often expired sessions are deleted" default:"10m" env:"OWNERPORTAL_SESSION_SWEEP_INTERVAL"`

	DevBootstrap bool `help:"create the invoice bucket and invitation queue at startup (LocalStack, MinIO)" env:"OWNERPORTAL_DEV_BOOTSTRAP"`
	DevClean     bool `help:"recreate the invitation queue when bootstrapping" env:"OWNERPORTAL_DEV_CLEAN"`

	RateLimitConfig string `help:"path to a YAML rate limit rule file" type:"existingfile" env:"OWNERPORTAL_RATE_LIMIT_CONFIG"`
	Tracing         bool   `help:"enable OTLP traces and metrics" default:"false" env:"OWNERPORTAL_TRACING"`

	// Store configuration
	StoreType   string        `help:"store type (memory or postgres)" default:"memory" env:"OWNERPORTAL_STORE_TYPE" enum:"memory,postgres"`
	AutoMigrate bool          `help:"run database migrations on startup" default:"false" env:"OWNERPORTAL_POSTGRES_AUTO_MIGRATE"`
	Postgres    PostgresFlags `embed:"" prefix:"postgres-"`
	S3          S3Flags       `embed:"" prefix:"s3-"`
	Redis       RedisFlags    `embed:"" prefix:"redis-"`
	SQS         SQSFlags      `embed:"" prefix:"sqs-"`
	OAuth       OAuthFlags    `embed:"" prefix:"oauth-"`
}

// S3Flags selects the invoice bucket. Without a bucket invoices are kept in
// memory and served from /files/.
type S3Flags struct {
	Bucket       string        `help:"invoice bucket" env:"OWNERPORTAL_S3_BUCKET"`
	Endpoint     string        `help:"S3 endpoint override (MinIO, LocalStack)" env:"OWNERPORTAL_S3_ENDPOINT"`
	PathStyle    bool          `help:"use path style bucket addressing" env:"OWNERPORTAL_S3_PATH_STYLE"`
	SignedURLTTL time.Duration `help:"lifetime of signed invoice URLs" default:"15m" env:"OWNERPORTAL_S3_SIGNED_URL_TTL"`
	FilesSecret  string        `help:"signing secret for in-memory invoice URLs" env:"OWNERPORTAL_FILES_SECRET"`
}

type RedisFlags struct {
	Addr     string `help:"Redis address for shared rate limit counters" env:"OWNERPORTAL_REDIS_ADDR"`
	Password string `help:"Redis password" env:"OWNERPORTAL_REDIS_PASSWORD"`
	DB       int    `help:"Redis database" default:"0" env:"OWNERPORTAL_REDIS_DB"`
}

type SQSFlags struct {
	QueueURL string `help:"queue receiving invitation notifications" env:"OWNERPORTAL_SQS_QUEUE_URL"`
	Endpoint string `help:"SQS endpoint override" env:"OWNERPORTAL_SQS_ENDPOINT"`
}

type OAuthFlags struct {
	Provider     string   `help:"identity provider (github or oidc)" default:"github" enum:"github,oidc" env:"OWNERPORTAL_OAUTH_PROVIDER"`
	ClientID     string   `help:"OAuth client ID, sign-in is disabled when empty" env:"OWNERPORTAL_OAUTH_CLIENT_ID"`
	ClientSecret string   `help:"OAuth client secret" env:"OWNERPORTAL_OAUTH_CLIENT_SECRET"`
	CallbackURL  string   `help:"OAuth callback URL" env:"OWNERPORTAL_OAUTH_CALLBACK_URL"`
	AuthURL      string   `help:"OIDC authorization endpoint" env:"OWNERPORTAL_OAUTH_AUTH_URL"`
	TokenURL     string   `help:"OIDC token endpoint" env:"OWNERPORTAL_OAUTH_TOKEN_URL"`
	UserInfoURL  string   `help:"OIDC userinfo endpoint" env:"OWNERPORTAL_OAUTH_USERINFO_URL"`
	Scopes       []string `help:"OAuth scopes" env:"OWNERPORTAL_OAUTH_SCOPES"`
}

func (c *ServeCmd) Run(ctx context.Context, globals *Globals) error {
	log := logger.Setup(globals.Dev)
	ctx, stop := signal.NotifyContext(log.WithContext(ctx), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	log.Info().Str("version", globals.Version).Bool("dev", globals.Dev).Msg("Starting server")

	if c.Tracing {
		log.Info().Msg("Tracing is enabled")
		shutdown, err := telemetry.Init(ctx, telemetry.Config{ServiceName: "ownerportal", Version: globals.Version})
		if err != nil {
			log.Warn().Err(err).Msg("Failed to initialize telemetry, continuing without metrics")
			shutdown = func(ctx context.Context) error { return nil }
		}
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := shutdown(shutdownCtx); err != nil {
				log.Error().Err(err).Msg("Failed to shutdown telemetry")
			}
		}()
	}

	backends, err := openStores(ctx, log, c.StoreType, &c.Postgres, c.AutoMigrate)
	if err != nil {
		return err
	}
	defer backends.close()

	limiter, err := c.limiter(ctx, log)
	if err != nil {
		return err
	}

	// AWS clients are only needed for S3 invoices or SQS notifications.
	var awsCfg aws.Config
	if c.S3.Bucket != "" || c.SQS.QueueURL != "" || c.DevBootstrap {
		awsCfg, err = awsconfig.LoadDefaultConfig(ctx)
		if err != nil {
			return fmt.Errorf("failed to load AWS config: %w", err)
		}
	}

	if c.DevBootstrap {
		resources, err := bootstrap.Bootstrap(ctx, bootstrap.Config{
			S3Client:       c.s3Client(awsCfg),
			SQSClient:      c.sqsClient(awsCfg),
			Environment:    "dev",
			Bucket:         c.S3.Bucket,
			CleanResources: c.DevClean,
		})
		if err != nil {
			return fmt.Errorf("failed to bootstrap development infrastructure: %w", err)
		}
		c.S3.Bucket = resources.Bucket
		c.SQS.QueueURL = resources.QueueURL

		log.Info().
			Str("bucket", resources.Bucket).
			Str("invitation_queue", resources.QueueURL).
			Msg("Development infrastructure ready")
	}

	notifier, err := c.notifier(log, awsCfg)
	if err != nil {
		return err
	}

	inviteSecret := []byte(c.InviteSecret)
	if len(inviteSecret) == 0 {
		log.Warn().Msg("No invitation secret configured, invitations do not survive a restart")
		if inviteSecret, err = randomSecret(); err != nil {
			return err
		}
	}

	invites, err := auth.NewInviteTokens(inviteSecret, c.InviteTTL)
	if err != nil {
		return fmt.Errorf("failed to configure invitation tokens: %w", err)
	}

	policy := timeout.DefaultPolicy()
	gate := auth.NewGate(limiter)

	identities := identity.NewService(identity.Config{
		Identities: backends.identities,
		Sessions:   backends.sessions,
		Invites:    invites,
		Notifier:   notifier,
		Timeouts:   policy,
		SessionTTL: c.SessionTTL,
		BaseURL:    c.BaseURL,
	})

	go identities.SweepSessions(ctx, c.SessionSweepInterval)

	if c.AdminEmail != "" {
		if _, err := identities.BootstrapAdmin(ctx, c.AdminEmail); err != nil {
			return fmt.Errorf("failed to bootstrap admin: %w", err)
		}
	}

	objects, files, err := c.objectStore(log, awsCfg)
	if err != nil {
		return err
	}

	resolver := company.NewResolver(backends.companies, policy)
	cfg := server.Config{
		Sessions: identities,
		Roles:    company.NewRoleResolver(identities, gate),
		Profiles: company.NewProfileService(backends.companies, resolver, gate, policy),
		Payouts: payout.NewService(payout.Config{
			Payouts:      backends.payouts,
			Resolver:     resolver,
			Objects:      objects,
			Gate:         gate,
			Timeouts:     policy,
			SignedURLTTL: c.S3.SignedURLTTL,
		}),
		Provision:   provision.NewService(identities, backends.companies, backends.members, gate, policy),
		Files:       files,
		Limiter:     limiter,
		ClientIP:    httpx.ClientIP{TrustProxyHeaders: c.TrustProxyHeaders},
		CORSOrigins: c.CORSOrigins,
		Logger:      log,
	}

	if c.OAuth.ClientID != "" {
		cfg.Login, err = login.New(identities, login.Config{
			Provider:        c.OAuth.Provider,
			ClientID:        c.OAuth.ClientID,
			ClientSecret:    c.OAuth.ClientSecret,
			CallbackURL:     c.OAuth.CallbackURL,
			AuthURL:         c.OAuth.AuthURL,
			TokenURL:        c.OAuth.TokenURL,
			UserInfoURL:     c.OAuth.UserInfoURL,
			Scopes:          c.OAuth.Scopes,
			SessionTTL:      c.SessionTTL,
			InsecureCookies: c.InsecureCookies,
			Timeouts:        policy,
			Limiter:         limiter,
		})
		if err != nil {
			return fmt.Errorf("failed to configure login: %w", err)
		}
	} else {
		log.Warn().Msg("No OAuth client configured, sign-in routes are disabled")
	}

	handler, err := server.New(cfg).Handler()
	if err != nil {
		return fmt.Errorf("failed to build handler: %w", err)
	}

	return c.listen(ctx, log, handler)
}

func (c *ServeCmd) listen(ctx context.Context, log zerolog.Logger, handler http.Handler) error {
	srv := configureHTTPServer(c.Listen, handler)

	errCh := make(chan error, 1)
	go func() {
		log.Info().Str("addr", c.Listen).Bool("tls", c.Cert != "").Msg("Starting HTTP server")
		if c.Cert != "" || c.Key != "" {
			errCh <- srv.ListenAndServeTLS(c.Cert, c.Key)
			return
		}
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	log.Info().Msg("Shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("failed to shutdown server: %w", err)
	}
	if err := <-errCh; !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (c *ServeCmd) limiter(ctx context.Context, log zerolog.Logger) (*ratelimit.Limiter, error) {
	rules := ratelimit.DefaultRules()
	if c.RateLimitConfig != "" {
		loaded, err := ratelimit.LoadRules(c.RateLimitConfig)
		if err != nil {
			return nil, err
		}
		rules = loaded
	}

	if c.Redis.Addr == "" {
		log.Warn().Msg("Using in-process rate limit counters, limits are per instance")
		return ratelimit.NewLimiter(ratelimit.NewMemoryCounter(), rules), nil
	}

	client := redis.NewClient(&redis.Options{
		Addr:     c.Redis.Addr,
		Password: c.Redis.Password,
		DB:       c.Redis.DB,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}
	log.Info().Str("addr", c.Redis.Addr).Msg("Using Redis rate limit counters")
	return ratelimit.NewLimiter(ratelimit.NewRedisCounter(client, "ownerportal"), rules), nil
}

func (c *ServeCmd) notifier(log zerolog.Logger, awsCfg aws.Config) (notify.Notifier, error) {
	if c.SQS.QueueURL == "" {
		log.Warn().Msg("No invitation queue configured, invitation links are only logged")
		return notify.LogNotifier{}, nil
	}

	return notify.NewSQSNotifier(c.sqsClient(awsCfg), c.SQS.QueueURL), nil
}

// objectStore returns the invoice store and, for the in-memory store, the
// handler serving its signed URLs.
func (c *ServeCmd) objectStore(log zerolog.Logger, awsCfg aws.Config) (storage.ObjectStore, http.Handler, error) {
	if c.S3.Bucket != "" {
		log.Info().Str("bucket", c.S3.Bucket).Msg("Using S3 invoice storage")
		return storage.NewS3Store(c.s3Client(awsCfg), c.S3.Bucket, c.S3.PathStyle), nil, nil
	}

	secret := []byte(c.S3.FilesSecret)
	if len(secret) == 0 {
		var err error
		if secret, err = randomSecret(); err != nil {
			return nil, nil, err
		}
	}

	objects, err := storage.NewMemoryStore(c.BaseURL+"/files", secret)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create invoice store: %w", err)
	}
	log.Warn().Msg("Using in-memory invoice storage")
	return objects, objects, nil
}

func (c *ServeCmd) s3Client(awsCfg aws.Config) *s3.Client {
	return s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if c.S3.Endpoint != "" {
			o.BaseEndpoint = aws.String(c.S3.Endpoint)
		}
		o.UsePathStyle = c.S3.PathStyle
	})
}

func (c *ServeCmd) sqsClient(awsCfg aws.Config) *sqs.Client {
	return sqs.NewFromConfig(awsCfg, func(o *sqs.Options) {
		if c.SQS.Endpoint != "" {
			o.BaseEndpoint = aws.String(c.SQS.Endpoint)
		}
	})
}

func randomSecret() ([]byte, error) {
	secret := make([]byte, 32)
	if _, err := rand.Read(secret); err != nil {
		return nil, fmt.Errorf("failed to generate secret: %w", err)
	}
	return secret, nil
}
