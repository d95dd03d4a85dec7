package internal

import (
	"fmt"
	"log/slog"
	"strings"

	validation "github.com/go-ozzo/ozzo-validation/v4"

	"github.com/starford/anndex/internal/catalog"
	"github.com/starford/anndex/internal/pipeline"
	"github.com/starford/anndex/internal/storage"
)

// Auth modes.
const (
	AuthModeDisabled = "disabled"
	AuthModeToken    = "token"
)

// ObjectScheme prefixes serve.artifact values naming an object in the
// configured S3 bucket.
const ObjectScheme = "s3://"

// Config represents the application configuration.
type Config struct {
	App     ApplicationConfig `yaml:"app"`
	Image   ImageConfig       `yaml:"image"`
	Index   IndexConfig       `yaml:"index"`
	Catalog CatalogConfig     `yaml:"catalog"`
	Publish PublishConfig     `yaml:"publish"`
	Serve   ServeConfig       `yaml:"serve"`
	Auth    AuthConfig        `yaml:"auth"`
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	if err := c.App.Validate(); err != nil {
		return err
	}
	if err := c.Image.Validate(); err != nil {
		return fmt.Errorf("image: %w", err)
	}
	if err := c.Index.Validate(); err != nil {
		return fmt.Errorf("index: %w", err)
	}
	if err := c.Catalog.Validate(); err != nil {
		return fmt.Errorf("catalog: %w", err)
	}
	if err := c.Publish.S3.Validate(); err != nil {
		return fmt.Errorf("publish.s3: %w", err)
	}
	if strings.HasPrefix(c.Serve.Artifact, ObjectScheme) && !c.Publish.S3.Enabled() {
		return fmt.Errorf("serve: artifact %q needs publish.s3 to be configured", c.Serve.Artifact)
	}
	return c.Auth.Validate()
}

// ApplicationConfig holds application-level configuration.
type ApplicationConfig struct {
	LogLevel slog.Level `yaml:"log_level"`
	HTTP     HTTPConfig `yaml:"http"`
}

// Validate validates the application configuration.
func (c *ApplicationConfig) Validate() error {
	return c.HTTP.Validate()
}

// HTTPConfig holds HTTP server configuration.
type HTTPConfig struct {
	Port int `yaml:"port"`
}

// Address returns HTTP server address.
func (c *HTTPConfig) Address() string {
	return fmt.Sprintf(":%d", c.Port)
}

// Validate validates the HTTP configuration.
func (c *HTTPConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.Port, validation.Required, validation.Min(1), validation.Max(65535)),
	)
}

// ImageConfig locates the image tree. An empty Output, or one equal to
// Input, means the artifact is written in place.
type ImageConfig struct {
	Input  string `yaml:"input"`
	Output string `yaml:"output"`
}

// Validate validates the image configuration.
func (c *ImageConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.Input, validation.Required),
	)
}

// InPlace reports whether the artifact goes into the input tree.
func (c *ImageConfig) InPlace() bool {
	return c.Output == "" || c.Output == c.Input
}

// Root returns the tree the artifact is written to.
func (c *ImageConfig) Root() string {
	if c.InPlace() {
		return c.Input
	}
	return c.Output
}

// IndexConfig controls the indexing pipeline.
type IndexConfig struct {
	TargetModule string   `yaml:"target_module"`
	Modules      []string `yaml:"modules"`
	ArtifactPath string   `yaml:"artifact_path"`
	// Workers bounds parallel class parsing; 0 means GOMAXPROCS.
	Workers     int    `yaml:"workers"`
	OnMalformed string `yaml:"on_malformed"`
}

// Validate validates the index configuration.
func (c *IndexConfig) Validate() error {
	if c.ArtifactPath == "" {
		c.ArtifactPath = pipeline.DefaultArtifactPath
	}
	if c.OnMalformed == "" {
		c.OnMalformed = pipeline.OnMalformedFail
	}
	return validation.ValidateStruct(c,
		validation.Field(&c.ArtifactPath, validation.Required, validation.By(relativePath)),
		validation.Field(&c.Workers, validation.Min(0)),
		validation.Field(&c.OnMalformed, validation.In(pipeline.OnMalformedFail, pipeline.OnMalformedSkip)),
		validation.Field(&c.Modules, validation.Each(validation.Required)),
	)
}

// PipelineConfig converts the section for the pipeline.
func (c *IndexConfig) PipelineConfig() pipeline.Config {
	return pipeline.Config{
		TargetModule: c.TargetModule,
		Modules:      c.Modules,
		ArtifactPath: c.ArtifactPath,
		Workers:      c.Workers,
		OnMalformed:  c.OnMalformed,
	}
}

func relativePath(v any) error {
	p, _ := v.(string)
	if strings.HasPrefix(p, "/") || strings.Contains(p, "..") {
		return fmt.Errorf("must be a relative path inside the module")
	}
	return nil
}

// CatalogConfig configures the incremental scan catalog. An empty Path
// disables it.
type CatalogConfig struct {
	Path      string `yaml:"path"`
	CacheSize int    `yaml:"cache_size"`
}

// Validate validates the catalog configuration.
func (c *CatalogConfig) Validate() error {
	if c.CacheSize == 0 {
		c.CacheSize = catalog.DefaultCacheSize
	}
	return validation.ValidateStruct(c,
		validation.Field(&c.CacheSize, validation.Min(1)),
	)
}

// Enabled reports whether the catalog is configured.
func (c *CatalogConfig) Enabled() bool {
	return c.Path != ""
}

// PublishConfig lists artifact sinks.
type PublishConfig struct {
	S3 S3Config `yaml:"s3"`
}

// S3Config configures publishing to an S3-compatible store. An empty Bucket
// disables it.
type S3Config struct {
	Endpoint  string `yaml:"endpoint"`
	Region    string `yaml:"region"`
	AccessKey string `yaml:"access_key"`
	SecretKey string `yaml:"secret_key"`
	Bucket    string `yaml:"bucket"`
	Prefix    string `yaml:"prefix"`
	UseSSL    bool   `yaml:"use_ssl"`
}

// Enabled reports whether publishing to S3 is configured.
func (c *S3Config) Enabled() bool {
	return c.Bucket != ""
}

// Validate validates the S3 configuration.
func (c *S3Config) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.Endpoint, validation.When(c.Enabled(), validation.Required)),
		validation.Field(&c.AccessKey, validation.When(c.Enabled(), validation.Required)),
		validation.Field(&c.SecretKey, validation.When(c.Enabled(), validation.Required)),
	)
}

// StorageConfig converts the section for the storage layer.
func (c *S3Config) StorageConfig() storage.S3Config {
	return storage.S3Config{
		Endpoint:  c.Endpoint,
		Region:    c.Region,
		AccessKey: c.AccessKey,
		SecretKey: c.SecretKey,
		Bucket:    c.Bucket,
		Prefix:    c.Prefix,
		UseSSL:    c.UseSSL,
	}
}

// ServeConfig configures the query server.
//
// Artifact names where the index is loaded from:
//   - "" (default): the artifact the pipeline writes for this config.
//   - "s3://<name>": object <name> in the publish.s3 bucket.
//   - anything else: a local file path.
//
// Watch rebuilds the index when class files in the image change.
type ServeConfig struct {
	Artifact string `yaml:"artifact"`
	Watch    bool   `yaml:"watch"`
}

// AuthConfig holds authentication configuration.
//
// Mode controls how authentication is enforced:
//   - "disabled" (default): no authentication required, suitable for local dev.
//   - "token": Bearer token authentication; Token must be non-empty.
type AuthConfig struct {
	Mode  string `yaml:"mode"`
	Token string `yaml:"token"`
}

// Validate validates the auth configuration.
func (c *AuthConfig) Validate() error {
	if c.Mode == "" {
		c.Mode = AuthModeDisabled
	}
	if err := validation.ValidateStruct(c,
		validation.Field(&c.Mode, validation.Required, validation.In(AuthModeDisabled, AuthModeToken)),
	); err != nil {
		return err
	}
	if c.Mode == AuthModeToken && c.Token == "" {
		return fmt.Errorf("auth: mode is %q but token is empty", AuthModeToken)
	}
	return nil
}

// AuthEnabled returns true when authentication is active.
func (c *AuthConfig) AuthEnabled() bool {
	return c.Mode == AuthModeToken
}

// NewDefaultConfig returns a new Config with sensible default values.
func NewDefaultConfig() *Config {
	return &Config{
		App: ApplicationConfig{
			LogLevel: slog.LevelInfo,
			HTTP: HTTPConfig{
				Port: 8080,
			},
		},
		Image: ImageConfig{
			Input: "./image",
		},
		Index: IndexConfig{
			ArtifactPath: pipeline.DefaultArtifactPath,
			OnMalformed:  pipeline.OnMalformedFail,
		},
		Catalog: CatalogConfig{
			CacheSize: catalog.DefaultCacheSize,
		},
		Publish: PublishConfig{
			S3: S3Config{
				Region: "us-east-1",
				UseSSL: true,
			},
		},
		Auth: AuthConfig{
			Mode: AuthModeDisabled,
		},
	}
}
