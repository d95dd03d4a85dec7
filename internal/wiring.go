package internal

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/starford/anndex/internal/catalog"
	"github.com/starford/anndex/internal/lookup"
	"github.com/starford/anndex/internal/pipeline"
	"github.com/starford/anndex/internal/storage"
)

func newApplication(opts []Option) (*application, error) {
	app := &application{}
	for _, opt := range opts {
		opt(app)
	}
	if app.config == nil {
		return nil, fmt.Errorf("config is required")
	}
	if app.logOutput == nil {
		app.logOutput = os.Stdout
	}
	return app, nil
}

// logger initializes the structured JSON logger and makes it the default.
func (a *application) logger() *slog.Logger {
	logger := slog.New(slog.NewJSONHandler(a.logOutput, &slog.HandlerOptions{
		Level: a.config.App.LogLevel,
	}))
	slog.SetDefault(logger)
	return logger
}

// resources holds what the pipeline and the consumers share.
type resources struct {
	in  *storage.FS
	db  *catalog.DB
	s3  *storage.S3
	cfg *Config
}

func (a *application) open() (*resources, error) {
	cfg := a.config
	in, err := storage.NewFS(cfg.Image.Input, false)
	if err != nil {
		return nil, fmt.Errorf("init image: %w", err)
	}
	res := &resources{in: in, cfg: cfg}

	if cfg.Catalog.Enabled() {
		if dir := filepath.Dir(cfg.Catalog.Path); dir != "." {
			if err := os.MkdirAll(dir, 0o755); err != nil {
				return nil, fmt.Errorf("create catalog dir: %w", err)
			}
		}
		res.db, err = catalog.Open(cfg.Catalog.Path, cfg.Catalog.CacheSize)
		if err != nil {
			return nil, fmt.Errorf("init catalog: %w", err)
		}
	}

	if cfg.Publish.S3.Enabled() {
		res.s3, err = storage.NewS3(cfg.Publish.S3.StorageConfig())
		if err != nil {
			res.Close()
			return nil, fmt.Errorf("init s3: %w", err)
		}
	}
	return res, nil
}

func (r *resources) Close() {
	if r.db != nil {
		_ = r.db.Close()
	}
}

// pipeline assembles the indexing pipeline from the configuration.
func (r *resources) pipeline(logger *slog.Logger) (*pipeline.Pipeline, error) {
	opts := []pipeline.Option{pipeline.WithLogger(logger)}
	if !r.cfg.Image.InPlace() {
		out, err := storage.NewFS(r.cfg.Image.Output, true)
		if err != nil {
			return nil, fmt.Errorf("init output image: %w", err)
		}
		opts = append(opts, pipeline.WithOutput(out))
	}
	if r.db != nil {
		opts = append(opts, pipeline.WithCatalog(r.db))
	}
	if r.s3 != nil {
		opts = append(opts, pipeline.WithSink(r.s3))
	}
	return pipeline.New(r.in, r.cfg.Index.PipelineConfig(), opts...), nil
}

// source resolves serve.artifact.
func (r *resources) source() (lookup.Source, error) {
	artifact := r.cfg.Serve.Artifact
	if name, ok := strings.CutPrefix(artifact, ObjectScheme); ok {
		if r.s3 == nil {
			return nil, fmt.Errorf("serve: artifact %q needs publish.s3", artifact)
		}
		return lookup.ObjectSource{Store: r.s3, Name: name}, nil
	}
	if artifact != "" {
		return lookup.FileSource{Path: artifact}, nil
	}

	target, err := r.targetModule()
	if err != nil {
		return nil, err
	}
	return lookup.FileSource{
		Path: filepath.Join(r.cfg.Image.Root(), target, filepath.FromSlash(r.cfg.Index.ArtifactPath)),
	}, nil
}

func (r *resources) targetModule() (string, error) {
	idx := r.cfg.Index
	switch {
	case idx.TargetModule != "":
		return idx.TargetModule, nil
	case len(idx.Modules) > 0:
		return idx.Modules[0], nil
	}
	mods, err := r.in.Modules()
	if err != nil {
		return "", err
	}
	if len(mods) == 0 {
		return "", fmt.Errorf("image %s has no modules", r.cfg.Image.Input)
	}
	return mods[0], nil
}
