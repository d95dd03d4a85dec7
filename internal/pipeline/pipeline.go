// Package pipeline turns an image tree into an indexed image: it scans the
// class files of the selected modules, builds the annotation index, writes
// the artifact into the target module and publishes it.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"path"
	"runtime"
	"slices"

	"github.com/starford/anndex/internal/apperr"
	"github.com/starford/anndex/internal/catalog"
	"github.com/starford/anndex/internal/codec"
	"github.com/starford/anndex/internal/index"
	"github.com/starford/anndex/internal/models"
	"github.com/starford/anndex/internal/storage"
)

// DefaultArtifactPath is where the artifact lives inside the target module.
const DefaultArtifactPath = "META-INF/jandex.idx"

// Malformed class file policies.
const (
	OnMalformedFail = "fail"
	OnMalformedSkip = "skip"
)

// Config selects what to scan and where the artifact goes.
type Config struct {
	// TargetModule receives the artifact. Empty means the first scanned module.
	TargetModule string
	// Modules are scanned in the given order. Empty means every module of
	// the input image, sorted by name.
	Modules      []string
	ArtifactPath string
	Workers      int
	OnMalformed  string
}

// Result summarizes one run.
type Result struct {
	Index    *index.Index
	Artifact []byte
	// Path is the artifact's absolute resource name, "/<module>/<path>".
	Path    string
	Classes int
	Reused  int
	Skipped int
	Copied  int
}

// Option is a functional option for configuring a Pipeline.
type Option func(*Pipeline)

// WithOutput writes the indexed image to a separate tree. Every input
// resource is copied through unchanged.
func WithOutput(out storage.Provider) Option {
	return func(p *Pipeline) { p.out = out }
}

// WithCatalog reuses scan results of unchanged class files.
func WithCatalog(db *catalog.DB) Option {
	return func(p *Pipeline) { p.catalog = db }
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(p *Pipeline) { p.logger = logger }
}

// WithSink publishes every artifact to sink.
func WithSink(sink storage.Sink) Option {
	return func(p *Pipeline) { p.sinks = append(p.sinks, sink) }
}

// Pipeline runs the indexer over one input image.
type Pipeline struct {
	in      storage.Provider
	out     storage.Provider
	cfg     Config
	catalog *catalog.DB
	sinks   []storage.Sink
	logger  *slog.Logger
}

// New creates a pipeline reading from in.
func New(in storage.Provider, cfg Config, opts ...Option) *Pipeline {
	if cfg.ArtifactPath == "" {
		cfg.ArtifactPath = DefaultArtifactPath
	}
	if cfg.Workers <= 0 {
		cfg.Workers = runtime.GOMAXPROCS(0)
	}
	if cfg.OnMalformed == "" {
		cfg.OnMalformed = OnMalformedFail
	}
	p := &Pipeline{in: in, cfg: cfg}
	for _, opt := range opts {
		opt(p)
	}
	if p.logger == nil {
		p.logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return p
}

// modules resolves the scan order and the target module.
func (p *Pipeline) modules() ([]string, string, error) {
	mods := p.cfg.Modules
	if len(mods) == 0 {
		all, err := p.in.Modules()
		if err != nil {
			return nil, "", fmt.Errorf("pipeline: %w", err)
		}
		mods = all
	}
	if len(mods) == 0 {
		return nil, "", fmt.Errorf("pipeline: image has no modules: %w", apperr.ErrNotFound)
	}
	target := p.cfg.TargetModule
	if target == "" {
		target = mods[0]
	}
	return mods, target, nil
}

// Run scans the image and writes the artifact. On error nothing is written.
func (p *Pipeline) Run(ctx context.Context) (*Result, error) {
	mods, target, err := p.modules()
	if err != nil {
		return nil, err
	}
	if _, err := p.in.List(target); err != nil {
		if errors.Is(err, apperr.ErrNotFound) {
			return nil, fmt.Errorf("pipeline: module %s not found: %w", target, apperr.ErrNotFound)
		}
		return nil, fmt.Errorf("pipeline: %w", err)
	}

	var classes []models.Resource
	listed := make(map[string][]models.Resource, len(mods))
	for _, m := range mods {
		res, err := p.in.List(m)
		if errors.Is(err, apperr.ErrNotFound) {
			return nil, fmt.Errorf("pipeline: module %s not found: %w", m, apperr.ErrNotFound)
		}
		if err != nil {
			return nil, fmt.Errorf("pipeline: %w", err)
		}
		listed[m] = res
		for _, r := range res {
			if r.IsClass() {
				classes = append(classes, r)
			}
		}
	}

	p.logger.Info("pipeline: scanning",
		slog.Int("modules", len(mods)),
		slog.Int("classes", len(classes)),
		slog.String("target", target))

	outcomes, err := p.scan(ctx, classes)
	if err != nil {
		return nil, err
	}

	result := &Result{Classes: len(classes), Path: "/" + target + "/" + p.cfg.ArtifactPath}
	b := index.NewBuilder()
	for i, o := range outcomes {
		res := classes[i]
		if o.err != nil {
			if p.cfg.OnMalformed != OnMalformedSkip {
				return nil, fmt.Errorf("pipeline: %s: %w", res.Key(), o.err)
			}
			p.logger.Warn("pipeline: skipping malformed class",
				slog.String("path", res.Key()),
				slog.String("error", o.err.Error()))
			result.Skipped++
			if p.catalog != nil && !o.reused {
				p.record(p.catalog.PutError(catalog.Entry{
					Module: res.Module, Path: res.Path, Checksum: res.Checksum, Error: o.err.Error(),
				}))
			}
			continue
		}
		if o.reused {
			result.Reused++
		} else if p.catalog != nil {
			p.record(p.catalog.Put(catalog.Entry{
				Module: res.Module, Path: res.Path, Checksum: res.Checksum, ClassName: o.className,
			}, o.instances))
		}
		if err := b.AddInstances(o.instances); err != nil {
			return nil, fmt.Errorf("pipeline: %w", err)
		}
	}

	x, err := b.Complete()
	if err != nil {
		return nil, fmt.Errorf("pipeline: %w", err)
	}
	result.Index = x
	result.Artifact = codec.Write(x)

	dst := p.in
	if p.out != nil && p.out != p.in {
		dst = p.out
		copied, err := p.copyThrough(listed, target)
		if err != nil {
			return nil, err
		}
		result.Copied = copied
	}
	if err := dst.Write(target, p.cfg.ArtifactPath, result.Artifact); err != nil {
		return nil, fmt.Errorf("pipeline: write artifact %s: %w", result.Path, err)
	}

	for _, sink := range p.sinks {
		if err := sink.Publish(ctx, path.Join(target, p.cfg.ArtifactPath), result.Artifact); err != nil {
			return nil, fmt.Errorf("pipeline: publish %s: %w", result.Path, err)
		}
	}

	if p.catalog != nil {
		present := make(map[string]struct{}, len(classes))
		for _, c := range classes {
			present[c.Key()] = struct{}{}
		}
		if _, err := catalog.Prune(p.catalog, present, mods, p.logger); err != nil {
			p.record(err)
		}
	}

	p.logger.Info("pipeline: index written",
		slog.String("path", result.Path),
		slog.Int("types", len(x.Types())),
		slog.Int("instances", x.Len()),
		slog.Int("reused", result.Reused),
		slog.Int("skipped", result.Skipped),
		slog.Int("bytes", len(result.Artifact)))
	return result, nil
}

// record logs catalog failures. The catalog only saves work, so they never
// fail a run.
func (p *Pipeline) record(err error) {
	if err != nil {
		p.logger.Warn("pipeline: catalog update failed", slog.String("error", err.Error()))
	}
}

// copyThrough copies every resource of every input module to the output
// exactly once. A stale artifact in the target module is left for the new
// one to replace.
func (p *Pipeline) copyThrough(listed map[string][]models.Resource, target string) (int, error) {
	all, err := p.in.Modules()
	if err != nil {
		return 0, fmt.Errorf("pipeline: %w", err)
	}
	for m := range listed {
		if !slices.Contains(all, m) {
			all = append(all, m)
		}
	}

	copied := 0
	for _, m := range all {
		res, ok := listed[m]
		if !ok {
			if res, err = p.in.List(m); err != nil {
				return 0, fmt.Errorf("pipeline: %w", err)
			}
		}
		for _, r := range res {
			if m == target && r.Path == p.cfg.ArtifactPath {
				continue
			}
			data, err := p.in.Read(m, r.Path)
			if err != nil {
				return 0, fmt.Errorf("pipeline: copy %s: %w", r.Key(), err)
			}
			if err := p.out.Write(m, r.Path, data); err != nil {
				return 0, fmt.Errorf("pipeline: copy %s: %w", r.Key(), err)
			}
			copied++
		}
	}
	return copied, nil
}
