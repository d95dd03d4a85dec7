package pipeline

import (
	"context"
	"fmt"
	"log/slog"

	"golang.org/x/sync/errgroup"

	"github.com/starford/anndex/internal/apperr"
	"github.com/starford/anndex/internal/classfile"
	"github.com/starford/anndex/internal/index"
	"github.com/starford/anndex/internal/models"
)

// outcome is the scan result of one class file, stored at the file's
// position so the builder is fed in scan order.
type outcome struct {
	className string
	instances []models.Instance
	err       error
	reused    bool
}

// scan resolves every class either from the catalog or by parsing it.
// Parsing runs on up to cfg.Workers goroutines. Malformed files are reported
// per outcome; only I/O failures and cancellation abort the scan.
func (p *Pipeline) scan(ctx context.Context, classes []models.Resource) ([]outcome, error) {
	outcomes := make([]outcome, len(classes))
	var pending []int
	for i, res := range classes {
		if p.catalog == nil {
			pending = append(pending, i)
			continue
		}
		hit, ok, err := p.catalog.Lookup(res.Module, res.Path, res.Checksum)
		if err != nil {
			p.record(err)
		}
		if !ok {
			pending = append(pending, i)
			continue
		}
		outcomes[i] = outcome{instances: hit.Instances, reused: true}
		if hit.Error != "" {
			outcomes[i].err = fmt.Errorf("%w (recorded): %s", apperr.ErrMalformedClassData, hit.Error)
		}
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(p.cfg.Workers)
	for _, i := range pending {
		res := classes[i]
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return fmt.Errorf("pipeline: scan: %w", err)
			}
			data, err := p.in.Read(res.Module, res.Path)
			if err != nil {
				return fmt.Errorf("pipeline: read %s: %w", res.Key(), err)
			}
			c, err := classfile.Parse(data)
			if err != nil {
				outcomes[i] = outcome{err: err}
				return nil
			}
			if c.Downgraded > 0 {
				p.logger.Warn("pipeline: unsupported element values downgraded",
					slog.String("path", res.Key()),
					slog.Int("count", c.Downgraded))
			}
			outcomes[i] = outcome{className: c.Name, instances: index.Derive(c)}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return outcomes, nil
}
