package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"

	_ "github.com/joho/godotenv/autoload"
	"github.com/urfave/cli/v3"

	"github.com/starford/anndex/internal"
	"github.com/starford/anndex/internal/codec"
	"github.com/starford/anndex/internal/index"
	"github.com/starford/anndex/internal/lookup"
	"github.com/starford/anndex/internal/models"
	"github.com/starford/anndex/internal/pipeline"
	"github.com/starford/anndex/internal/verify"
	pkgconfig "github.com/starford/anndex/pkg/config"
)

var errArtifactsDiffer = errors.New("artifacts differ")

// loadConfig reads the config file named by --config. A missing file falls
// back to the defaults unless the flag was set explicitly.
func loadConfig(cmd *cli.Command) (*internal.Config, error) {
	root := cmd.Root()
	configPath := root.String("config")

	cfg := internal.NewDefaultConfig()
	load := pkgconfig.LoadOptional[internal.Config]
	if root.IsSet("config") {
		load = pkgconfig.Load[internal.Config]
	}
	if err := load(configPath, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	return cfg, nil
}

func runIndex(ctx context.Context, cmd *cli.Command) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	if v := cmd.String("input"); v != "" {
		cfg.Image.Input = v
	}
	if v := cmd.String("output"); v != "" {
		cfg.Image.Output = v
	}
	if v := cmd.String("target"); v != "" {
		cfg.Index.TargetModule = v
	}
	if v := cmd.StringSlice("modules"); len(v) > 0 {
		cfg.Index.Modules = v
	}
	if cmd.Bool("skip-malformed") {
		cfg.Index.OnMalformed = pipeline.OnMalformedSkip
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("config validation failed: %w", err)
	}

	res, err := internal.Index(ctx, internal.WithConfig(cfg), internal.WithLogOutput(os.Stderr))
	if err != nil {
		return fmt.Errorf("index: %w", err)
	}
	fmt.Printf("wrote %s: %d classes (%d reused, %d skipped), %d types, %d instances, %d bytes\n",
		res.Path, res.Classes, res.Reused, res.Skipped, len(res.Index.Types()), res.Index.Len(), len(res.Artifact))
	return nil
}

func readArtifact(ctx context.Context, path string) (*index.Index, []byte, error) {
	data, err := lookup.FileSource{Path: path}.Fetch(ctx)
	if err != nil {
		return nil, nil, err
	}
	x, err := codec.Read(data)
	if err != nil {
		return nil, nil, fmt.Errorf("%s: %w", path, err)
	}
	return x, data, nil
}

func runLookup(ctx context.Context, cmd *cli.Command) error {
	path, typ := cmd.Args().Get(0), cmd.Args().Get(1)
	if path == "" || typ == "" {
		return fmt.Errorf("usage: lookup <artifact> <annotation-type>")
	}
	x, _, err := readArtifact(ctx, path)
	if err != nil {
		return err
	}
	for _, in := range x.Lookup(typ) {
		fmt.Println(formatInstance(in))
	}
	return nil
}

func formatInstance(in models.Instance) string {
	var b strings.Builder
	fmt.Fprintf(&b, "%-9s %s", in.Target.Kind, in.Target)
	if len(in.Members) > 0 {
		fmt.Fprintf(&b, " (%s)", models.FormatMembers(in.Members))
	}
	return b.String()
}

func runDump(ctx context.Context, cmd *cli.Command) error {
	path := cmd.Args().First()
	if path == "" {
		return fmt.Errorf("usage: dump <artifact>")
	}
	x, _, err := readArtifact(ctx, path)
	if err != nil {
		return err
	}
	fmt.Print(verify.Dump(x))
	return nil
}

func runVerify(ctx context.Context, cmd *cli.Command) error {
	a, b := cmd.Args().Get(0), cmd.Args().Get(1)
	if a == "" || b == "" {
		return fmt.Errorf("usage: verify <artifact> <artifact>")
	}
	_, da, err := readArtifact(ctx, a)
	if err != nil {
		return err
	}
	_, db, err := readArtifact(ctx, b)
	if err != nil {
		return err
	}
	report, err := verify.CompareArtifacts(a, b, da, db)
	if err != nil {
		return err
	}
	if !report.Identical {
		fmt.Print(report.Diff)
		return errArtifactsDiffer
	}
	if report.SameBytes {
		fmt.Println("identical")
	} else {
		fmt.Println("equivalent (encodings differ)")
	}
	return nil
}

func runServe(ctx context.Context, cmd *cli.Command) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	if v := cmd.String("artifact"); v != "" {
		cfg.Serve.Artifact = v
	}
	if cmd.Bool("watch") {
		cfg.Serve.Watch = true
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("config validation failed: %w", err)
	}
	if err := internal.Run(ctx, internal.WithConfig(cfg)); err != nil {
		return fmt.Errorf("app run error: %w", err)
	}
	return nil
}

func runMCP(ctx context.Context, cmd *cli.Command) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	if v := cmd.String("artifact"); v != "" {
		cfg.Serve.Artifact = v
	}
	return internal.ServeMCP(ctx, internal.WithConfig(cfg))
}

func artifactFlag() cli.Flag {
	return &cli.StringFlag{
		Name:  "artifact",
		Usage: "Artifact to load: a file path or s3://<name> (overrides serve.artifact)",
	}
}

func main() {
	cmd := &cli.Command{
		Name:  "anndex",
		Usage: "Annotation index for packaged JVM images",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:        "config",
				Aliases:     []string{"c"},
				Usage:       "Path to config file",
				DefaultText: "config/config.yaml",
				Value:       "config/config.yaml",
				Sources:     cli.EnvVars("APP_CONFIG_FILE"),
			},
		},
		Commands: []*cli.Command{
			{
				Name:   "index",
				Usage:  "Scan the image and write the annotation index artifact",
				Action: runIndex,
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "input", Usage: "Image root (overrides image.input)"},
					&cli.StringFlag{Name: "output", Usage: "Output image root (overrides image.output)"},
					&cli.StringFlag{Name: "target", Usage: "Module receiving the artifact"},
					&cli.StringSliceFlag{Name: "modules", Usage: "Modules to scan, in order"},
					&cli.BoolFlag{Name: "skip-malformed", Usage: "Skip unreadable class files instead of failing"},
				},
			},
			{
				Name:      "lookup",
				Usage:     "Print every element carrying an annotation type",
				ArgsUsage: "<artifact> <annotation-type>",
				Action:    runLookup,
			},
			{
				Name:      "dump",
				Usage:     "Print an artifact as canonical text",
				ArgsUsage: "<artifact>",
				Action:    runDump,
			},
			{
				Name:      "verify",
				Usage:     "Compare two artifacts and print a unified diff when they differ",
				ArgsUsage: "<artifact> <artifact>",
				Action:    runVerify,
			},
			{
				Name:   "serve",
				Usage:  "Serve the HTTP query API",
				Action: runServe,
				Flags: []cli.Flag{
					artifactFlag(),
					&cli.BoolFlag{Name: "watch", Usage: "Rebuild the index when class files change"},
				},
			},
			{
				Name:   "mcp",
				Usage:  "Serve the MCP tools on stdio",
				Action: runMCP,
				Flags:  []cli.Flag{artifactFlag()},
			},
		},
	}

	if err := cmd.Run(context.Background(), os.Args); err != nil {
		slog.Error("application error", slog.String("error", err.Error()))
		os.Exit(1)
	}
}
