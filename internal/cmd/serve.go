package cmd

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/cobra"

	"github.com/tomasbasham/cli-runtime/iooption"
	"github.com/tomasbasham/cli-runtime/templates"

	"github.com/fundood999/agentic-ai-backend/internal/config"
	"github.com/fundood999/agentic-ai-backend/internal/logger"
	"github.com/fundood999/agentic-ai-backend/internal/metrics"
	"github.com/fundood999/agentic-ai-backend/internal/server"
)

type ServeOptions struct {
	cfg *config.Config

	Port         string
	Bucket       string
	Backend      string
	UniqueKeys   bool
	EnsureBucket bool

	iooption.IOStreams
}

var (
	serveLong = templates.LongDesc(`
		Start the image intake HTTP server.

		Configuration is read from a .env file in the working directory and
		from the environment (PORT, PROJECT_ID, KEY_FILE, BUCKET, ...). Flags
		take precedence over both.`)

	serveExample = templates.Examples(`
		# Start on the default port
		imgup serve

		# Start on a custom port with a specific bucket
		imgup serve --port 9090 --bucket my-image-bucket

		# Develop locally without cloud credentials
		imgup serve --backend disk`)
)

func NewServeOptions(streams iooption.IOStreams) *ServeOptions {
	return &ServeOptions{
		IOStreams: streams,
	}
}

func NewServeCommand(o *ServeOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:     "serve",
		Short:   "Start the image intake HTTP server",
		Long:    serveLong,
		Example: serveExample,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := o.Complete(cmd, args); err != nil {
				return err
			}
			if err := o.Validate(); err != nil {
				return err
			}
			if err := o.Run(); err != nil {
				return err
			}
			return nil
		},
	}

	cmd.Flags().StringVarP(&o.Port, "port", "p", "8080", "Port to listen on (overrides PORT)")
	cmd.Flags().StringVarP(&o.Bucket, "bucket", "b", config.DefaultBucket, "Bucket name for image storage (overrides BUCKET)")
	cmd.Flags().StringVar(&o.Backend, "backend", config.BackendGCS, "Storage backend: gcs, s3 or disk (overrides STORAGE_BACKEND)")
	cmd.Flags().BoolVar(&o.UniqueKeys, "unique-keys", false, "Add a random segment to object keys (overrides UNIQUE_KEYS)")
	cmd.Flags().BoolVar(&o.EnsureBucket, "ensure-bucket", false, "Create the bucket at startup if it is missing (overrides ENSURE_BUCKET)")

	return cmd
}

// Complete loads configuration and applies any flags the user set.
func (o *ServeOptions) Complete(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}

	flags := cmd.Flags()
	if flags.Changed("port") {
		cfg.Port = o.Port
	}
	if flags.Changed("bucket") {
		cfg.Bucket = o.Bucket
	}
	if flags.Changed("backend") {
		cfg.Backend = o.Backend
	}
	if flags.Changed("unique-keys") {
		cfg.UniqueKeys = o.UniqueKeys
	}
	if flags.Changed("ensure-bucket") {
		cfg.EnsureBucket = o.EnsureBucket
	}

	o.cfg = cfg
	return nil
}

func (o *ServeOptions) Validate() error {
	return o.cfg.Validate()
}

func (o *ServeOptions) Run() error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	log, err := logger.New(o.ErrOut, o.cfg.LogLevel, o.cfg.LogFormat)
	if err != nil {
		return err
	}

	backend, err := newBackend(ctx, o.cfg)
	if err != nil {
		return err
	}
	defer closeBackend(backend)

	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	m := metrics.New(reg)

	svc := newService(o.cfg, backend, log, m)

	opts := server.Options{
		Proxied:   svc.Proxied,
		Presigned: svc.Presigned,
		Logger:    log,
		Metrics:   m,
	}
	if o.cfg.Metrics {
		opts.Gatherer = reg
	}

	log.Info("starting image intake server",
		"backend", o.cfg.Backend,
		"bucket", o.cfg.Bucket,
		"unique_keys", o.cfg.UniqueKeys,
	)

	if err := server.New(opts).Run(ctx, o.cfg.Addr()); err != nil {
		return fmt.Errorf("server error: %w", err)
	}
	return nil
}
