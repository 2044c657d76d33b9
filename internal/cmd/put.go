package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"mime"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"

	"github.com/tomasbasham/cli-runtime/iooption"
	"github.com/tomasbasham/cli-runtime/templates"

	"github.com/fundood999/agentic-ai-backend/internal/config"
	"github.com/fundood999/agentic-ai-backend/internal/intake"
	"github.com/fundood999/agentic-ai-backend/internal/logger"
	"github.com/fundood999/agentic-ai-backend/internal/metrics"
	"github.com/fundood999/agentic-ai-backend/internal/upload"
)

type PutOptions struct {
	cfg *config.Config

	Path        string
	Sign        bool
	ContentType string
	Metadata    string
	Bucket      string
	Backend     string

	iooption.IOStreams
}

var (
	putLong = templates.LongDesc(`
		Run an intake request against the configured bucket without going
		through the HTTP server.

		By default the file is read, validated and written to the bucket the
		same way POST /upload-image does it. With --sign only the file name is
		used and a pre-signed upload URL is printed instead, as from
		POST /get-upload-url.`)

	putExample = templates.Examples(`
		# Upload a photo
		imgup put ./cat.jpg

		# Upload with metadata
		imgup put ./cat.jpg --metadata '{"album":"pets"}'

		# Get a URL to upload cat.jpg directly
		imgup put cat.jpg --sign --content-type image/jpeg`)
)

func NewPutOptions(streams iooption.IOStreams) *PutOptions {
	return &PutOptions{
		IOStreams: streams,
	}
}

func NewPutCommand(o *PutOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:                   "put FILE",
		DisableFlagsInUseLine: true,
		Short:                 "Upload an image, or request an upload URL for one",
		Long:                  putLong,
		Example:               putExample,
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

	flags := cmd.Flags()
	flags.BoolVarP(&o.Sign, "sign", "s", false, "Issue a pre-signed upload URL instead of uploading")
	flags.StringVarP(&o.ContentType, "content-type", "c", "", "Declared content type (default: from the file extension)")
	flags.StringVarP(&o.Metadata, "metadata", "m", "", "JSON object echoed back with the upload")
	flags.StringVarP(&o.Bucket, "bucket", "b", config.DefaultBucket, "Bucket name (overrides BUCKET)")
	flags.StringVar(&o.Backend, "backend", config.BackendGCS, "Storage backend: gcs, s3 or disk (overrides STORAGE_BACKEND)")

	return cmd
}

func (o *PutOptions) Complete(cmd *cobra.Command, args []string) error {
	if len(args) < 1 {
		return fmt.Errorf("FILE is required")
	}
	o.Path = args[0]

	cfg, err := config.Load()
	if err != nil {
		return err
	}
	if cmd.Flags().Changed("bucket") {
		cfg.Bucket = o.Bucket
	}
	if cmd.Flags().Changed("backend") {
		cfg.Backend = o.Backend
	}
	o.cfg = cfg

	if o.ContentType == "" && !o.Sign {
		o.ContentType = mime.TypeByExtension(filepath.Ext(o.Path))
	}
	return nil
}

func (o *PutOptions) Validate() error {
	if len(o.Path) == 0 {
		return fmt.Errorf("FILE is required")
	}
	return o.cfg.Validate()
}

func (o *PutOptions) Run() error {
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

	svc := newService(o.cfg, backend, log, metrics.New(prometheus.NewRegistry()))

	var out any
	if o.Sign {
		out, err = o.sign(ctx, svc)
	} else {
		out, err = o.put(ctx, svc)
	}
	if err != nil {
		return err
	}

	enc := json.NewEncoder(o.Out)
	enc.SetIndent("", "  ")
	return enc.Encode(out)
}

func (o *PutOptions) put(ctx context.Context, svc *upload.Service) (any, error) {
	data, err := os.ReadFile(o.Path)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", o.Path, err)
	}

	metadata, err := intake.ParseMetadata(o.Metadata)
	if err != nil {
		return nil, err
	}

	res, err := svc.Proxied.Execute(ctx, &intake.Request{
		Body:        data,
		FileName:    filepath.Base(o.Path),
		ContentType: o.ContentType,
		Metadata:    metadata,
	})
	if err != nil {
		return nil, err
	}

	return map[string]any{
		"message":  "Upload successful",
		"fileName": res.Key,
		"size":     res.Size,
		"metadata": res.Metadata,
	}, nil
}

func (o *PutOptions) sign(ctx context.Context, svc *upload.Service) (any, error) {
	res, err := svc.Presigned.Execute(ctx, &intake.Request{
		FileName:    filepath.Base(o.Path),
		ContentType: o.ContentType,
	})
	if err != nil {
		return nil, err
	}

	return map[string]any{
		"uploadUrl": res.UploadURL,
		"fileName":  res.Key,
		"publicUrl": res.PublicURL,
		"expiresAt": res.ExpiresAt,
	}, nil
}
