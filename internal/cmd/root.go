package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	cliflag "github.com/tomasbasham/cli-runtime/flag"
	"github.com/tomasbasham/cli-runtime/iooption"
	"github.com/tomasbasham/cli-runtime/printer"
	"github.com/tomasbasham/cli-runtime/templates"
)

var (
	rootLong = templates.LongDesc(`
		Accept JPEG uploads from mobile clients and store them in an object
		storage bucket, either by proxying the bytes or by issuing a short-lived
		pre-signed upload URL.`)

	rootExamples = templates.Examples(`
		# Run the HTTP service
		imgup serve

		# Upload a file straight to the configured bucket
		imgup put ./cat.jpg`)

	// Injected at build time using ldflags.
	version = ""
	commit  = ""
)

// ImgupOptions defines the options for the `imgup` command.
type ImgupOptions struct {
	iooption.IOStreams
}

// NewImgupOptions provides an initialised ImgupOptions instance.
func NewImgupOptions(streams iooption.IOStreams) *ImgupOptions {
	return &ImgupOptions{
		IOStreams: streams,
	}
}

// NewRootCommand creates the `imgup` command with default arguments.
func NewRootCommand() *cobra.Command {
	options := NewImgupOptions(iooption.IOStreams{
		In:     os.Stdin,
		Out:    os.Stdout,
		ErrOut: os.Stderr,
	})

	return NewRootCommandWithArgs(options)
}

// NewRootCommandWithArgs creates the `imgup` command and its nested
// children.
func NewRootCommandWithArgs(o *ImgupOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:                   "imgup [command]",
		Version:               versionInfo(),
		DisableFlagsInUseLine: true,
		Short:                 "Image upload intake service",
		Long:                  rootLong,
		Example:               rootExamples,
		SilenceErrors:         true,
		SilenceUsage:          true,
	}

	printerOpts := printer.WarningPrinterOptions{Color: true}
	printer := printer.NewWarningPrinter(o.ErrOut, printerOpts)
	cmd.SetGlobalNormalizationFunc(cliflag.WarnWordSepNormalizeFunc(printer))

	cmd.AddCommand(NewServeCommand(NewServeOptions(o.IOStreams)))
	cmd.AddCommand(NewPutCommand(NewPutOptions(o.IOStreams)))

	// The global normalisation function ensures that all flags specified meet
	// the desired format, changing users' input if necessary.
	cmd.SetGlobalNormalizationFunc(cliflag.WordSepNormalizeFunc())

	return cmd
}

func versionInfo() string {
	if version == "" {
		return ""
	}
	return fmt.Sprintf("%s (commit: %s)", version, commit)
}
