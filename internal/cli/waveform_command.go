package cli

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"resono.click/internal/decode"
	"resono.click/internal/fs"
	"resono.click/internal/waveform"
)

// newWaveformCommand creates the waveform subcommand
func newWaveformCommand() *cobra.Command {
	var buckets int

	waveformCmd := &cobra.Command{
		Use:   "waveform [file]",
		Short: "Print the amplitude envelope of a track",
		Long: `Decode a track fully and print its fixed-resolution amplitude
envelope as one glyph per bucket.

Examples:
  resono waveform song.wav
  resono waveform --buckets 80 song.flac`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runWaveform(cmd, args[0], buckets)
		},
	}

	waveformCmd.Flags().IntVar(&buckets, "buckets", 80, "Envelope resolution")

	return waveformCmd
}

func runWaveform(cmd *cobra.Command, path string, buckets int) error {
	cli := cliFromContext(cmd.Context())
	if cli == nil {
		return fmt.Errorf("CLI instance not found in context")
	}

	cfg, err := loadAndValidateConfig(cmd, cli)
	if err != nil {
		return err
	}

	fsys := fs.NewDefaultFactory().Production()
	resolver := decode.NewFileResolver(fsys)
	resolved, err := resolver.Resolve(path)
	if err != nil {
		return err
	}

	// Native decoders first, external adapter as fallback
	var source waveform.Source
	registry := decode.NewDefaultRegistry()
	if _, nativeErr := registry.DecodeFile(fsys, resolved); nativeErr == nil {
		source = registrySource{fs: fsys, registry: registry, path: resolved}
	} else {
		source = waveform.AdapterSource{
			Adapter: decode.NewAdapter(decode.AdapterConfig{Binary: cfg.FFmpegBinary}),
		}
	}

	generator := waveform.New(waveform.Config{Buckets: buckets}, source, nil)
	done := make(chan struct{})
	defer close(done)
	go generator.Run(done)

	env, err := generator.Generate(cmd.Context(), resolved, resolved)
	if err != nil {
		return err
	}

	var b strings.Builder
	for _, p := range env.Peaks {
		b.WriteRune(glyphFor(p))
	}
	cmd.Printf("%s\n%s\n", resolved, b.String())
	return nil
}
