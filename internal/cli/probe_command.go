package cli

import (
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"

	"resono.click/internal/decode"
	"resono.click/internal/fs"
)

// newProbeCommand creates the probe subcommand
func newProbeCommand() *cobra.Command {
	probeCmd := &cobra.Command{
		Use:   "probe [file]",
		Short: "Inspect a file and the available decode paths",
		Long: `Inspect an audio file without playing it.

Reports which decoder would handle the file, its stream parameters when a
native decoder is available, and whether the external decoder binary is
usable as a fallback.

Examples:
  resono probe song.wav
  resono probe song.flac`,
		Args: cobra.ExactArgs(1),
		RunE: runProbe,
	}

	return probeCmd
}

func runProbe(cmd *cobra.Command, args []string) error {
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
	resolved, err := resolver.Resolve(args[0])
	if err != nil {
		return err
	}

	cmd.Printf("file: %s\n", resolved)

	registry := decode.NewDefaultRegistry()
	data, nativeErr := registry.DecodeFile(fsys, resolved)
	if nativeErr == nil {
		cmd.Printf("decoder: native\n")
		cmd.Printf("channels: %d\n", data.Channels)
		cmd.Printf("sample_rate: %d\n", data.SampleRate)
		cmd.Printf("format: %s\n", data.Format)
		cmd.Printf("frames: %d\n", data.Frames())
		return nil
	}

	slog.Debug("native decode unavailable", "path", resolved, "error", nativeErr)
	cmd.Printf("decoder: external (%s)\n", cfg.FFmpegBinary)

	adapter := decode.NewAdapter(decode.AdapterConfig{Binary: cfg.FFmpegBinary})
	if err := adapter.Probe(); err != nil {
		cmd.Printf("external decoder: unavailable (%v)\n", err)
		return fmt.Errorf("no usable decoder for %s", resolved)
	}

	cmd.Printf("external decoder: ok\n")
	cmd.Printf("output: %d ch, %d Hz, s16le\n", adapter.Channels(), adapter.SampleRate())
	return nil
}
