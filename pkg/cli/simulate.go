package cli

import (
	"evraw/pkg/config"
	"evraw/pkg/history"
	"evraw/pkg/loss"
	"time"

	"github.com/spf13/cobra"
)

// ShapeFlags are the shaping flags shared by simulate and batch.
type ShapeFlags struct {
	Policy    string
	Bandwidth float64
	Chunk     float64
	Profile   string
}

func addShapeFlags(cmd *cobra.Command, flags *ShapeFlags) {
	cmd.Flags().StringVar(&flags.Policy, "policy", string(loss.TailDrop), "drop policy (taildrop|uniform)")
	cmd.Flags().Float64VarP(&flags.Bandwidth, "bandwidth", "b", config.DefaultBandwidthMbps, "bandwidth budget in Mbps")
	cmd.Flags().Float64VarP(&flags.Chunk, "chunk", "c", config.DefaultChunkMs, "chunk duration in ms")
	cmd.Flags().StringVar(&flags.Profile, "profile", "", "named profile from the config file")
}

// Config resolves the shaping configuration from environment defaults,
// the selected profile and explicit flags, in increasing priority.
func (f ShapeFlags) Config(cmd *cobra.Command, env *config.Env) (loss.Config, error) {
	cfg := loss.Config{
		Policy:        loss.TailDrop,
		BandwidthMbps: env.DefaultBandwidthMbps,
		ChunkMs:       env.DefaultChunkMs,
	}

	if f.Profile != "" {
		profile, err := env.Profile(f.Profile)
		if err != nil {
			return loss.Config{}, err
		}
		cfg = profile.Config()
	}

	if f.Profile == "" || cmd.Flags().Changed("policy") {
		policy, err := loss.ParsePolicy(f.Policy)
		if err != nil {
			return loss.Config{}, err
		}
		cfg.Policy = policy
	}
	if cmd.Flags().Changed("bandwidth") {
		cfg.BandwidthMbps = f.Bandwidth
	}
	if cmd.Flags().Changed("chunk") {
		cfg.ChunkMs = f.Chunk
	}

	return cfg, cfg.Validate()
}

// SimulateOptions holds flags for the simulate command.
type SimulateOptions struct {
	*RootOptions
	ShapeFlags
	File     string
	Output   string
	Compress bool
}

// NewSimulateCommand creates the simulate command.
func NewSimulateCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &SimulateOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:           "simulate",
		Short:         "Shape a stream to a bandwidth budget",
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSimulate(cmd, opts)
		},
	}

	cmd.Flags().StringVarP(&opts.File, "file", "f", "", "input stream")
	cmd.Flags().StringVarP(&opts.Output, "output", "o", "", "output file")
	cmd.Flags().BoolVar(&opts.Compress, "compress", false, "zstd compress the output, appending .zst when absent")
	addShapeFlags(cmd, &opts.ShapeFlags)
	_ = cmd.MarkFlagRequired("file")
	_ = cmd.MarkFlagRequired("output")

	return cmd
}

func runSimulate(cmd *cobra.Command, opts *SimulateOptions) error {
	cfg, err := opts.ShapeFlags.Config(cmd, opts.Env)
	if err != nil {
		return err
	}

	start := time.Now()

	output := opts.Output
	if opts.Compress {
		output = ensureZst(output)
	}

	header, samples, err := readStream(opts.File)
	if err != nil {
		return err
	}

	shaped, err := loss.Apply(samples, cfg)
	if err != nil {
		return err
	}

	if err := writeStream(output, header, shaped); err != nil {
		return err
	}

	printShapeSummary(cmd.OutOrStdout(), cfg, samples, shaped)

	eventsIn, markers := countSamples(samples)
	eventsOut, _ := countSamples(shaped)

	store := opts.openHistory()
	if store != nil {
		defer store.Close()
	}
	opts.saveRecord(store, history.Record{
		Command:       "simulate",
		Input:         opts.File,
		Output:        output,
		Format:        header.Format,
		EventsIn:      eventsIn,
		EventsOut:     eventsOut,
		Markers:       markers,
		DurationUs:    uint64(time.Since(start).Microseconds()),
		BandwidthMbps: cfg.BandwidthMbps,
		ChunkMs:       cfg.ChunkMs,
		Policy:        string(cfg.Policy),
	})
	return nil
}
