package cmd

import (
	"context"
	"fmt"
	"math"

	"github.com/spf13/cobra"

	"github.com/kozaktomas/faceid/internal/gallery"
)

var matchCmd = &cobra.Command{
	Use:   "match",
	Short: "Match a face against the gallery",
	Long: `Match a probe face against every enrolled identity and print the decision.

Examples:
  faceid match --image probe.jpg
  faceid match --embedding 0.12,-0.4,0.9 --threshold 0.5`,
	Args: cobra.NoArgs,
	RunE: runMatch,
}

func init() {
	rootCmd.AddCommand(matchCmd)

	matchCmd.Flags().String("image", "", "Path to an image containing the face")
	matchCmd.Flags().StringSlice("embedding", nil, "Comma-separated embedding components")
	matchCmd.Flags().Float64("threshold", 0, "Override MATCH_THRESHOLD (0 keeps the configured value)")
}

func runMatch(cmd *cobra.Command, args []string) error {
	ctx := context.Background()
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	logger, err := newLogger(cfg)
	if err != nil {
		return err
	}
	defer logger.Sync()

	image, probe, err := probeSource(cmd)
	if err != nil {
		return err
	}
	if image != nil {
		probe, err = newExtractor(cfg).Extract(ctx, image)
		if err != nil {
			return fmt.Errorf("extracting face: %w", err)
		}
	}

	store, err := openStore(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer store.Close(ctx)

	m := newMatcher(cfg)
	if t := mustFlag(cmd.Flags().GetFloat64, "threshold"); t > 0 {
		m.Threshold = t
	}

	g := store.All()
	result, err := m.Match(probe, g)
	if err != nil {
		return fmt.Errorf("matching: %w", err)
	}

	fmt.Printf("Gallery: %d identities, %d samples (%s)\n", g.Len(), g.SampleCount(), g.Metric())
	switch {
	case result.Matched:
		fmt.Printf("Matched %s at distance %.4f (level %d: %s)\n",
			result.Name(), result.Distance, result.Level, cfg.Levels.Label(int(result.Level)))
	case result.Ambiguous:
		fmt.Printf("Ambiguous: two identities within %g of distance %.4f\n", m.TieTolerance, result.Closest)
	case math.IsInf(result.Closest, 1):
		fmt.Println("No identities enrolled")
	default:
		fmt.Printf("Not recognized (closest distance %.4f, threshold %.4f, level %d)\n",
			result.Closest, m.Threshold, gallery.LevelNone)
	}
	return nil
}
