package cmd

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/kozaktomas/faceid/internal/enroll"
	"github.com/kozaktomas/faceid/internal/gallery"
)

var enrollCmd = &cobra.Command{
	Use:   "enroll <name>",
	Short: "Enroll a face sample for an identity",
	Long: `Enroll a face sample under the given name. The sample comes either from
an image file, which is sent to the face extractor, or from a precomputed
embedding. Enrolling an existing name adds another sample.

Examples:
  # Enroll from a photo at level 2 with login credentials
  faceid enroll "Alice Smith" --image alice.jpg --level 2 --email alice@example.com --password s3cret!

  # Enroll a precomputed embedding
  faceid enroll bob --embedding 0.12,-0.4,0.9`,
	Args: cobra.ExactArgs(1),
	RunE: runEnroll,
}

func init() {
	rootCmd.AddCommand(enrollCmd)

	enrollCmd.Flags().Int("level", 1, "Access level (1-3)")
	enrollCmd.Flags().String("image", "", "Path to an image containing the face")
	enrollCmd.Flags().StringSlice("embedding", nil, "Comma-separated embedding components")
	enrollCmd.Flags().String("email", "", "Login email")
	enrollCmd.Flags().String("password", "", "Login password")
}

// parseEmbedding converts flag values into an embedding.
func parseEmbedding(values []string) (gallery.Embedding, error) {
	e := make(gallery.Embedding, 0, len(values))
	for i, v := range values {
		f, err := strconv.ParseFloat(strings.TrimSpace(v), 32)
		if err != nil {
			return nil, fmt.Errorf("embedding component %d: %w", i, err)
		}
		e = append(e, float32(f))
	}
	return e, nil
}

// probeSource reads exactly one of --image and --embedding.
func probeSource(cmd *cobra.Command) (image []byte, embedding gallery.Embedding, err error) {
	imagePath := mustFlag(cmd.Flags().GetString, "image")
	values := mustFlag(cmd.Flags().GetStringSlice, "embedding")

	if (imagePath == "") == (len(values) == 0) {
		return nil, nil, fmt.Errorf("exactly one of --image or --embedding is required")
	}
	if imagePath != "" {
		data, err := os.ReadFile(imagePath)
		if err != nil {
			return nil, nil, fmt.Errorf("reading image: %w", err)
		}
		return data, nil, nil
	}
	embedding, err = parseEmbedding(values)
	return nil, embedding, err
}

func runEnroll(cmd *cobra.Command, args []string) error {
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

	image, embedding, err := probeSource(cmd)
	if err != nil {
		return err
	}

	store, err := openStore(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer store.Close(ctx)

	svc := enroll.NewService(store, newExtractor(cfg), enroll.Options{BcryptCost: cfg.Auth.BcryptCost, Logger: logger})
	req := enroll.Request{
		Name:      args[0],
		Level:     gallery.Level(mustFlag(cmd.Flags().GetInt, "level")),
		Embedding: embedding,
		Email:     mustFlag(cmd.Flags().GetString, "email"),
		Password:  mustFlag(cmd.Flags().GetString, "password"),
	}

	var res enroll.Result
	if image != nil {
		res, err = svc.EnrollImage(ctx, req, image)
	} else {
		res, err = svc.Enroll(ctx, req)
	}
	if err != nil {
		return fmt.Errorf("enrolling %s: %w", args[0], err)
	}

	verb := "Added sample to"
	if res.Created {
		verb = "Enrolled"
	}
	fmt.Printf("%s %s (id %s, level %d, %d samples)\n",
		verb, res.Identity.Name, res.Identity.ID, res.Identity.Level, res.Identity.Samples)
	return nil
}
