package cmd

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"

	"github.com/kozaktomas/faceid/internal/enroll"
	"github.com/kozaktomas/faceid/internal/gallery"
)

var importCmd = &cobra.Command{
	Use:   "import <dir>",
	Short: "Bulk-enroll identities from a directory of photos",
	Long: `Enroll every photo found in <dir>/<name>/ under <name>. Each photo is
sent to the face extractor and becomes one sample. Photos without a face or
too close to another identity are reported and skipped.

Examples:
  # Import at level 1 with 4 parallel extractor calls
  faceid import ./people

  # Import staff at level 2
  faceid import ./staff --level 2 --concurrency 8`,
	Args: cobra.ExactArgs(1),
	RunE: runImport,
}

func init() {
	rootCmd.AddCommand(importCmd)

	importCmd.Flags().Int("level", 1, "Access level for imported identities (1-3)")
	importCmd.Flags().Int("concurrency", 4, "Number of parallel extractor calls")
	importCmd.Flags().Bool("dry-run", false, "List what would be imported without enrolling")
}

var imageExtensions = map[string]bool{
	".jpg": true, ".jpeg": true, ".png": true, ".gif": true, ".bmp": true, ".webp": true,
}

type importJob struct {
	name string
	path string
}

// collectImportJobs walks <dir>/<name>/<file> and returns one job per image.
func collectImportJobs(dir string) ([]importJob, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", dir, err)
	}

	var jobs []importJob
	for _, entry := range entries {
		if !entry.IsDir() || strings.HasPrefix(entry.Name(), ".") {
			continue
		}
		personDir := filepath.Join(dir, entry.Name())
		files, err := os.ReadDir(personDir)
		if err != nil {
			return nil, fmt.Errorf("reading %s: %w", personDir, err)
		}
		for _, f := range files {
			if f.IsDir() || !imageExtensions[strings.ToLower(filepath.Ext(f.Name()))] {
				continue
			}
			jobs = append(jobs, importJob{name: entry.Name(), path: filepath.Join(personDir, f.Name())})
		}
	}
	sort.Slice(jobs, func(i, j int) bool { return jobs[i].path < jobs[j].path })
	return jobs, nil
}

func runImport(cmd *cobra.Command, args []string) error {
	level := gallery.Level(mustFlag(cmd.Flags().GetInt, "level"))
	concurrency := mustFlag(cmd.Flags().GetInt, "concurrency")
	dryRun := mustFlag(cmd.Flags().GetBool, "dry-run")
	if concurrency < 1 {
		concurrency = 1
	}
	if !level.Enrollable() {
		return fmt.Errorf("--level must be 1, 2 or 3")
	}

	jobs, err := collectImportJobs(args[0])
	if err != nil {
		return err
	}
	if len(jobs) == 0 {
		fmt.Println("No images found")
		return nil
	}

	if dryRun {
		for _, j := range jobs {
			fmt.Printf("%s\t%s\n", j.name, j.path)
		}
		fmt.Printf("\n%d images would be imported\n", len(jobs))
		return nil
	}

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

	store, err := openStore(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer store.Close(ctx)

	ext := newExtractor(cfg)
	svc := enroll.NewService(store, ext, enroll.Options{BcryptCost: cfg.Auth.BcryptCost, Logger: logger})

	bar := progressbar.NewOptions(len(jobs),
		progressbar.OptionSetDescription("Enrolling faces"),
		progressbar.OptionShowCount(),
		progressbar.OptionShowIts(),
		progressbar.OptionSetItsString("photos"),
		progressbar.OptionShowElapsedTimeOnFinish(),
		progressbar.OptionSetPredictTime(true),
		progressbar.OptionFullWidth(),
	)

	var (
		mu         sync.Mutex
		enrolled   int
		failures   []string
		identities = make(map[string]bool)
	)
	sem := make(chan struct{}, concurrency)
	var wg sync.WaitGroup

	for _, job := range jobs {
		wg.Add(1)
		go func(j importJob) {
			defer wg.Done()
			sem <- struct{}{}
			defer func() { <-sem }()
			defer bar.Add(1)

			data, err := os.ReadFile(j.path)
			if err == nil {
				// The extractor call runs in parallel; the store serializes writes.
				var res enroll.Result
				res, err = svc.EnrollImage(ctx, enroll.Request{Name: j.name, Level: level}, data)
				if err == nil {
					mu.Lock()
					enrolled++
					identities[res.Identity.ID] = true
					mu.Unlock()
					return
				}
			}
			mu.Lock()
			failures = append(failures, fmt.Sprintf("%s: %v", j.path, err))
			mu.Unlock()
		}(job)
	}
	wg.Wait()
	bar.Finish()

	fmt.Printf("\nEnrolled %d samples for %d identities\n", enrolled, len(identities))
	if len(failures) > 0 {
		sort.Strings(failures)
		fmt.Printf("Skipped %d images:\n", len(failures))
		for _, f := range failures {
			fmt.Printf("  %s\n", f)
		}
	}
	return nil
}
