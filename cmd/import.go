package cmd

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"

	"github.com/kozaktomas/face-registry/internal/config"
	"github.com/kozaktomas/face-registry/internal/constants"
)

var importCmd = &cobra.Command{
	Use:   "import <group> <folder-path> [folder-path...]",
	Short: "Ingest images from folders into a group",
	Long: `Ingest every image from one or more folders into a group. Each image
runs through face detection; detected faces are stored under matched or
freshly minted person identities.

By default, only files in the specified folders are ingested (non-recursive).
Use -r to search recursively in subdirectories.
Supported formats: jpg, jpeg, png, webp

Example:
  face-registry import wedding-2024 /path/to/photos
  face-registry import -r wedding-2024 /path/to/photos  # recursive search
  face-registry import --mode accuracy wedding-2024 /path/to/photos`,
	Args: cobra.MinimumNArgs(2),
	RunE: runImport,
}

func init() {
	rootCmd.AddCommand(importCmd)
	importCmd.Flags().BoolP("recursive", "r", false, "Search for images recursively in subdirectories")
	importCmd.Flags().String("mode", "", "Recognition performance mode (speed, balanced, accuracy, gpu_optimized)")
	importCmd.Flags().Int("workers", constants.WorkerPoolSize, "Number of parallel ingestion workers")
}

// isImageFile checks if a file has a supported image extension
func isImageFile(name string) bool {
	ext := strings.ToLower(filepath.Ext(name))
	supported := map[string]bool{
		".jpg":  true,
		".jpeg": true,
		".png":  true,
		".webp": true,
	}
	return supported[ext]
}

// collectImageFiles gathers image paths from the given folders.
func collectImageFiles(folderPaths []string, recursive bool) ([]string, error) {
	var filePaths []string
	for _, folderPath := range folderPaths {
		info, err := os.Stat(folderPath)
		if err != nil {
			return nil, fmt.Errorf("cannot access folder %s: %w", folderPath, err)
		}
		if !info.IsDir() {
			return nil, fmt.Errorf("%s is not a directory", folderPath)
		}

		if recursive {
			err := filepath.WalkDir(folderPath, func(path string, d os.DirEntry, err error) error {
				if err != nil {
					return err
				}
				if !d.IsDir() && isImageFile(d.Name()) {
					filePaths = append(filePaths, path)
				}
				return nil
			})
			if err != nil {
				return nil, fmt.Errorf("cannot walk folder %s: %w", folderPath, err)
			}
		} else {
			entries, err := os.ReadDir(folderPath)
			if err != nil {
				return nil, fmt.Errorf("cannot read folder %s: %w", folderPath, err)
			}
			for _, entry := range entries {
				if entry.IsDir() {
					continue
				}
				if isImageFile(entry.Name()) {
					filePaths = append(filePaths, filepath.Join(folderPath, entry.Name()))
				}
			}
		}
	}
	return filePaths, nil
}

func importProgressBar(total int) *progressbar.ProgressBar {
	return progressbar.NewOptions(total,
		progressbar.OptionSetDescription("Ingesting"),
		progressbar.OptionShowCount(),
		progressbar.OptionShowIts(),
		progressbar.OptionSetItsString("files"),
		progressbar.OptionShowElapsedTimeOnFinish(),
		progressbar.OptionSetPredictTime(true),
		progressbar.OptionFullWidth(),
		progressbar.OptionSetTheme(progressbar.Theme{
			Saucer:        "=",
			SaucerHead:    ">",
			SaucerPadding: " ",
			BarStart:      "[",
			BarEnd:        "]",
		}),
	)
}

func runImport(cmd *cobra.Command, args []string) error {
	group := args[0]
	folderPaths := args[1:]
	recursive := mustGetBool(cmd, "recursive")
	workers := mustGetInt(cmd, "workers")
	if workers < 1 {
		workers = 1
	}

	cfg := config.Load()
	mode := mustGetString(cmd, "mode")
	if mode == "" {
		mode = cfg.Recognizer.Mode
	}
	opts := cfg.Options(mode)

	filePaths, err := collectImageFiles(folderPaths, recursive)
	if err != nil {
		return err
	}
	if len(filePaths) == 0 {
		fmt.Println("No image files found in the specified folders.")
		return nil
	}

	fmt.Printf("Found %d image(s) to ingest from %d folder(s)\n", len(filePaths), len(folderPaths))

	store, cleanup, err := buildStore(cfg)
	if err != nil {
		return err
	}
	defer cleanup()

	_, orch := buildOrchestrator(cfg, store)
	bar := importProgressBar(len(filePaths))

	var (
		facesStored  int
		ingestErrors []string
		mu           sync.Mutex
		wg           sync.WaitGroup
		sem          = make(chan struct{}, workers)
	)

	ctx := context.Background()
	for _, filePath := range filePaths {
		wg.Add(1)
		go func(path string) {
			defer wg.Done()
			sem <- struct{}{}
			defer func() { <-sem }()

			image, err := os.ReadFile(path)
			if err != nil {
				mu.Lock()
				ingestErrors = append(ingestErrors, fmt.Sprintf("%s: %v", filepath.Base(path), err))
				mu.Unlock()
				bar.Add(1)
				return
			}

			result, err := orch.Ingest(ctx, group, image, filepath.Base(path), opts)
			mu.Lock()
			if err != nil {
				ingestErrors = append(ingestErrors, fmt.Sprintf("%s: %v", filepath.Base(path), err))
			} else {
				facesStored += result.FacesFound
			}
			mu.Unlock()
			bar.Add(1)
		}(filePath)
	}
	wg.Wait()
	fmt.Println()

	for _, errMsg := range ingestErrors {
		fmt.Printf("Failed: %s\n", errMsg)
	}

	fmt.Printf("\nIngested %d file(s), %d face(s) stored, %d failure(s)\n",
		len(filePaths)-len(ingestErrors), facesStored, len(ingestErrors))
	return nil
}
