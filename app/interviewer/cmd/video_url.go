package cmd

import (
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/Soln1shko/AI-HR/internal/storage"
)

var videoURLTTL time.Duration

var videoURLCmd = &cobra.Command{
	Use:   "video-url <object>",
	Short: "Print a signed download URL for an archived answer video",
	Args:  cobra.ExactArgs(1),
	RunE:  runVideoURL,
}

func init() {
	videoURLCmd.Flags().DurationVar(&videoURLTTL, "ttl", 15*time.Minute, "how long the URL stays valid")
	rootCmd.AddCommand(videoURLCmd)
}

func runVideoURL(cmd *cobra.Command, args []string) error {
	cfg, _, err := loadConfig()
	if err != nil {
		return err
	}
	if cfg.VideoBucket == "" {
		return errors.New("video-url: VIDEO_BUCKET is not set")
	}

	ctx := cmd.Context()
	gcs, err := storage.NewGCSUploader(ctx, cfg.VideoBucket)
	if err != nil {
		return fmt.Errorf("gcs: %w", err)
	}
	defer gcs.Close()

	url, err := gcs.SignedGetURL(ctx, args[0], videoURLTTL)
	if err != nil {
		return fmt.Errorf("video-url: %w", err)
	}
	fmt.Fprintln(cmd.OutOrStdout(), url)
	return nil
}
