package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"snpublisher/pkg/store"
)

var (
	queueContentType string
	queueMediaType   string
	queueCaption     string
	queueMedia       string
	queueLocation    string
	queuePublishAt   string
)

// queueCmd groups content queue operations
var queueCmd = &cobra.Command{
	Use:   "queue",
	Short: "Manage the content queue",
}

// queueAddCmd enqueues one content item
var queueAddCmd = &cobra.Command{
	Use:   "add",
	Short: "Add a content item to the queue",
	Example: `  # Schedule a photo post for immediate publication
  snpublisher queue add --media photo.jpg --caption "hello"

  # Schedule a story for a specific time
  snpublisher queue add --type story --media story.jpg --at "2026-09-01T10:00:00Z"`,
	RunE: runQueueAdd,
}

// queueStatusCmd prints item counts per status
var queueStatusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show queue item counts by status",
	RunE:  runQueueStatus,
}

func init() {
	rootCmd.AddCommand(queueCmd)
	queueCmd.AddCommand(queueAddCmd)
	queueCmd.AddCommand(queueStatusCmd)

	queueCmd.PersistentFlags().StringVar(&databasePath, "database", "", "content queue database path")

	queueAddCmd.Flags().StringVar(&queueContentType, "type", "post", "content type (post, story)")
	queueAddCmd.Flags().StringVar(&queueMediaType, "media-type", "photo", "media type (photo, video)")
	queueAddCmd.Flags().StringVar(&queueCaption, "caption", "", "caption text")
	queueAddCmd.Flags().StringVar(&queueMedia, "media", "", "comma-separated media file paths")
	queueAddCmd.Flags().StringVar(&queueLocation, "location", "", "location id")
	queueAddCmd.Flags().StringVar(&queuePublishAt, "at", "", "publish time (RFC3339, default now)")
	queueAddCmd.MarkFlagRequired("media")
}

func runQueueAdd(cmd *cobra.Command, args []string) error {
	cfg, _, err := loadConfigAndLogger()
	if err != nil {
		return err
	}
	if databasePath != "" {
		cfg.Storage.DatabasePath = databasePath
	}

	publishAt := time.Now()
	if queuePublishAt != "" {
		publishAt, err = time.Parse(time.RFC3339, queuePublishAt)
		if err != nil {
			return fmt.Errorf("invalid --at value: %w", err)
		}
	}

	queue, err := store.Open(cfg.Storage.DatabasePath)
	if err != nil {
		return fmt.Errorf("failed to open content queue: %w", err)
	}
	defer queue.Close()

	id, err := queue.Enqueue(cmd.Context(), &store.ContentItem{
		ContentType: queueContentType,
		MediaType:   queueMediaType,
		Caption:     queueCaption,
		MediaPaths:  queueMedia,
		LocationID:  queueLocation,
		PublishAt:   publishAt,
	})
	if err != nil {
		return fmt.Errorf("failed to enqueue content: %w", err)
	}

	fmt.Printf("Enqueued content %d for %s\n", id, publishAt.Format(time.RFC3339))
	return nil
}

func runQueueStatus(cmd *cobra.Command, args []string) error {
	cfg, _, err := loadConfigAndLogger()
	if err != nil {
		return err
	}
	if databasePath != "" {
		cfg.Storage.DatabasePath = databasePath
	}

	queue, err := store.Open(cfg.Storage.DatabasePath)
	if err != nil {
		return fmt.Errorf("failed to open content queue: %w", err)
	}
	defer queue.Close()

	counts, err := queue.CountByStatus(cmd.Context())
	if err != nil {
		return fmt.Errorf("failed to count queue items: %w", err)
	}

	if len(counts) == 0 {
		fmt.Println("Queue is empty")
		return nil
	}
	for _, status := range []string{store.StatusPending, store.StatusPublished, store.StatusFailed} {
		if count, ok := counts[status]; ok {
			fmt.Printf("  %-10s %d\n", status, count)
		}
	}
	return nil
}
