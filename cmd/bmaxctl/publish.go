package main

import (
	"fmt"
	"os"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/Adithya-Monish-Kumar-K/bmax-search/internal/ingestion"
	"github.com/Adithya-Monish-Kumar-K/bmax-search/internal/ingestion/publisher"
	"github.com/Adithya-Monish-Kumar-K/bmax-search/pkg/kafka"
	"github.com/Adithya-Monish-Kumar-K/bmax-search/pkg/postgres"
)

func newPublishCmd() *cobra.Command {
	var topic string
	cmd := &cobra.Command{
		Use:   "publish <documents.jsonl>...",
		Short: "Publish JSON lines documents to the ingest topic",
		Long: `Publish sends each document to Kafka the way the ingestion service does,
recording it as PENDING in PostgreSQL when postgres is enabled. Running
searchers index the documents as they consume the topic.`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			if topic == "" {
				topic = cfg.Kafka.Topics.DocumentIngest
			}

			var statusDB publisher.StatusStore
			if cfg.Postgres.Enabled {
				db, err := postgres.New(cfg.Postgres)
				if err != nil {
					return err
				}
				defer db.Close()
				if err := publisher.EnsureSchema(cmd.Context(), db.DB); err != nil {
					return err
				}
				statusDB = db.DB
			}
			producer := kafka.NewProducer(cfg.Kafka, topic)
			defer producer.Close()
			pub := publisher.New(statusDB, producer)

			var total int
			for _, path := range args {
				f, err := os.Open(path)
				if err != nil {
					return err
				}
				err = readDocuments(f, func(req *ingestion.IngestRequest) error {
					if _, err := pub.Ingest(cmd.Context(), req); err != nil {
						return err
					}
					total++
					return nil
				})
				f.Close()
				if err != nil {
					return fmt.Errorf("%s: %w", path, err)
				}
			}
			fmt.Fprintf(cmd.OutOrStdout(), "published %s documents to %s\n", humanize.Comma(int64(total)), topic)
			return nil
		},
	}
	cmd.Flags().StringVar(&topic, "topic", "", "topic (defaults to kafka.topics.documentIngest)")
	return cmd
}
