package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"strings"

	"github.com/nlvegan/boekhouden_migration/config"
	"github.com/nlvegan/boekhouden_migration/migration"
)

func main() {
	businessID := flag.String("business-id", "", "Business id (uuid); required unless --listen")
	limit := flag.Int("limit", 100, "Max queue items to process in one drain")
	listen := flag.Bool("listen", false, "Run as a worker, draining on pubsub notices")
	flag.Parse()

	config.ConnectDatabaseWithRetry()
	db := config.GetDB()
	if db == nil {
		fmt.Fprintln(os.Stderr, "database not initialized")
		os.Exit(1)
	}
	logger := config.GetLogger()

	worker, err := migration.NewEnrichmentWorker(db, logger)
	if err != nil {
		fmt.Fprintf(os.Stderr, "worker init: %v\n", err)
		os.Exit(1)
	}

	ctx := context.Background()

	if *listen {
		if err := worker.Listen(ctx); err != nil {
			fmt.Fprintf(os.Stderr, "listen: %v\n", err)
			os.Exit(1)
		}
		return
	}

	if strings.TrimSpace(*businessID) == "" {
		fmt.Fprintln(os.Stderr, "--business-id is required")
		os.Exit(1)
	}
	done, err := worker.DrainPending(ctx, *businessID, *limit)
	if err != nil {
		fmt.Fprintf(os.Stderr, "drain: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("enriched %d parties\n", done)
}
