package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/nlvegan/boekhouden_migration/config"
	"github.com/nlvegan/boekhouden_migration/migration"
	"github.com/nlvegan/boekhouden_migration/models"
	"github.com/nlvegan/boekhouden_migration/utils"
)

func main() {
	businessID := flag.String("business-id", "", "Required: business id (uuid)")
	inputPath := flag.String("input", "", "Required: path to a JSON file with the exported mutations")
	batchSize := flag.Int("batch-size", 0, "Optional: operations per batch commit (default 25)")
	commitIntervalSec := flag.Int("commit-interval", 0, "Optional: seconds between time-based batch commits (default 50)")
	initiatedBy := flag.String("initiated-by", "cli", "Optional: who started this run, recorded on the run row")
	single := flag.Bool("single", false, "Process each mutation in its own transaction instead of a batch")
	enrich := flag.Bool("publish-enrichment", false, "Publish pubsub notices for provisional parties")
	debugLog := flag.Bool("debug-log", false, "Print the full debug trace after the run")
	flag.Parse()

	if strings.TrimSpace(*businessID) == "" {
		fmt.Fprintln(os.Stderr, "--business-id is required")
		os.Exit(1)
	}
	if strings.TrimSpace(*inputPath) == "" {
		fmt.Fprintln(os.Stderr, "--input is required")
		os.Exit(1)
	}

	raw, err := os.ReadFile(*inputPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "cannot read input: %v\n", err)
		os.Exit(1)
	}
	var mutations []models.Mutation
	if err := json.Unmarshal(raw, &mutations); err != nil {
		fmt.Fprintf(os.Stderr, "invalid input json: %v\n", err)
		os.Exit(1)
	}
	if len(mutations) == 0 {
		fmt.Fprintln(os.Stderr, "input contains no mutations")
		os.Exit(1)
	}

	validate := validator.New()
	validate.SetTagName("binding")
	for i := range mutations {
		if err := validate.Struct(&mutations[i]); err != nil {
			fmt.Fprintf(os.Stderr, "input entry %d: %v\n", i, err)
			os.Exit(1)
		}
	}

	config.ConnectDatabaseWithRetry()
	db := config.GetDB()
	if db == nil {
		fmt.Fprintln(os.Stderr, "database not initialized")
		os.Exit(1)
	}
	logger := config.GetLogger()

	business, err := models.GetBusinessById(db, *businessID)
	if err != nil {
		fmt.Fprintf(os.Stderr, "business %s: %v\n", *businessID, err)
		os.Exit(1)
	}

	ctx := context.Background()
	ctx = utils.SetBusinessIdInContext(ctx, *businessID)
	ctx = utils.SetCorrelationIdInContext(ctx, uuid.NewString())
	ctx = utils.SetInitiatedByInContext(ctx, *initiatedBy)

	// Carry the business id into every statement so the tenant guard scopes
	// the run's queries.
	db = db.WithContext(ctx)

	config.ConnectRedisWithRetry(ctx)

	var notifier migration.EnrichmentNotifier
	if *enrich {
		notifier = migration.PubSubNotifier{}
	}
	engine := migration.NewEngine(db, logger, business, notifier, config.GetRedisLock())

	if *single {
		created, failed := 0, 0
		for i := range mutations {
			res := engine.ProcessSingle(ctx, &mutations[i])
			switch res.Status {
			case models.MutationResultCreated:
				created++
			case models.MutationResultFailed:
				failed++
				fmt.Fprintf(os.Stderr, "mutation %d failed: %v\n", res.MutationID, res.Err)
			}
		}
		fmt.Printf("processed %d mutation(s): %d created, %d failed\n", len(mutations), created, failed)
		printDebugLog(engine, *debugLog)
		if failed > 0 {
			os.Exit(1)
		}
		return
	}

	opts := migration.BatchOptions{
		BatchSize:      *batchSize,
		CommitInterval: time.Duration(*commitIntervalSec) * time.Second,
	}
	run, results, err := engine.ProcessBatch(ctx, mutations, opts)
	if err != nil {
		fmt.Fprintf(os.Stderr, "run failed: %v\n", err)
		printDebugLog(engine, *debugLog)
		os.Exit(1)
	}

	fmt.Printf("run %d %s: attempted=%d created=%d duplicates=%d skipped=%d failed=%d\n",
		run.ID, run.Status, run.Attempted, run.Created, run.Duplicates, run.Skipped, run.Failed)
	for _, res := range results {
		if res.Status == models.MutationResultFailed {
			fmt.Fprintf(os.Stderr, "mutation %d failed: %v\n", res.MutationID, res.Err)
		}
	}
	printDebugLog(engine, *debugLog)
	if run.Failed > 0 {
		os.Exit(2)
	}
}

func printDebugLog(engine *migration.Engine, enabled bool) {
	if !enabled {
		return
	}
	for _, entry := range engine.DebugLog().Entries() {
		fmt.Println(entry)
	}
}
