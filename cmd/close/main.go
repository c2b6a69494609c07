package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"strings"
	"time"

	"github.com/ankit/closepilot/internal/config"
	"github.com/ankit/closepilot/internal/crm"
	"github.com/ankit/closepilot/internal/docgen"
	"github.com/ankit/closepilot/internal/domain"
	"github.com/ankit/closepilot/internal/esign"
	"github.com/ankit/closepilot/internal/history"
	"github.com/ankit/closepilot/internal/llm"
	"github.com/ankit/closepilot/internal/logger"
	"github.com/ankit/closepilot/internal/registry"
	"github.com/ankit/closepilot/internal/service"
	"github.com/ankit/closepilot/internal/storage"
)

func main() {
	var (
		configPath = flag.String("config", os.Getenv("CONFIG_PATH"), "Path to config file")
		dealList   = flag.String("deals", "", "Comma-separated opportunity ids to close")
		list       = flag.Bool("list", false, "List open opportunities and exit")
		envelopeID = flag.String("envelope", "", "Print the status of an envelope and exit")
		templateID = flag.String("template", "", "Override the configured envelope template id")
		signerRole = flag.String("role", "", "Override the configured signer role name")
		timeout    = flag.Duration("timeout", 15*time.Minute, "Overall batch timeout")
	)
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	if err := cfg.Validate(); err != nil {
		log.Fatalf("Invalid config: %v", err)
	}

	appLogger := logger.NewDefault()
	defer logger.Sync()
	logger.SetDefaultLogger(appLogger)

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	if *envelopeID != "" {
		status, err := esign.NewClient(cfg.DocuSign).GetEnvelopeStatus(ctx, *envelopeID)
		if err != nil {
			log.Fatalf("Failed to fetch envelope status: %v", err)
		}
		fmt.Printf("Envelope %s: %s\n", *envelopeID, status)
		return
	}

	crmClient := crm.NewClient(cfg.Salesforce)
	if err := crmClient.Login(ctx); err != nil {
		appLogger.WithError(err).Fatal("Failed to authenticate with CRM")
	}

	if *list {
		listOpportunities(ctx, crmClient)
		return
	}

	dealIDs := splitDeals(*dealList)
	if len(dealIDs) == 0 {
		fmt.Fprintln(os.Stderr, "Usage: close -deals <opp_id>[,<opp_id>...] | close -list | close -envelope <id>")
		os.Exit(2)
	}

	archive, err := storage.NewArchive(&cfg.Storage)
	if err != nil {
		appLogger.WithError(err).Fatal("Failed to initialize contract archive")
	}

	jobRegistry := registry.New(appLogger)
	closingService := service.NewClosingService(
		jobRegistry,
		crmClient,
		llm.NewDrafter(&cfg.LLM),
		esign.NewClient(cfg.DocuSign),
		docgen.RenderSOW,
		history.NewLedger(cfg.Ledger.Path),
		archive,
		cfg.DocuSign,
		cfg.Closing,
		appLogger,
	)

	jobID, err := closingService.StartBatch(ctx, service.BatchRequest{
		DealIDs:    dealIDs,
		TemplateID: *templateID,
		SignerRole: *signerRole,
	})
	if err != nil {
		appLogger.WithError(err).Fatal("Failed to start closing batch")
	}
	fmt.Printf("Started job %s for %d deal(s)\n", jobID, len(dealIDs))

	job := pollUntilDone(ctx, jobRegistry, jobID)
	printSummary(job)
}

func splitDeals(s string) []string {
	var ids []string
	for _, part := range strings.Split(s, ",") {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			ids = append(ids, trimmed)
		}
	}
	return ids
}

func listOpportunities(ctx context.Context, crmClient *crm.Client) {
	opportunities, err := crmClient.ListOpenOpportunities(ctx)
	if err != nil {
		log.Fatalf("Failed to list opportunities: %v", err)
	}
	if len(opportunities) == 0 {
		fmt.Println("No open opportunities")
		return
	}
	for _, opp := range opportunities {
		fmt.Printf("%-18s  %-40s  %12.2f  %s\n", opp.ID, opp.Name, opp.Amount, opp.Stage)
	}
}

func pollUntilDone(ctx context.Context, reg *registry.Registry, jobID string) domain.Job {
	ticker := time.NewTicker(2 * time.Second)
	defer ticker.Stop()

	var lastStep string
	for {
		job, ok := reg.Snapshot(jobID)
		if ok && job.CurrentStep != lastStep {
			fmt.Printf("  [%d/%d] %s\n", job.Completed, job.Total, job.CurrentStep)
			lastStep = job.CurrentStep
		}
		if ok && job.Status == domain.JobStatusCompleted {
			return job
		}
		select {
		case <-ctx.Done():
			fmt.Fprintln(os.Stderr, "Timed out waiting for batch to finish")
			return job
		case <-ticker.C:
		}
	}
}

func printSummary(job domain.Job) {
	fmt.Printf("\nJob %s: %d/%d deals processed\n", job.ID, job.Completed, job.Total)
	for dealID, result := range job.Results {
		fmt.Printf("  %s: %s\n", dealID, result)
	}
	if len(job.FinishedDeals) > 0 {
		fmt.Printf("Sent for signature: %s\n", strings.Join(job.FinishedDeals, ", "))
	}
}
