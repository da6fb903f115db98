package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"agentlink/internal/client"
	"agentlink/internal/config"
	"agentlink/internal/domain"

	"github.com/joho/godotenv"
)

func main() {
	_ = godotenv.Load()
	cfg := config.LoadConfig()

	var (
		userID        = flag.String("user", "", "customer user ID (required)")
		departmentID  = flag.String("department", "", "support department ID (required)")
		categoryID    = flag.String("category", "", "category ID (required)")
		subCategoryID = flag.String("subcategory", "", "sub-category ID (required)")
		categoryTitle = flag.String("title", "", "category display title, e.g. Bitcoin (required)")
		amount        = flag.Int("amount", 0, "trade amount in dollars (required)")
		iconPath      = flag.String("icon", "", "path to the category icon image (required)")
	)
	flag.Parse()

	if *userID == "" || *categoryTitle == "" || *amount <= 0 || *iconPath == "" {
		flag.Usage()
		os.Exit(2)
	}

	icon, err := os.ReadFile(*iconPath)
	if err != nil {
		log.Fatalf("Failed to read icon %s: %v", *iconPath, err)
	}

	// Department/category/subcategory validation is the orchestrator's
	// precondition gate; empty flags surface as its error.
	req := domain.ConnectionRequest{
		DepartmentID:  *departmentID,
		CategoryID:    *categoryID,
		SubCategoryID: *subCategoryID,
	}

	wsURL := fmt.Sprintf("%s/%s/customer", cfg.ServerWSURL, *userID)
	manager := client.NewManager(wsURL, cfg.SessionToken)
	defer manager.Disconnect()

	sender := client.NewHTTPSender(cfg.APIBaseURL, cfg.SessionToken)

	orch := client.NewOrchestrator(manager, sender, client.Timings{
		AgentWait:     cfg.AgentWaitTimeout,
		BootstrapHold: cfg.BootstrapHold,
		PendingHold:   cfg.PendingChatHold,
	})
	orch.OnTransition = func(from, to client.State) {
		log.Printf("State: %s -> %s", from, to)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	outcome, err := orch.Run(ctx, req, client.Bootstrap{
		IconName:      *iconPath,
		Icon:          icon,
		Amount:        *amount,
		CategoryTitle: *categoryTitle,
	})
	if err != nil {
		log.Fatalf("Agent connection flow failed: %v", err)
	}

	if outcome.Resumed {
		log.Printf("Continuing previous chat %s", outcome.ChatID)
	} else {
		log.Printf("Connected to an agent, chat %s", outcome.ChatID)
	}
}
