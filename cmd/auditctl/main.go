// auditctl is a small operator CLI for the moderation audit log. It
// prints the most recent removals for a chat, newest first.
//
//	DATABASE_URL=postgres://... auditctl -chat <chat_id> [-limit n]
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/guardian/toxfilter/internal/audit"
)

func main() {
	chatID := flag.String("chat", "", "chat ID to query (required)")
	limit := flag.Int("limit", audit.DefaultQueryLimit, "max records to print")
	flag.Parse()

	if *chatID == "" {
		flag.Usage()
		os.Exit(2)
	}

	databaseURL := os.Getenv("DATABASE_URL")
	if databaseURL == "" {
		log.Fatal("DATABASE_URL environment variable is required")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	store, err := audit.OpenPostgres(ctx, databaseURL)
	if err != nil {
		log.Fatalf("connect: %v", err)
	}
	defer store.Close()

	records, err := store.QueryRecent(ctx, *chatID, *limit)
	if err != nil {
		log.Fatalf("query: %v", err)
	}

	if len(records) == 0 {
		fmt.Printf("no removed messages for chat %s\n", *chatID)
		return
	}

	for _, r := range records {
		who := r.Username
		if who == "" {
			who = r.UserID
		}
		fmt.Printf("%d\t%s\t@%s\t%s\n", r.ID, r.CreatedAt.UTC().Format(time.RFC3339), who, r.Reason)
	}
}
