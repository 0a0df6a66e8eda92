package main

import (
	"context"
	"encoding/json"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/guardian/toxfilter/internal/audit"
	"github.com/guardian/toxfilter/internal/classify"
	"github.com/guardian/toxfilter/internal/dedupe"
	"github.com/guardian/toxfilter/internal/messaging"
	"github.com/guardian/toxfilter/internal/metrics"
	"github.com/guardian/toxfilter/internal/moderation"
	"github.com/guardian/toxfilter/internal/pipeline"
)

// messageTimeout bounds one full evaluation (scoring + actions) so a
// slow or hung message cannot stall the workers indefinitely.
const messageTimeout = 15 * time.Second

func main() {
	log.Println("Starting toxfilter moderation service...")

	// --- Policy configuration (static for the process lifetime) ---
	policy := moderation.DefaultPolicyConfig()
	if v := os.Getenv("TOXICITY_THRESHOLD"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil && f > 0 && f <= 1 {
			policy.DefaultThreshold = f
		} else {
			log.Fatalf("invalid TOXICITY_THRESHOLD %q", v)
		}
	}
	if v := os.Getenv("TOXIC_CATEGORIES"); v != "" {
		policy.Categories = nil
		for _, c := range strings.Split(v, ",") {
			if c = strings.TrimSpace(c); c != "" {
				policy.Categories = append(policy.Categories, strings.ToLower(c))
			}
		}
	}
	if v := os.Getenv("CATEGORY_THRESHOLDS"); v != "" {
		overrides, err := moderation.ParseThresholds(v)
		if err != nil {
			log.Fatalf("invalid CATEGORY_THRESHOLDS: %v", err)
		}
		policy.Thresholds = overrides
	}

	matcher := moderation.DefaultMatcher()
	if v := os.Getenv("BANNED_WORDS"); v != "" {
		matcher = moderation.NewMatcher(strings.Split(v, ","))
	}
	engine := moderation.NewEngine(policy)

	workerPoolSize := 64
	if v := os.Getenv("WORKER_POOL_SIZE"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			workerPoolSize = n
		}
	}

	// --- Classifier ---
	// A failed model init is a degraded mode, not a fatal error: the
	// pipeline falls back to lexical-only moderation.
	classifyConfig := classify.DefaultClientConfig()
	if v := os.Getenv("MODEL_URL"); v != "" {
		classifyConfig.BaseURL = v
	}
	if v := os.Getenv("DETOXIFY_MODEL"); v != "" {
		classifyConfig.Model = v
	}

	initCtx, cancelInit := context.WithTimeout(context.Background(), 10*time.Second)
	var scorer pipeline.Scorer
	classifier, err := classify.NewClient(initCtx, classifyConfig)
	cancelInit()
	if err != nil {
		log.Printf("classifier init failed, running lexical-only: %v", err)
	} else {
		scorer = classifier
	}

	// --- Audit log (Postgres, with in-memory fallback) ---
	var auditLog audit.Log
	var pgLog *audit.PostgresLog
	databaseURL := os.Getenv("DATABASE_URL")
	if databaseURL != "" {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		pgLog, err = audit.OpenPostgres(ctx, databaseURL)
		cancel()
		if err != nil {
			log.Printf("postgres unavailable, audit log is in-memory only: %v", err)
		}
	} else {
		log.Printf("DATABASE_URL not set, audit log is in-memory only")
	}
	if pgLog != nil {
		auditLog = pgLog
	} else {
		auditLog = audit.NewMemoryLog()
	}

	// --- Redis (seen-message dedupe) ---
	redisAddr := "localhost:6379"
	if v := os.Getenv("REDIS_ADDR"); v != "" {
		redisAddr = v
	}
	rdb := redis.NewClient(&redis.Options{Addr: redisAddr})
	pingCtx, cancelPing := context.WithTimeout(context.Background(), 5*time.Second)
	if err := rdb.Ping(pingCtx).Err(); err != nil {
		log.Printf("redis unavailable, duplicate events may be re-moderated: %v", err)
	}
	cancelPing()
	guard := dedupe.NewGuard(rdb)

	// --- NATS ---
	natsConfig := messaging.DefaultConfig()
	if v := os.Getenv("NATS_URL"); v != "" {
		natsConfig.URL = v
	}
	natsClient, err := messaging.NewClient(natsConfig)
	if err != nil {
		log.Fatalf("failed to connect to NATS: %v", err)
	}

	pipe := pipeline.New(matcher, engine, scorer, auditLog, natsClient)

	// Bounded worker semaphore: each inbound event is handled in its own
	// goroutine so one slow message never blocks unrelated ones, while
	// the pool caps concurrent evaluations.
	workers := make(chan struct{}, workerPoolSize)

	err = natsClient.SubscribeMessages(func(data []byte) {
		var msg pipeline.Message
		if err := json.Unmarshal(data, &msg); err != nil {
			log.Printf("[moderator] failed to unmarshal message event: %v", err)
			return
		}

		workers <- struct{}{}
		go func() {
			defer func() { <-workers }()

			ctx, cancel := context.WithTimeout(context.Background(), messageTimeout)
			defer cancel()

			if !guard.FirstSeen(ctx, msg.ChatID, msg.MessageID) {
				metrics.MessagesEvaluated.WithLabelValues("skipped").Inc()
				return
			}

			outcome, err := pipe.ProcessMessage(ctx, msg)
			if err != nil {
				log.Printf("[moderator] chat=%s msg=%s: %v", msg.ChatID, msg.MessageID, err)
			}
			if outcome != nil {
				publishVerdict(natsClient, msg, outcome)
			}
		}()
	})
	if err != nil {
		log.Fatalf("failed to subscribe to chat messages: %v", err)
	}

	// --- Metrics endpoint ---
	metricsAddr := ":9091"
	if v := os.Getenv("METRICS_ADDR"); v != "" {
		metricsAddr = v
	}
	go func() {
		mux := http.NewServeMux()
		mux.Handle("/metrics", metrics.Handler())
		if err := http.ListenAndServe(metricsAddr, mux); err != nil && err != http.ErrServerClosed {
			log.Printf("metrics server error: %v", err)
		}
	}()

	log.Printf("toxfilter moderation service running")
	log.Printf("  nats_url:       %s", natsConfig.URL)
	log.Printf("  redis_addr:     %s", redisAddr)
	log.Printf("  model_url:      %s (ready=%v)", classifyConfig.BaseURL, scorer != nil)
	log.Printf("  categories:     %s", strings.Join(policy.Categories, ","))
	log.Printf("  threshold:      %.2f", policy.DefaultThreshold)
	log.Printf("  worker_pool:    %d", workerPoolSize)
	log.Printf("  metrics_addr:   %s", metricsAddr)
	log.Printf("  audit_backend:  %s", auditBackend(pgLog))

	// Graceful shutdown.
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigCh
	log.Printf("received signal %v, shutting down...", sig)

	natsClient.Close()
	rdb.Close()
	if pgLog != nil {
		pgLog.Close()
	}
}

// publishVerdict emits the moderation outcome for observers of the chat.
func publishVerdict(client *messaging.Client, msg pipeline.Message, outcome *pipeline.Outcome) {
	event := map[string]interface{}{
		"eval_id":    outcome.EvalID,
		"chat_id":    msg.ChatID,
		"message_id": msg.MessageID,
		"sender_id":  msg.SenderID,
		"reason":     string(outcome.Verdict.Reason),
		"detail":     outcome.Verdict.Detail,
		"recorded":   outcome.Recorded,
		"deleted":    outcome.Deleted,
		"warned":     outcome.Warned,
	}
	data, err := json.Marshal(event)
	if err != nil {
		log.Printf("[moderator] failed to marshal verdict event: %v", err)
		return
	}
	if err := client.PublishVerdict(msg.ChatID, data); err != nil {
		log.Printf("[moderator] failed to publish verdict: %v", err)
	}
}

func auditBackend(pg *audit.PostgresLog) string {
	if pg != nil {
		return "postgres"
	}
	return "memory"
}
