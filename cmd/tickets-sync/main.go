package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"boxoffice/backend/internal/config"
	"boxoffice/backend/internal/db"
	"boxoffice/backend/internal/logging"
	"boxoffice/backend/internal/productsync"
	"boxoffice/backend/internal/repository"
	"boxoffice/backend/internal/ticketing"
)

type syncOutput struct {
	EventID int64               `json:"eventId"`
	Result  *productsync.Result `json:"result,omitempty"`
	Error   string              `json:"error,omitempty"`
}

func main() {
	timeoutFlag := flag.Duration("timeout", time.Minute, "overall sync timeout")
	flag.Parse()
	if flag.NArg() < 1 {
		fmt.Fprintln(os.Stderr, "usage: tickets-sync [-timeout 1m] <event-id>[,<event-id>...] ...")
		os.Exit(2)
	}
	eventIDs, err := parseEventIDs(flag.Args())
	if err != nil {
		fmt.Fprintf(os.Stderr, "invalid event id: %v\n", err)
		os.Exit(2)
	}

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config error: %v", err)
	}
	logger, cleanup, err := logging.New(cfg.Logging, "tickets-sync")
	if err != nil {
		log.Fatalf("log error: %v", err)
	}
	defer func() {
		_ = cleanup()
	}()

	ctx, cancel := context.WithTimeout(context.Background(), *timeoutFlag)
	defer cancel()
	pool, err := db.NewPool(ctx, cfg.DatabaseURL)
	if err != nil {
		logger.Error("db error", "error", err)
		os.Exit(1)
	}
	defer pool.Close()

	repo := repository.New(pool)
	tickets := ticketing.NewCollections(repo.Meta(), logger)
	syncer := productsync.New(tickets, repo.Meta(), repo.Commerce(), logger, nil)

	failed := false
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	for _, eventID := range eventIDs {
		out := syncOutput{EventID: eventID}
		res, err := syncer.Sync(productsync.WithGuard(ctx), eventID)
		if err != nil {
			failed = true
			out.Error = err.Error()
			logger.Error("sync_failed", "event_id", eventID, "error", err)
		} else {
			out.Result = &res
		}
		_ = enc.Encode(out)
	}
	if failed {
		os.Exit(1)
	}
}

// parseEventIDs accepts ids as separate arguments or comma separated,
// dropping duplicates.
func parseEventIDs(args []string) ([]int64, error) {
	seen := map[int64]struct{}{}
	var ids []int64
	for _, arg := range args {
		for _, part := range strings.Split(arg, ",") {
			part = strings.TrimSpace(part)
			if part == "" {
				continue
			}
			id, err := strconv.ParseInt(part, 10, 64)
			if err != nil || id <= 0 {
				return nil, fmt.Errorf("%q", part)
			}
			if _, ok := seen[id]; ok {
				continue
			}
			seen[id] = struct{}{}
			ids = append(ids, id)
		}
	}
	if len(ids) == 0 {
		return nil, fmt.Errorf("no ids given")
	}
	return ids, nil
}
