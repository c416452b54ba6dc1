package main

import (
	"context"
	"log"
	"time"

	"golang.org/x/exp/rand"

	"messengerBack/internal/services"
)

const (
	tokenCleanerTimeout = 1 * time.Minute
	tokenCleanerJitter  = 5 * time.Minute
)

// startTokenCleaner drops device tokens not refreshed for ttlDays, once per
// interval. The first run waits a random delay of up to tokenCleanerJitter.
func startTokenCleaner(ctx context.Context, svc *services.NotificationService, ttlDays int, interval time.Duration, infoLog, errorLog *log.Logger) {
	if svc == nil || ttlDays <= 0 {
		return
	}

	go func() {
		runOnce := func() {
			runCtx, cancel := context.WithTimeout(ctx, tokenCleanerTimeout)
			removed, err := svc.PurgeStaleTokens(runCtx, time.Now().AddDate(0, 0, -ttlDays))
			cancel()
			if err != nil {
				if errorLog != nil {
					errorLog.Printf("token cleaner: failed to purge stale tokens: %v", err)
				}
			} else if removed > 0 && infoLog != nil {
				infoLog.Printf("token cleaner: removed %d stale device tokens", removed)
			}
		}

		delay := time.Duration(rand.Int63n(int64(tokenCleanerJitter)))
		select {
		case <-ctx.Done():
			return
		case <-time.After(delay):
		}
		runOnce()

		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				runOnce()
			}
		}
	}()
}
