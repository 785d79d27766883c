package staging

import (
	"context"
	"log"
	"os"
	"path/filepath"
	"strings"
	"time"
)

const (
	DefaultStagedFileTTL   = time.Hour
	DefaultJanitorInterval = 15 * time.Minute
)

// StartJanitor removes staged files left behind by a crashed process.
func (s *Stager) StartJanitor(ctx context.Context, interval, ttl time.Duration) {
	if interval <= 0 {
		interval = DefaultJanitorInterval
	}
	if ttl <= 0 {
		ttl = DefaultStagedFileTTL
	}
	go s.cleanupLoop(ctx, interval, ttl)
}

func (s *Stager) cleanupLoop(ctx context.Context, interval, ttl time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := s.cleanupExpired(time.Now().Add(-ttl)); err != nil {
				log.Printf("cleanup staged files error: %v", err)
			}
		}
	}
}

// cleanupExpired deletes staged files modified before cutoff and returns how many were removed.
func (s *Stager) cleanupExpired(cutoff time.Time) (int, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return 0, err
	}
	removed := 0
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasPrefix(entry.Name(), stagePrefix) {
			continue
		}
		info, err := entry.Info()
		if err != nil {
			continue
		}
		if info.ModTime().After(cutoff) {
			continue
		}
		path := filepath.Join(s.dir, entry.Name())
		if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
			log.Printf("remove staged file %s failed: %v", path, err)
			continue
		}
		removed++
	}
	return removed, nil
}
