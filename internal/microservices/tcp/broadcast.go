package tcp

import (
	"fmt"
	"sync"
	"time"

	"newsdist/internal/protocol"
	"newsdist/internal/session"
)

// BroadcastResult summarizes one broadcast.
type BroadcastResult struct {
	Delivered int      `json:"delivered"`
	Failed    []string `json:"failed,omitempty"`  // names removed after a failed write
	Missing   []string `json:"missing,omitempty"` // requested names not registered
}

// Broadcast sends news to every subscriber registered at call time.
func (s *Server) Broadcast(news protocol.News) (BroadcastResult, error) {
	frame, err := protocol.EncodeNews(news)
	if err != nil {
		return BroadcastResult{}, fmt.Errorf("failed to encode news: %w", err)
	}
	return s.deliver(frame, s.registry.Snapshot(), nil), nil
}

// BroadcastTo sends news to the named subscribers registered at call time.
func (s *Server) BroadcastTo(news protocol.News, names []string) (BroadcastResult, error) {
	frame, err := protocol.EncodeNews(news)
	if err != nil {
		return BroadcastResult{}, fmt.Errorf("failed to encode news: %w", err)
	}
	targets, missing := s.registry.SnapshotNames(names)
	return s.deliver(frame, targets, missing), nil
}

// deliver writes frame to each target independently. A failed target is
// removed; the others are unaffected. The registry lock is not held here.
func (s *Server) deliver(frame []byte, targets []*session.Session, missing []string) BroadcastResult {
	start := time.Now()
	s.metrics.Broadcasts.Inc()
	defer func() { s.metrics.BroadcastDuration.Observe(time.Since(start).Seconds()) }()

	result := BroadcastResult{Missing: missing}
	var (
		mu sync.Mutex
		wg sync.WaitGroup
	)

	for _, sess := range targets {
		wg.Add(1)
		go func(sess *session.Session) {
			defer wg.Done()

			if err := sess.SendFrame(frame); err != nil {
				s.metrics.DeliveryFailures.Inc()
				s.logger.Warn("broadcast_delivery_failed",
					"client_id", sess.ID(),
					"name", sess.Name(),
					"error", err.Error(),
				)
				name := sess.Name()
				s.dropSession(sess, ReasonWriteFailed)

				mu.Lock()
				result.Failed = append(result.Failed, name)
				mu.Unlock()
				return
			}

			s.metrics.Deliveries.Inc()
			mu.Lock()
			result.Delivered++
			mu.Unlock()
		}(sess)
	}
	wg.Wait()

	s.logger.Info("broadcast_completed",
		"targets", len(targets),
		"delivered", result.Delivered,
		"failed", len(result.Failed),
		"missing", len(result.Missing),
	)
	return result
}
