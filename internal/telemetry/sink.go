package telemetry

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog/log"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// ═══════════════════════════════════════════════════════════════════════════════
// TELEMETRY SINK - fire-and-forget event persistence
// ═══════════════════════════════════════════════════════════════════════════════
//
// The decision path calls Emit and moves on. Events flow through a
// bounded queue to a single writer goroutine; a full queue drops the
// event and bumps a counter. A broken database never propagates back
// into the evaluation loop.
//
// ═══════════════════════════════════════════════════════════════════════════════

// Event is one persisted engine event.
type Event struct {
	ID        uint   `gorm:"primaryKey"`
	Kind      string `gorm:"index"` // EVAL, SIGNAL, ENTRY, HEDGE, EXIT, SETTLEMENT, QUOTE
	MarketID  string `gorm:"index"`
	Asset     string
	Side      string
	Detail    string
	Value     float64
	CreatedAt time.Time
}

// Sink is the asynchronous writer.
type Sink struct {
	db      *gorm.DB
	queue   chan Event
	dropped atomic.Int64

	closeOnce sync.Once
	done      chan struct{}
}

// Open connects to postgres when databaseURL is set, a local sqlite
// file otherwise, and starts the writer.
func Open(databaseURL, sqlitePath string, queueSize int) (*Sink, error) {
	var dialector gorm.Dialector
	if databaseURL != "" {
		dialector = postgres.Open(databaseURL)
	} else {
		dialector = sqlite.Open(sqlitePath)
	}

	db, err := gorm.Open(dialector, &gorm.Config{Logger: logger.Default.LogMode(logger.Silent)})
	if err != nil {
		return nil, err
	}
	if err := db.AutoMigrate(&Event{}); err != nil {
		return nil, err
	}

	s := &Sink{
		db:    db,
		queue: make(chan Event, queueSize),
		done:  make(chan struct{}),
	}
	go s.run()
	log.Info().Int("queue", queueSize).Msg("telemetry sink started")
	return s, nil
}

// Emit enqueues an event without blocking. Nil-safe so a process
// running without persistence needs no guards at call sites.
func (s *Sink) Emit(ev Event) {
	if s == nil {
		return
	}
	ev.CreatedAt = time.Now()
	select {
	case s.queue <- ev:
	default:
		s.dropped.Add(1)
	}
}

// Dropped returns how many events were lost to a full queue.
func (s *Sink) Dropped() int64 {
	if s == nil {
		return 0
	}
	return s.dropped.Load()
}

// Close flushes the queue and stops the writer.
func (s *Sink) Close() {
	if s == nil {
		return
	}
	s.closeOnce.Do(func() {
		close(s.queue)
		<-s.done
	})
}

func (s *Sink) run() {
	defer close(s.done)
	for ev := range s.queue {
		if err := s.db.Create(&ev).Error; err != nil {
			// Failure isolation: log and carry on, never push back.
			log.Debug().Err(err).Str("kind", ev.Kind).Msg("telemetry write failed")
		}
	}
}
