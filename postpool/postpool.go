// Copyright 2025 Blink Labs Software
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package postpool

import (
	"fmt"
	"io"
	"log/slog"
	"slices"
	"sync"
	"time"

	"github.com/blinklabs-io/veilpost/event"
	"github.com/blinklabs-io/veilpost/ledger"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const (
	AddSubmissionEventType    event.EventType = "postpool.add"
	RemoveSubmissionEventType event.EventType = "postpool.remove"
)

type AddSubmissionEvent struct {
	ID  uuid.UUID
	Org ledger.Principal
}

type RemoveSubmissionEvent struct {
	ID uuid.UUID
}

// Submission is a pending anonymous post awaiting verification. Submissions
// are ephemeral: they are never part of queryable ledger state.
type Submission struct {
	LastSeen       time.Time
	ID             uuid.UUID
	Org            ledger.Principal
	PostCommitment ledger.Digest
	NullifierHash  ledger.Digest
	Proof          []byte
	Timestamp      uint64
}

type PostPoolConfig struct {
	PromRegistry prometheus.Registerer
	Logger       *slog.Logger
	EventBus     *event.EventBus
	// PoolCapacity bounds the number of pending submissions
	PoolCapacity int
}

// PostPool holds pending post submissions for the verifier collaborator.
// Submissions arrive via the ledger's post-submitted notifications and are
// drained through consumers.
type PostPool struct {
	config  PostPoolConfig
	metrics struct {
		submissionsProcessed prometheus.Counter
		submissionsInPool    prometheus.Gauge
	}
	logger      *slog.Logger
	eventBus    *event.EventBus
	consumers   map[uuid.UUID]*PoolConsumer
	submissions []*Submission
	done        chan struct{}
	stopOnce    sync.Once
	sync.RWMutex
	consumersMutex sync.Mutex
}

type PoolFullError struct {
	CurrentCount int
	Capacity     int
}

func (e *PoolFullError) Error() string {
	return fmt.Sprintf(
		"submission pool full: current count=%d, capacity=%d",
		e.CurrentCount,
		e.Capacity,
	)
}

func NewPostPool(config PostPoolConfig) *PostPool {
	p := &PostPool{
		eventBus:  config.EventBus,
		consumers: make(map[uuid.UUID]*PoolConsumer),
		config:    config,
		done:      make(chan struct{}),
	}
	if config.Logger == nil {
		// Create logger to throw away logs
		// We do this so we don't have to add guards around every log operation
		p.logger = slog.New(slog.NewJSONHandler(io.Discard, nil))
	} else {
		p.logger = config.Logger
	}
	// Feed the pool from ledger submission notifications
	if p.eventBus != nil {
		go p.processLedgerEvents()
	}
	// Init metrics
	promautoFactory := promauto.With(config.PromRegistry)
	p.metrics.submissionsProcessed = promautoFactory.NewCounter(
		prometheus.CounterOpts{
			Name: "veilpost_postpool_submissions_processed_total",
			Help: "total post submissions processed",
		},
	)
	p.metrics.submissionsInPool = promautoFactory.NewGauge(
		prometheus.GaugeOpts{
			Name: "veilpost_postpool_submissions",
			Help: "current count of pending post submissions",
		},
	)
	return p
}

// Stop signals consumers and the event feed to exit. Safe to call multiple
// times.
func (p *PostPool) Stop() {
	p.stopOnce.Do(func() { close(p.done) })
}

func (p *PostPool) AddConsumer() (uuid.UUID, *PoolConsumer) {
	p.consumersMutex.Lock()
	defer p.consumersMutex.Unlock()
	consumerId := uuid.New()
	consumer := newConsumer(p)
	p.consumers[consumerId] = consumer
	return consumerId, consumer
}

func (p *PostPool) RemoveConsumer(consumerId uuid.UUID) {
	p.consumersMutex.Lock()
	defer p.consumersMutex.Unlock()
	if consumer, ok := p.consumers[consumerId]; ok {
		consumer.Close()
		delete(p.consumers, consumerId)
	}
}

func (p *PostPool) Consumer(consumerId uuid.UUID) *PoolConsumer {
	p.consumersMutex.Lock()
	defer p.consumersMutex.Unlock()
	return p.consumers[consumerId]
}

func (p *PostPool) processLedgerEvents() {
	subId, evtCh := p.eventBus.Subscribe(ledger.PostSubmittedEventType)
	defer func() {
		p.eventBus.Unsubscribe(ledger.PostSubmittedEventType, subId)
	}()
	for {
		select {
		case <-p.done:
			return
		case evt, ok := <-evtCh:
			if !ok {
				return
			}
			payload, ok := evt.Data.(ledger.PostSubmittedEvent)
			if !ok {
				continue
			}
			if err := p.AddSubmission(payload); err != nil {
				p.logger.Warn(
					"failed to add submission to pool",
					"component", "postpool",
					"org", payload.Org,
					"error", err,
				)
			}
		}
	}
}

func (p *PostPool) AddSubmission(payload ledger.PostSubmittedEvent) error {
	sub := Submission{
		ID:             uuid.New(),
		Org:            payload.Org,
		PostCommitment: payload.PostCommitment,
		NullifierHash:  payload.NullifierHash,
		Proof:          payload.Proof,
		Timestamp:      payload.Timestamp,
		LastSeen:       time.Now(),
	}
	p.Lock()
	defer p.Unlock()
	// Update last seen for a duplicate submission
	existing := p.getByNullifier(sub.Org, sub.NullifierHash)
	if existing != nil {
		existing.LastSeen = time.Now()
		p.logger.Debug(
			"updated last seen for submission",
			"component", "postpool",
			"submission_id", existing.ID,
		)
		return nil
	}
	// Enforce pool capacity
	if p.config.PoolCapacity > 0 &&
		len(p.submissions) >= p.config.PoolCapacity {
		return &PoolFullError{
			CurrentCount: len(p.submissions),
			Capacity:     p.config.PoolCapacity,
		}
	}
	p.submissions = append(p.submissions, &sub)
	p.logger.Debug(
		"added submission",
		"component", "postpool",
		"submission_id", sub.ID,
		"org", sub.Org,
	)
	p.metrics.submissionsProcessed.Inc()
	p.metrics.submissionsInPool.Inc()
	// Generate event
	if p.eventBus != nil {
		p.eventBus.Publish(
			AddSubmissionEventType,
			event.NewEvent(
				AddSubmissionEventType,
				AddSubmissionEvent{
					ID:  sub.ID,
					Org: sub.Org,
				},
			),
		)
	}
	return nil
}

func (p *PostPool) GetSubmission(id uuid.UUID) (Submission, bool) {
	p.RLock()
	defer p.RUnlock()
	for _, sub := range p.submissions {
		if sub.ID == id {
			return *sub, true
		}
	}
	return Submission{}, false
}

func (p *PostPool) Submissions() []Submission {
	p.RLock()
	defer p.RUnlock()
	ret := make([]Submission, len(p.submissions))
	for i := range p.submissions {
		ret[i] = *p.submissions[i]
	}
	return ret
}

func (p *PostPool) getByNullifier(
	org ledger.Principal,
	nullifierHash ledger.Digest,
) *Submission {
	for _, sub := range p.submissions {
		if sub.Org == org && sub.NullifierHash == nullifierHash {
			return sub
		}
	}
	return nil
}

func (p *PostPool) RemoveSubmission(id uuid.UUID) {
	p.Lock()
	defer p.Unlock()
	if p.removeSubmission(id) {
		p.logger.Debug(
			"removed submission",
			"component", "postpool",
			"submission_id", id,
		)
	}
}

func (p *PostPool) removeSubmission(id uuid.UUID) bool {
	for subIdx, sub := range p.submissions {
		if sub.ID == id {
			return p.removeSubmissionByIndex(subIdx)
		}
	}
	return false
}

func (p *PostPool) removeSubmissionByIndex(subIdx int) bool {
	if subIdx >= len(p.submissions) {
		return false
	}
	sub := p.submissions[subIdx]
	p.submissions = slices.Delete(
		p.submissions,
		subIdx,
		subIdx+1,
	)
	p.metrics.submissionsInPool.Dec()
	// Update consumer indexes to reflect the removed submission
	p.consumersMutex.Lock()
	for _, consumer := range p.consumers {
		if consumer.nextSubIdx > subIdx {
			consumer.nextSubIdx--
		}
	}
	p.consumersMutex.Unlock()
	// Generate event
	if p.eventBus != nil {
		p.eventBus.Publish(
			RemoveSubmissionEventType,
			event.NewEvent(
				RemoveSubmissionEventType,
				RemoveSubmissionEvent{
					ID: sub.ID,
				},
			),
		)
	}
	return true
}
