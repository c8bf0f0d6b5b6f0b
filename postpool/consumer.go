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
	"sync"

	"github.com/google/uuid"
)

// PoolConsumer drains submissions from the pool in arrival order. Each
// consumer tracks its own position, so multiple verifiers can process the
// same stream independently.
type PoolConsumer struct {
	pool         *PostPool
	cache        map[uuid.UUID]*Submission
	nextSubIdx   int
	cacheMutex   sync.Mutex
	nextSubIdxMu sync.Mutex
	done         chan struct{}
	doneOnce     sync.Once
}

func newConsumer(pool *PostPool) *PoolConsumer {
	return &PoolConsumer{
		pool:  pool,
		cache: make(map[uuid.UUID]*Submission),
		done:  make(chan struct{}),
	}
}

// Close signals any goroutines blocked on NextSubmission to exit.
// Safe to call multiple times.
func (c *PoolConsumer) Close() {
	if c != nil {
		c.doneOnce.Do(func() { close(c.done) })
	}
}

func (c *PoolConsumer) NextSubmission(blocking bool) *Submission {
	if c == nil {
		return nil
	}

	for {
		c.pool.RLock()
		c.nextSubIdxMu.Lock()

		// Check if we have a submission available
		if c.nextSubIdx < len(c.pool.submissions) {
			nextSub := c.pool.submissions[c.nextSubIdx]
			if nextSub != nil {
				// Increment next index atomically with reading it
				c.nextSubIdx++
				c.nextSubIdxMu.Unlock()
				c.pool.RUnlock()

				// Add submission to cache (outside of locks)
				c.cacheMutex.Lock()
				c.cache[nextSub.ID] = nextSub
				c.cacheMutex.Unlock()

				return nextSub
			}
			c.nextSubIdx++
			c.nextSubIdxMu.Unlock()
			c.pool.RUnlock()
			continue
		}

		// No submission available
		if !blocking {
			c.nextSubIdxMu.Unlock()
			c.pool.RUnlock()
			return nil
		}

		// If eventBus is nil, fall back to non-blocking behavior
		if c.pool.eventBus == nil {
			c.nextSubIdxMu.Unlock()
			c.pool.RUnlock()
			return nil
		}

		// Wait for a submission to be added
		addSubId, addCh := c.pool.eventBus.Subscribe(AddSubmissionEventType)
		c.nextSubIdxMu.Unlock()
		c.pool.RUnlock()

		// Block until an event arrives or shutdown is signaled
		select {
		case <-addCh:
			c.pool.eventBus.Unsubscribe(AddSubmissionEventType, addSubId)
			// Loop back to check if a submission is available. This
			// naturally handles the case of multiple rapid additions.
		case <-c.pool.done:
			// Pool is shutting down, unsubscribe and exit
			c.pool.eventBus.Unsubscribe(AddSubmissionEventType, addSubId)
			return nil
		case <-c.done:
			// Consumer removed, unsubscribe and exit
			c.pool.eventBus.Unsubscribe(AddSubmissionEventType, addSubId)
			return nil
		}
	}
}

func (c *PoolConsumer) GetFromCache(id uuid.UUID) *Submission {
	if c == nil {
		return nil
	}
	c.cacheMutex.Lock()
	defer c.cacheMutex.Unlock()
	return c.cache[id]
}

func (c *PoolConsumer) ClearCache() {
	if c != nil {
		c.cacheMutex.Lock()
		defer c.cacheMutex.Unlock()
		c.cache = make(map[uuid.UUID]*Submission)
	}
}

func (c *PoolConsumer) RemoveFromCache(id uuid.UUID) {
	if c != nil {
		c.cacheMutex.Lock()
		defer c.cacheMutex.Unlock()
		delete(c.cache, id)
	}
}
