/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

package workpool

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	applog "goslidewriter/internal/log"
)

func newTestPool(t *testing.T, opts Options) *Pool {
	t.Helper()
	opts.Logger = applog.Discard()
	p := New(opts)
	t.Cleanup(p.Close)
	return p
}

func TestPriorityOrderFIFOWithinPriority(t *testing.T) {
	p := newTestPool(t, Options{MaxConcurrent: 1})
	release := make(chan struct{})
	started := make(chan struct{})
	require.True(t, p.Submit(context.Background(), High, func(context.Context) {
		close(started)
		<-release
	}))
	<-started

	var mu sync.Mutex
	var order []string
	record := func(name string) Job {
		return func(context.Context) {
			mu.Lock()
			order = append(order, name)
			mu.Unlock()
		}
	}
	p.Submit(context.Background(), Background, record("bg1"))
	p.Submit(context.Background(), High, record("h1"))
	p.Submit(context.Background(), Background, record("bg2"))
	p.Submit(context.Background(), High, record("h2"))
	assert.Equal(t, 4, p.Pending())

	close(release)
	p.Wait()
	assert.Equal(t, []string{"h1", "h2", "bg1", "bg2"}, order)
}

func TestConcurrencyCap(t *testing.T) {
	p := newTestPool(t, Options{MaxConcurrent: 3})
	var cur, peak int32
	for i := 0; i < 12; i++ {
		p.Submit(context.Background(), Background, func(context.Context) {
			n := atomic.AddInt32(&cur, 1)
			for {
				old := atomic.LoadInt32(&peak)
				if n <= old || atomic.CompareAndSwapInt32(&peak, old, n) {
					break
				}
			}
			time.Sleep(5 * time.Millisecond)
			atomic.AddInt32(&cur, -1)
		})
	}
	p.Wait()
	assert.LessOrEqual(t, atomic.LoadInt32(&peak), int32(3))
	assert.Equal(t, 0, p.Running())
}

func TestJobReceivesSubmitContext(t *testing.T) {
	p := newTestPool(t, Options{})
	type key struct{}
	ctx := context.WithValue(context.Background(), key{}, "v")
	got := make(chan any, 1)
	p.Submit(ctx, High, func(c context.Context) { got <- c.Value(key{}) })
	p.Wait()
	assert.Equal(t, "v", <-got)
}

func TestRateLimitedPoolStillRunsAll(t *testing.T) {
	p := newTestPool(t, Options{MaxConcurrent: 2, RequestsPerMinute: 60000, Burst: 5})
	var n int32
	for i := 0; i < 5; i++ {
		p.Submit(context.Background(), Background, func(context.Context) { atomic.AddInt32(&n, 1) })
	}
	p.Wait()
	assert.Equal(t, int32(5), atomic.LoadInt32(&n))
}

func TestPanickingJobDoesNotKillPool(t *testing.T) {
	p := newTestPool(t, Options{MaxConcurrent: 1})
	p.Submit(context.Background(), High, func(context.Context) { panic("boom") })
	ran := false
	p.Submit(context.Background(), High, func(context.Context) { ran = true })
	p.Wait()
	assert.True(t, ran)
}

func TestCloseDropsQueuedAndRejectsSubmit(t *testing.T) {
	p := New(Options{MaxConcurrent: 1, Logger: applog.Discard()})
	release := make(chan struct{})
	started := make(chan struct{})
	p.Submit(context.Background(), High, func(context.Context) {
		close(started)
		<-release
	})
	<-started
	var queuedRan int32
	p.Submit(context.Background(), High, func(context.Context) { atomic.StoreInt32(&queuedRan, 1) })

	closed := make(chan struct{})
	go func() {
		p.Close()
		close(closed)
	}()
	require.Eventually(t, func() bool {
		return !p.Submit(context.Background(), High, func(context.Context) { atomic.StoreInt32(&queuedRan, 1) })
	}, time.Second, time.Millisecond)
	close(release)
	select {
	case <-closed:
	case <-time.After(2 * time.Second):
		t.Fatal("Close did not return")
	}
	assert.Equal(t, int32(0), atomic.LoadInt32(&queuedRan))
	assert.False(t, p.Submit(context.Background(), High, func(context.Context) {}))
	p.Close()
}
