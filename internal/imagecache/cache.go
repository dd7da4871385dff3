/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the
 *  specific language governing permissions and limitations under the License.
 */

// Package imagecache keeps the last known good background image per slide
// for the lifetime of an editing session. Entries are only ever added or
// replaced, never removed, so undo can always restore an image that was
// generated after the snapshot it returns to.
package imagecache

import "sync"

// Cache maps slide ids to base64 image payloads. It is safe for concurrent use.
type Cache struct {
	mu    sync.RWMutex
	items map[string]string
	bytes int
}

func New() *Cache { return &Cache{items: make(map[string]string)} }

// Get returns the cached image for a slide.
func (c *Cache) Get(slideID string) (string, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	img, ok := c.items[slideID]
	return img, ok
}

// Put stores img for a slide. Empty payloads are ignored.
func (c *Cache) Put(slideID, img string) {
	if slideID == "" || img == "" {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.bytes -= len(c.items[slideID])
	c.items[slideID] = img
	c.bytes += len(img)
}

// Stats returns the entry count and payload size for diagnostics.
func (c *Cache) Stats() (entries int, totalBytes int) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.items), c.bytes
}
