/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except
 * in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the
 *  specific language governing permissions and limitations under the License.
 */

package genai

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/sony/gobreaker/v2"

	"goslidewriter/internal/domain"
)

// Service is the set of generation calls the editor consumes.
type Service interface {
	GenerateOutline(ctx context.Context, topic string, attachments []domain.Attachment) ([]domain.SlideDraft, error)
	GenerateSingleSlide(ctx context.Context, topic, description string, existing []domain.SlideDraft, insertIndex int) (domain.SlideDraft, error)
	GenerateImage(ctx context.Context, visualPrompt, title string, cfg domain.ModelConfig) (string, error)
	GenerateThemedBackground(ctx context.Context, theme domain.Theme, presentationContext string, cfg domain.ModelConfig) (string, error)
	EnhanceNotes(ctx context.Context, notes string, mode domain.NotesMode, targetLanguage string) (string, error)
}

// Default circuit breaker settings.
const (
	defaultMaxFailures uint32 = 5
	defaultOpenTimeout        = 30 * time.Second
	defaultInterval           = 60 * time.Second
)

// BreakerConfig configures the circuit breaker behavior.
type BreakerConfig struct {
	// MaxFailures is the number of consecutive failures before the circuit opens.
	MaxFailures uint32 `yaml:"max_failures"`
	// Timeout is how long the circuit stays open before a probe is let through.
	Timeout time.Duration `yaml:"timeout"`
	// Interval clears failure counts while closed; 0 keeps them until the circuit opens.
	Interval time.Duration `yaml:"interval"`
}

// Breaker wraps a Service with circuit breaker protection. While open, calls
// fail fast with gobreaker.ErrOpenState wrapped, so a backend outage marks
// slides failed instead of queueing requests against a dead service.
type Breaker struct {
	inner   Service
	breaker *gobreaker.CircuitBreaker[any]
	logger  *slog.Logger
}

// NewBreaker wraps inner. Zero config values use defaults.
func NewBreaker(inner Service, cfg BreakerConfig, logger *slog.Logger) *Breaker {
	maxFailures := cfg.MaxFailures
	if maxFailures == 0 {
		maxFailures = defaultMaxFailures
	}
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = defaultOpenTimeout
	}
	interval := cfg.Interval
	if interval == 0 {
		interval = defaultInterval
	}
	if logger == nil {
		logger = slog.Default()
	}
	cb := gobreaker.NewCircuitBreaker[any](gobreaker.Settings{
		Name:        "genai",
		MaxRequests: 1,
		Interval:    interval,
		Timeout:     timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= maxFailures
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Warn("circuit breaker state change",
				"breaker", name,
				"from", from.String(),
				"to", to.String(),
			)
		},
		// Cancelled requests and unusable payloads say nothing about
		// backend health.
		IsSuccessful: func(err error) bool {
			return err == nil ||
				errors.Is(err, context.Canceled) ||
				errors.Is(err, domain.ErrEmptyImage) ||
				errors.Is(err, ErrMalformedOutline)
		},
	})
	return &Breaker{inner: inner, breaker: cb, logger: logger}
}

func execute[T any](b *Breaker, op string, fn func() (T, error)) (T, error) {
	res, err := b.breaker.Execute(func() (any, error) {
		return fn()
	})
	if err != nil {
		var zero T
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			return zero, fmt.Errorf("%s: generation backend circuit open: %w", op, err)
		}
		if v, ok := res.(T); ok {
			return v, err
		}
		return zero, err
	}
	v, _ := res.(T)
	return v, nil
}

func (b *Breaker) GenerateOutline(ctx context.Context, topic string, attachments []domain.Attachment) ([]domain.SlideDraft, error) {
	return execute(b, "outline", func() ([]domain.SlideDraft, error) {
		return b.inner.GenerateOutline(ctx, topic, attachments)
	})
}

func (b *Breaker) GenerateSingleSlide(ctx context.Context, topic, description string, existing []domain.SlideDraft, insertIndex int) (domain.SlideDraft, error) {
	return execute(b, "single slide", func() (domain.SlideDraft, error) {
		return b.inner.GenerateSingleSlide(ctx, topic, description, existing, insertIndex)
	})
}

func (b *Breaker) GenerateImage(ctx context.Context, visualPrompt, title string, cfg domain.ModelConfig) (string, error) {
	return execute(b, "slide image", func() (string, error) {
		return b.inner.GenerateImage(ctx, visualPrompt, title, cfg)
	})
}

func (b *Breaker) GenerateThemedBackground(ctx context.Context, theme domain.Theme, presentationContext string, cfg domain.ModelConfig) (string, error) {
	return execute(b, "themed background", func() (string, error) {
		return b.inner.GenerateThemedBackground(ctx, theme, presentationContext, cfg)
	})
}

func (b *Breaker) EnhanceNotes(ctx context.Context, notes string, mode domain.NotesMode, targetLanguage string) (string, error) {
	return execute(b, "enhance notes", func() (string, error) {
		return b.inner.EnhanceNotes(ctx, notes, mode, targetLanguage)
	})
}

// State returns the current circuit breaker state for monitoring.
func (b *Breaker) State() gobreaker.State { return b.breaker.State() }

// Counts returns the current circuit breaker failure/success counts.
func (b *Breaker) Counts() gobreaker.Counts { return b.breaker.Counts() }

// Compile-time interface checks.
var (
	_ Service = (*Client)(nil)
	_ Service = (*Breaker)(nil)
)
