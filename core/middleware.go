// Package core provides the building blocks of the ormx persistence layer.
// This file defines the operation middleware chain, which applies
// cross-cutting concerns (structured logging, metrics, read caching) around
// every persistence operation.
package core

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/uber-go/tally"
)

// Operation represents the type of persistence operation being executed.
type Operation string

const (
	// OperationInsert corresponds to an insert (create) operation.
	OperationInsert Operation = "insert"
	// OperationUpdate corresponds to an update operation.
	OperationUpdate Operation = "update"
	// OperationDelete corresponds to a delete operation.
	OperationDelete Operation = "delete"
	// OperationFind corresponds to a query (find/count) operation.
	OperationFind Operation = "find"
)

// Handler is the function signature executed by the operation pipeline.
type Handler func(ctx context.Context, op Operation, payload any) error

// Middleware wraps a Handler with additional logic, decorator style.
//
// Middlewares are chained globally and executed for every operation, in
// reverse registration order: the most recently registered runs first.
type Middleware func(next Handler) Handler

var globalMiddlewareList []Middleware

// Use registers a new global middleware, applied to all operations.
func Use(mw Middleware) {
	globalMiddlewareList = append(globalMiddlewareList, mw)
}

// runMiddlewares applies the chain of middlewares to the final handler.
func runMiddlewares(final Handler) Handler {
	h := final
	for i := len(globalMiddlewareList) - 1; i >= 0; i-- {
		h = globalMiddlewareList[i](h)
	}
	return h
}

// dispatchOperation executes an operation through the global middleware chain.
func dispatchOperation(ctx context.Context, op Operation, payload any, exec func() error) error {
	handler := runMiddlewares(func(ctx context.Context, op Operation, payload any) error {
		return exec()
	})
	return handler(ctx, op, payload)
}

// LoggingMiddleware logs every operation with its duration through the given
// logrus logger. Failures log at error level with the error attached.
//
// Example:
//
//	core.Use(core.LoggingMiddleware(logrus.StandardLogger()))
func LoggingMiddleware(logger *logrus.Logger) Middleware {
	return func(next Handler) Handler {
		return func(ctx context.Context, op Operation, payload any) error {
			start := time.Now()
			err := next(ctx, op, payload)
			entry := logger.WithFields(logrus.Fields{
				"operation": op,
				"duration":  time.Since(start),
			})
			if err != nil {
				entry.WithError(err).Error("operation failed")
				return err
			}
			entry.Debug("operation complete")
			return nil
		}
	}
}

// MetricsMiddleware emits a counter and a timer per operation to the given
// tally scope, tagged with the operation kind and outcome.
//
// Example:
//
//	core.Use(core.MetricsMiddleware(scope.SubScope("ormx")))
func MetricsMiddleware(scope tally.Scope) Middleware {
	return func(next Handler) Handler {
		return func(ctx context.Context, op Operation, payload any) error {
			sw := scope.Tagged(map[string]string{"operation": string(op)}).
				Timer("operation_duration").Start()
			err := next(ctx, op, payload)
			sw.Stop()

			result := "success"
			if err != nil {
				result = "failure"
			}
			scope.Tagged(map[string]string{
				"operation": string(op),
				"result":    result,
			}).Counter("operations").Inc(1)
			return err
		}
	}
}

// Cache defines the interface for pluggable read caches used by
// CacheMiddleware. Implementations store arbitrary values with a TTL.
type Cache interface {
	Get(ctx context.Context, key string) (any, bool)
	Set(ctx context.Context, key string, value any, ttl time.Duration)
}

// memoryCache is a map-backed Cache with per-entry expiration.
type memoryCache struct {
	data  map[string]memoryEntry
	mutex sync.RWMutex
}

type memoryEntry struct {
	value      any
	expiration time.Time
}

// NewMemoryCache creates an in-memory Cache instance.
func NewMemoryCache() Cache {
	return &memoryCache{
		data: make(map[string]memoryEntry),
	}
}

func (c *memoryCache) Get(ctx context.Context, key string) (any, bool) {
	c.mutex.RLock()
	defer c.mutex.RUnlock()
	entry, ok := c.data[key]
	if !ok {
		return nil, false
	}
	if !entry.expiration.IsZero() && time.Now().After(entry.expiration) {
		return nil, false
	}
	return entry.value, true
}

// Set stores a value with the given TTL. A zero TTL never expires.
func (c *memoryCache) Set(ctx context.Context, key string, value any, ttl time.Duration) {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	var exp time.Time
	if ttl > 0 {
		exp = time.Now().Add(ttl)
	}
	c.data[key] = memoryEntry{value: value, expiration: exp}
}

// CacheMiddleware short-circuits repeated read operations within the TTL
// window. Caching is presence-only: a hit returns nil without invoking the
// rest of the chain and without writing anything into the payload, so rows
// come from whatever the payload already holds. Entries are keyed by
// operation and payload; writes and failed finds pass through untouched.
//
// Example:
//
//	core.Use(core.CacheMiddleware(core.NewMemoryCache(), time.Minute))
func CacheMiddleware(cache Cache, ttl time.Duration) Middleware {
	if ttl <= 0 {
		ttl = 30 * time.Second
	}
	return func(next Handler) Handler {
		return func(ctx context.Context, op Operation, payload any) error {
			if op != OperationFind {
				return next(ctx, op, payload)
			}

			key := fmt.Sprintf("%s:%#v", op, payload)
			if _, ok := cache.Get(ctx, key); ok {
				return nil
			}

			err := next(ctx, op, payload)
			if err == nil {
				cache.Set(ctx, key, payload, ttl)
			}
			return err
		}
	}
}
