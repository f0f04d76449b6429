package store

import (
	"context"
	"strconv"
	"time"

	"github.com/go-kit/kit/metrics"
)

// instrumentingMiddleware wraps Store and enables request metrics
type instrumentingMiddleware struct {
	reqCount    metrics.Counter
	reqDuration metrics.Histogram
	svc         Store
}

// observe ...
func (s *instrumentingMiddleware) observe(method string, start time.Time, err error) {
	labels := []string{
		"method", method,
		"error", strconv.FormatBool(err != nil),
	}
	s.reqCount.With(labels...).Add(1)
	s.reqDuration.With(labels...).Observe(time.Since(start).Seconds())
}

// GetCache ...
func (s *instrumentingMiddleware) GetCache(ctx context.Context, key string) (value string, ok bool, err error) {
	defer func(start time.Time) { s.observe("GetCache", start, err) }(time.Now())
	return s.svc.GetCache(ctx, key)
}

// SetCache ...
func (s *instrumentingMiddleware) SetCache(ctx context.Context, key, value string, expiresAt *time.Time) (err error) {
	defer func(start time.Time) { s.observe("SetCache", start, err) }(time.Now())
	return s.svc.SetCache(ctx, key, value, expiresAt)
}

// AddQueuedTask ...
func (s *instrumentingMiddleware) AddQueuedTask(ctx context.Context, taskName, arguments string, expiresAt *time.Time, priority int) (id int64, err error) {
	defer func(start time.Time) { s.observe("AddQueuedTask", start, err) }(time.Now())
	return s.svc.AddQueuedTask(ctx, taskName, arguments, expiresAt, priority)
}

// ExtractNextQueuedTask ...
func (s *instrumentingMiddleware) ExtractNextQueuedTask(ctx context.Context) (task *QueuedTask, err error) {
	defer func(start time.Time) { s.observe("ExtractNextQueuedTask", start, err) }(time.Now())
	return s.svc.ExtractNextQueuedTask(ctx)
}

// DeleteQueuedTask ...
func (s *instrumentingMiddleware) DeleteQueuedTask(ctx context.Context, id int64) (err error) {
	defer func(start time.Time) { s.observe("DeleteQueuedTask", start, err) }(time.Now())
	return s.svc.DeleteQueuedTask(ctx, id)
}

// StartSavepoint ...
func (s *instrumentingMiddleware) StartSavepoint(ctx context.Context, name string) (err error) {
	defer func(start time.Time) { s.observe("StartSavepoint", start, err) }(time.Now())
	return s.svc.StartSavepoint(ctx, name)
}

// ReleaseSavepoint ...
func (s *instrumentingMiddleware) ReleaseSavepoint(ctx context.Context, name string) (err error) {
	defer func(start time.Time) { s.observe("ReleaseSavepoint", start, err) }(time.Now())
	return s.svc.ReleaseSavepoint(ctx, name)
}

// RollbackSavepoint ...
func (s *instrumentingMiddleware) RollbackSavepoint(ctx context.Context, name string) (err error) {
	defer func(start time.Time) { s.observe("RollbackSavepoint", start, err) }(time.Now())
	return s.svc.RollbackSavepoint(ctx, name)
}

// AddActivity ...
func (s *instrumentingMiddleware) AddActivity(ctx context.Context, activity *Activity) (id int64, err error) {
	defer func(start time.Time) { s.observe("AddActivity", start, err) }(time.Now())
	return s.svc.AddActivity(ctx, activity)
}

// SetActivityStatus ...
func (s *instrumentingMiddleware) SetActivityStatus(ctx context.Context, id int64, status, reason string) (err error) {
	defer func(start time.Time) { s.observe("SetActivityStatus", start, err) }(time.Now())
	return s.svc.SetActivityStatus(ctx, id, status, reason)
}

// UpsertPaymentStatus ...
func (s *instrumentingMiddleware) UpsertPaymentStatus(ctx context.Context, eventID, state string) (err error) {
	defer func(start time.Time) { s.observe("UpsertPaymentStatus", start, err) }(time.Now())
	return s.svc.UpsertPaymentStatus(ctx, eventID, state)
}

// GetPaymentStatus ...
func (s *instrumentingMiddleware) GetPaymentStatus(ctx context.Context, eventID string) (state string, ok bool, err error) {
	defer func(start time.Time) { s.observe("GetPaymentStatus", start, err) }(time.Now())
	return s.svc.GetPaymentStatus(ctx, eventID)
}

// CountActivities ...
func (s *instrumentingMiddleware) CountActivities(ctx context.Context) (count int64, err error) {
	defer func(start time.Time) { s.observe("CountActivities", start, err) }(time.Now())
	return s.svc.CountActivities(ctx)
}

// Close ...
func (s *instrumentingMiddleware) Close() (err error) {
	defer func(start time.Time) { s.observe("Close", start, err) }(time.Now())
	return s.svc.Close()
}

// NewInstrumentingMiddleware ...
func NewInstrumentingMiddleware(
	reqCount metrics.Counter,
	reqDuration metrics.Histogram,
	svc Store,
) Store {
	return &instrumentingMiddleware{
		reqCount:    reqCount,
		reqDuration: reqDuration,
		svc:         svc,
	}
}
