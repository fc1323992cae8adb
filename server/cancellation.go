package server

import (
	"sync"
)

// RequestCanceller tracks in-flight cancellable calls and routes '$/cancelled'
// notifications to them.
type RequestCanceller struct {
	mu            sync.RWMutex
	cancellations map[string]chan struct{}
}

// NewRequestCanceller creates a new request canceller.
func NewRequestCanceller() *RequestCanceller {
	return &RequestCanceller{
		cancellations: make(map[string]chan struct{}),
	}
}

// Register marks a request as cancellable and returns a channel closed on
// cancellation.
func (rc *RequestCanceller) Register(requestID string) <-chan struct{} {
	rc.mu.Lock()
	defer rc.mu.Unlock()

	cancelCh := make(chan struct{})
	rc.cancellations[requestID] = cancelCh
	return cancelCh
}

// Cancel cancels a request by closing its cancellation channel. It returns
// true if the request was found, false otherwise.
func (rc *RequestCanceller) Cancel(requestID string) bool {
	rc.mu.Lock()
	defer rc.mu.Unlock()

	cancelCh, exists := rc.cancellations[requestID]
	if !exists {
		return false
	}
	close(cancelCh)
	delete(rc.cancellations, requestID)
	return true
}

// Deregister removes a request that completed normally. Safe to call after a
// concurrent Cancel.
func (rc *RequestCanceller) Deregister(requestID string) {
	rc.mu.Lock()
	defer rc.mu.Unlock()

	cancelCh, exists := rc.cancellations[requestID]
	if !exists {
		return
	}
	select {
	case <-cancelCh:
	default:
		close(cancelCh)
	}
	delete(rc.cancellations, requestID)
}
