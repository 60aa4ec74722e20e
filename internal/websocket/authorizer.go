package websocket

import (
	"fmt"
	"strings"

	"azure-communication/internal/domain"
	acs_errors "azure-communication/pkg/errors"
	"azure-communication/pkg/stream"
)

// ThreadAuthorizer decides which threads a connection may subscribe to.
// The thread list only holds threads the service identity participates in,
// so once it has loaded, anything outside it is refused.
type ThreadAuthorizer struct {
	threads stream.Observable[[]domain.Thread]
	loaded  func() bool
}

func NewThreadAuthorizer(threads stream.Observable[[]domain.Thread], loaded func() bool) *ThreadAuthorizer {
	return &ThreadAuthorizer{threads: threads, loaded: loaded}
}

// Resolve returns the listed thread for threadID. Before the first thread
// list has arrived it returns a thread carrying only the id and leaves the
// check to the backend.
func (a *ThreadAuthorizer) Resolve(threadID string) (domain.Thread, error) {
	threadID = strings.TrimSpace(threadID)
	if threadID == "" {
		return domain.Thread{}, acs_errors.ErrInvalidThread
	}
	if a.loaded == nil || !a.loaded() {
		return domain.Thread{ID: threadID}, nil
	}
	for _, t := range a.threads.Value() {
		if t.ID == threadID {
			return t, nil
		}
	}
	return domain.Thread{}, fmt.Errorf("thread %s is not listed: %w", threadID, acs_errors.ErrInvalidThread)
}
