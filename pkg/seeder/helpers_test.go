package seeder

import (
	"context"
	"strings"
	"sync"

	"github.com/pkg/errors"
	"github.com/shishobooks/comicseed/pkg/references"
)

// recordingTracker keeps every outcome it receives.
type recordingTracker struct {
	mu        sync.Mutex
	created   []string
	updated   []string
	skipped   []string
	errored   []string
	progress  [][2]int
	completed int
}

func (r *recordingTracker) IncrementCreated(label string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.created = append(r.created, label)
}

func (r *recordingTracker) IncrementUpdated(label string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.updated = append(r.updated, label)
}

func (r *recordingTracker) IncrementSkipped(reason string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.skipped = append(r.skipped, reason)
}

func (r *recordingTracker) IncrementError(reason string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.errored = append(r.errored, reason)
}

func (r *recordingTracker) ReportProgress(processed, total int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.progress = append(r.progress, [2]int{processed, total})
}

func (r *recordingTracker) Complete() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.completed++
}

// fakeMaterializer maps sources to stored paths. Sources containing "broken"
// fail; onSource runs before each call.
type fakeMaterializer struct {
	mu       sync.Mutex
	calls    []string
	onSource func(source string)
}

func (f *fakeMaterializer) Materialize(_ context.Context, source, namespace string) (string, bool) {
	f.mu.Lock()
	f.calls = append(f.calls, source)
	hook := f.onSource
	f.mu.Unlock()
	if hook != nil {
		hook(source)
	}
	if strings.Contains(source, "broken") {
		return "", false
	}
	return "/assets/" + namespace + "/" + source[strings.LastIndex(source, "/")+1:], true
}

// brokenStore fails every lookup.
type brokenStore struct{}

func (brokenStore) FindByName(context.Context, references.Kind, string) (*references.Reference, error) {
	return nil, errors.New("reference store offline")
}

func (brokenStore) InsertIgnore(context.Context, references.Kind, string) (*references.Reference, error) {
	return nil, errors.New("reference store offline")
}
