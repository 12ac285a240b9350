package engine

import (
	"context"
	"fmt"
	"slices"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/openmined/docsync/internal/docsdk"
)

// fakeRemote is an in-memory document service with version checks.
type fakeRemote struct {
	mu   sync.Mutex
	docs map[string]*docsdk.Document
	next int

	getErr    map[string]error
	updateErr map[string]error
	createErr map[string]error // keyed by title

	// called before an update is applied, with the lock released
	beforeUpdate func(id string)
	updateDelay  time.Duration

	gets        []string
	updateCalls map[string]int
	created     []*docsdk.CreateParams
	inFlight    int
	maxInFlight int
}

func newFakeRemote() *fakeRemote {
	return &fakeRemote{
		docs:        map[string]*docsdk.Document{},
		getErr:      map[string]error{},
		updateErr:   map[string]error{},
		createErr:   map[string]error{},
		updateCalls: map[string]int{},
	}
}

func notFound(id string) error {
	return fmt.Errorf("get document %s %w", id, &docsdk.APIError{Code: docsdk.CodeNotFound, Status: 404})
}

func (f *fakeRemote) put(doc *docsdk.Document) {
	f.mu.Lock()
	defer f.mu.Unlock()
	c := *doc
	f.docs[doc.ID] = &c
}

// edit simulates a change made by someone else on the remote side.
func (f *fakeRemote) edit(id, content string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	d := f.docs[id]
	d.Content = content
	d.Version++
}

func (f *fakeRemote) doc(id string) docsdk.Document {
	f.mu.Lock()
	defer f.mu.Unlock()
	return *f.docs[id]
}

func (f *fakeRemote) totalUpdates() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, c := range f.updateCalls {
		n += c
	}
	return n
}

func (f *fakeRemote) GetDocument(ctx context.Context, id string) (*docsdk.Document, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.gets = append(f.gets, id)
	if err := f.getErr[id]; err != nil {
		return nil, err
	}
	d, ok := f.docs[id]
	if !ok {
		return nil, notFound(id)
	}
	c := *d
	return &c, nil
}

func (f *fakeRemote) UpdateDocument(ctx context.Context, p *docsdk.UpdateParams) (*docsdk.WriteResult, error) {
	f.mu.Lock()
	f.updateCalls[p.ID]++
	f.inFlight++
	f.maxInFlight = max(f.maxInFlight, f.inFlight)
	hook, delay := f.beforeUpdate, f.updateDelay
	f.mu.Unlock()

	defer func() {
		f.mu.Lock()
		f.inFlight--
		f.mu.Unlock()
	}()

	if delay > 0 {
		time.Sleep(delay)
	}
	if hook != nil {
		hook(p.ID)
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.updateErr[p.ID]; err != nil {
		return nil, err
	}
	d, ok := f.docs[p.ID]
	if !ok {
		return nil, notFound(p.ID)
	}
	if p.ExpectedVersion != d.Version+1 {
		return nil, fmt.Errorf("update document %w", &docsdk.APIError{Code: docsdk.CodeVersionConflict, Status: 409})
	}
	d.Title, d.Content, d.Version = p.Title, p.Content, p.ExpectedVersion
	return &docsdk.WriteResult{ID: d.ID, Version: d.Version}, nil
}

func (f *fakeRemote) CreateDocument(ctx context.Context, p *docsdk.CreateParams) (*docsdk.WriteResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.createErr[p.Title]; err != nil {
		return nil, err
	}
	f.created = append(f.created, p)
	f.next++
	id := "new-" + strconv.Itoa(f.next)
	f.docs[id] = &docsdk.Document{ID: id, SpaceID: p.SpaceID, ParentID: p.ParentID, Title: p.Title, Content: p.Content, Version: 1}
	return &docsdk.WriteResult{ID: id, Version: 1}, nil
}

func (f *fakeRemote) ListChildren(ctx context.Context, id string) ([]*docsdk.Document, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []*docsdk.Document
	for _, d := range f.docs {
		if d.ParentID == id {
			c := *d
			c.Content = ""
			out = append(out, &c)
		}
	}
	slices.SortFunc(out, func(a, b *docsdk.Document) int { return strings.Compare(a.ID, b.ID) })
	return out, nil
}
