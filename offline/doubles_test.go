package offline

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// fakePrimitive is a scriptable connectivity source.
type fakePrimitive struct {
	mu     sync.Mutex
	online bool
	subs   []func(online bool)
}

func (p *fakePrimitive) Online() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.online
}

func (p *fakePrimitive) Subscribe(fn func(online bool)) func() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.subs = append(p.subs, fn)
	return func() {}
}

// set publishes a state, duplicates included, like a noisy host primitive.
func (p *fakePrimitive) set(online bool) {
	p.mu.Lock()
	p.online = online
	subs := append([]func(bool){}, p.subs...)
	p.mu.Unlock()
	for _, fn := range subs {
		fn(online)
	}
}

// fakeStore is an in-memory RemoteStore with per-call failure injection.
type fakeStore struct {
	mu            sync.Mutex
	nextID        int
	records       map[string][]RemoteRecord // keyed by patientID
	patientFields map[string]map[string]any
	createCalls   int
	// failCreate makes CreateRecord fail for matching calls.
	failCreate func(patientID string, t RecordType) bool
	listErr    error
	// onList runs on every ListByPatient call, before listErr is consulted.
	onList func()
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		records:       make(map[string][]RemoteRecord),
		patientFields: make(map[string]map[string]any),
	}
}

func (f *fakeStore) CreateRecord(_ context.Context, patientID string, t RecordType, payload Payload) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.createCalls++
	if f.failCreate != nil && f.failCreate(patientID, t) {
		return "", &RemoteError{Op: "create record", Err: fmt.Errorf("injected failure")}
	}
	f.nextID++
	id := fmt.Sprintf("srv-%d", f.nextID)
	f.records[patientID] = append(f.records[patientID], RemoteRecord{
		ID:        id,
		PatientID: patientID,
		Type:      t,
		Payload:   payload.Clone(),
		CreatedAt: time.Now().UTC(),
	})
	return id, nil
}

func (f *fakeStore) ListByPatient(_ context.Context, patientID string, t RecordType) ([]RemoteRecord, error) {
	if f.onList != nil {
		f.onList()
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.listErr != nil {
		return nil, f.listErr
	}
	var out []RemoteRecord
	for _, rec := range f.records[patientID] {
		if rec.Type == t {
			out = append(out, rec)
		}
	}
	return out, nil
}

func (f *fakeStore) UpdatePatientField(_ context.Context, patientID, field string, value any) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.patientFields[patientID] == nil {
		f.patientFields[patientID] = make(map[string]any)
	}
	f.patientFields[patientID][field] = value
	return nil
}

func (f *fakeStore) recordsFor(patientID string, t RecordType) []RemoteRecord {
	out, _ := f.ListByPatient(context.Background(), patientID, t)
	return out
}
