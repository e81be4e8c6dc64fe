package tonic

import (
	"fmt"
	"sync"
)

// ID identifies a registered essence. Zero means "none". Ids are assigned
// at registration, grow monotonically and are never reused within a
// process.
type ID int64

// Ledger is the process-wide registry of live essences and named service
// singletons. It carries no ownership semantics of its own: every operation
// is a short lock-scoped map mutation or read, and no lock is ever held
// across a handler invocation.
type Ledger struct {
	mu       sync.Mutex
	lastID   ID
	byID     map[ID]Registrant
	services map[string]*serviceRecord
}

// serviceRecord tracks one live service singleton: who created it and who
// is currently accessing it. Accessors never own the singleton; ownership
// stays with the creating context (the singleton sits in its bindings).
type serviceRecord struct {
	class     *Class
	id        ID
	creator   ID
	accessors map[ID]struct{}
}

func NewLedger() *Ledger {
	return &Ledger{
		byID:     make(map[ID]Registrant),
		services: make(map[string]*serviceRecord),
	}
}

// Register assigns the next id to r and stores it. The id is written into
// the essence core before it becomes visible to Lookup.
func (l *Ledger) Register(r Registrant) ID {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.lastID++
	id := l.lastID
	r.Core().id = id
	l.byID[id] = r
	return id
}

func (l *Ledger) Unregister(id ID) {
	l.mu.Lock()
	delete(l.byID, id)
	l.mu.Unlock()
}

// Lookup returns the registrant for id or ErrEssenceNotFound.
func (l *Ledger) Lookup(id ID) (Registrant, error) {
	l.mu.Lock()
	r, ok := l.byID[id]
	l.mu.Unlock()
	if !ok {
		return nil, fmt.Errorf("lookup essence %d: %w", id, ErrEssenceNotFound)
	}
	return r, nil
}

// Len reports the number of registered essences.
func (l *Ledger) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.byID)
}

// RegisterService binds name to an already-registered singleton. The ledger
// is the atomic arbiter for name claims: a name can be bound at most once
// while its singleton lives.
func (l *Ledger) RegisterService(name string, r Registrant, class *Class, creator ID) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if _, exists := l.services[name]; exists {
		return fmt.Errorf("register service %q: %w", name, ErrServiceNameConflict)
	}
	l.services[name] = &serviceRecord{
		class:     class,
		id:        r.Core().id,
		creator:   creator,
		accessors: make(map[ID]struct{}),
	}
	return nil
}

// LookupService returns the live singleton bound to name, if any.
func (l *Ledger) LookupService(name string) (Registrant, bool) {
	l.mu.Lock()
	rec, ok := l.services[name]
	if !ok {
		l.mu.Unlock()
		return nil, false
	}
	r, ok := l.byID[rec.id]
	l.mu.Unlock()
	return r, ok
}

// serviceFor returns the owning class and singleton id bound to name.
func (l *Ledger) serviceFor(name string) (*Class, ID, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	rec, ok := l.services[name]
	if !ok {
		return nil, 0, false
	}
	return rec.class, rec.id, true
}

// addAccessor tracks id as a live accessor of the named service.
func (l *Ledger) addAccessor(name string, id ID) {
	l.mu.Lock()
	if rec, ok := l.services[name]; ok {
		rec.accessors[id] = struct{}{}
	}
	l.mu.Unlock()
}

// releaseAccessor drops id from every accessor set it appears in. Called
// when the essence behind id completes its finish.
func (l *Ledger) releaseAccessor(id ID) {
	l.mu.Lock()
	for _, rec := range l.services {
		delete(rec.accessors, id)
	}
	l.mu.Unlock()
}

// dropServiceByID removes the service record whose singleton is id and
// returns a snapshot of its accessors for notification. ok is false when id
// is not a service singleton.
func (l *Ledger) dropServiceByID(id ID) (accessors []ID, ok bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	for name, rec := range l.services {
		if rec.id != id {
			continue
		}
		accessors = make([]ID, 0, len(rec.accessors))
		for a := range rec.accessors {
			accessors = append(accessors, a)
		}
		delete(l.services, name)
		return accessors, true
	}
	return nil, false
}
