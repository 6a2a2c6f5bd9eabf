// Package ipctable correlates files in different processes that refer to
// the same kernel object. Files key into the table through their class's
// hash and equality predicate; matching files become endpoints of one
// shared object.
package ipctable

import (
	"sync"

	"github.com/fdscan/fdscan/pkg/fdclass"
)

const bucketCount = 997

// Object is one kernel-level shared resource and its endpoint list.
type Object struct {
	class     fdclass.IPCClass
	identity  uint64
	endpoints []*fdclass.File
}

var _ fdclass.IPCObject = (*Object)(nil)

// Endpoints returns the files currently attached, oldest first.
func (o *Object) Endpoints() []*fdclass.File {
	return o.endpoints
}

// Table is the content-addressed correlation table. Zero value is not
// usable; call New. Safe for concurrent use only when built with
// NewConcurrent.
type Table struct {
	mu      *sync.Mutex
	buckets [bucketCount][]*Object
	byFile  map[*fdclass.File]*Object
}

var _ fdclass.IPCRegistry = (*Table)(nil)

func New() *Table {
	return &Table{byFile: make(map[*fdclass.File]*Object)}
}

// NewConcurrent returns a table whose operations take an internal lock,
// for the parallel scan mode.
func NewConcurrent() *Table {
	t := New()
	t.mu = &sync.Mutex{}
	return t
}

func (t *Table) lock() func() {
	if t.mu == nil {
		return func() {}
	}
	t.mu.Lock()
	return t.mu.Unlock
}

// Attach finds the object f belongs to, creating it on first sight, and
// links f as an endpoint.
func (t *Table) Attach(c fdclass.IPCClass, f *fdclass.File) fdclass.IPCObject {
	defer t.lock()()

	slot := c.Hash(f) % bucketCount
	var obj *Object
	for _, cand := range t.buckets[slot] {
		if cand.class == c && c.IsSame(cand.identity, f) {
			obj = cand
			break
		}
	}
	if obj == nil {
		obj = &Object{class: c, identity: c.Identity(f)}
		t.buckets[slot] = append(t.buckets[slot], obj)
	}
	obj.endpoints = append(obj.endpoints, f)
	t.byFile[f] = obj
	return obj
}

// Detach drops f's endpoint. The object itself stays in its bucket even
// when its last endpoint goes; abandoned objects are only reclaimed with
// the table at end of scan.
func (t *Table) Detach(f *fdclass.File) {
	defer t.lock()()

	obj, ok := t.byFile[f]
	if !ok {
		return
	}
	delete(t.byFile, f)
	for i, e := range obj.endpoints {
		if e == f {
			obj.endpoints = append(obj.endpoints[:i], obj.endpoints[i+1:]...)
			break
		}
	}
}

// Len reports the number of live endpoints, mainly for tests and metrics.
func (t *Table) Len() int {
	defer t.lock()()
	return len(t.byFile)
}
