package typesys

import "sync"

// Visibility is shared by fields and methods.
type Visibility uint8

const (
	VisibilityPrivate Visibility = iota
	VisibilityPublic
	VisibilityProtected
	VisibilityInternal
)

// FieldAttrs carries a field's Static flag and visibility.
type FieldAttrs struct {
	Static bool
	Visibility Visibility
}

// Field is one declared field of a type: a name, its attributes, and a
// MaybeUnloaded type handle, plus the three lazily-populated caches spec §3
// names (layout, instance offset, static offset).
type Field struct {
	Name string
	Attrs FieldAttrs
	Type *TypeHandle

	mu sync.Mutex
	cachedLayout *Layout
	cachedOffset *uintptr
	cachedStaticOffset *uintptr
}

// NewField constructs a field with empty caches.
func NewField(name string, attrs FieldAttrs, ty *TypeHandle) *Field {
	return &Field{Name: name, Attrs: attrs, Type: ty}
}

// CachedLayout returns the memoized value layout, if any.
func (f *Field) CachedLayout() (Layout, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.cachedLayout == nil {
		return Layout{}, false
	}
	return *f.cachedLayout, true
}

// SetCachedLayout memoizes this field's value layout.
func (f *Field) SetCachedLayout(l Layout) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.cachedLayout = &l
}

// CachedOffset returns the memoized instance offset, if any.
func (f *Field) CachedOffset() (uintptr, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.cachedOffset == nil {
		return 0, false
	}
	return *f.cachedOffset, true
}

// SetCachedOffset memoizes this field's instance offset.
func (f *Field) SetCachedOffset(off uintptr) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.cachedOffset = &off
}

// CachedStaticOffset returns the memoized static offset, if any.
func (f *Field) CachedStaticOffset() (uintptr, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.cachedStaticOffset == nil {
		return 0, false
	}
	return *f.cachedStaticOffset, true
}

// SetCachedStaticOffset memoizes this field's static offset.
func (f *Field) SetCachedStaticOffset(off uintptr) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.cachedStaticOffset = &off
}
