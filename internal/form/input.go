package form

import (
	"sort"
	"sync"

	"github.com/zclconf/go-cty/cty"

	"github.com/vk/jform/internal/ctyconv"
	"github.com/vk/jform/internal/registry"
)

// Input is the host input contract. Implementations must not notify
// subscribers from SetValue; only genuine user edits are change events.
type Input interface {
	Name() string
	// Declared returns the defaults the input declares about itself.
	Declared() registry.Binding
	Value() cty.Value
	SetValue(v cty.Value)
	// Invalid reports the host's own validity verdict.
	Invalid() bool
	// SetInvalid marks or clears the input as invalid for display.
	SetInvalid(invalid bool)
	SetShown(shown bool)
	SetProperty(name string, v cty.Value)
	// ToggleChangeTrigger forces the host to re-run its internal validation.
	ToggleChangeTrigger()
	// Subscribe registers a change listener and returns its cancel func.
	Subscribe(fn func(v cty.Value)) (unsubscribe func())
}

// Validator decides whether a value is acceptable to a MemoryInput.
type Validator func(v cty.Value) bool

// MemoryInput is an in-memory Input used by the CLI, the HTTP API and tests.
type MemoryInput struct {
	mu            sync.Mutex
	declared      registry.Binding
	value         cty.Value
	shown         bool
	marked        bool
	changeTrigger bool
	validator     Validator
	properties    map[string]cty.Value
	listeners     map[int]func(cty.Value)
	nextListener  int
}

var _ Input = (*MemoryInput)(nil)

// NewMemoryInput creates an input that declares b. The input starts with the
// declared value, or null.
func NewMemoryInput(b registry.Binding) *MemoryInput {
	value := ctyconv.Null
	if b.Value.Type() != cty.NilType {
		value = b.Value
	}
	return &MemoryInput{
		declared:   b,
		value:      value,
		shown:      true,
		properties: make(map[string]cty.Value),
		listeners:  make(map[int]func(cty.Value)),
	}
}

// WithValidator installs the host validity check and returns the input.
func (m *MemoryInput) WithValidator(v Validator) *MemoryInput {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.validator = v
	return m
}

// Name implements Input.
func (m *MemoryInput) Name() string { return m.declared.Name }

// Declared implements Input.
func (m *MemoryInput) Declared() registry.Binding { return m.declared }

// Value implements Input.
func (m *MemoryInput) Value() cty.Value {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.value
}

// SetValue implements Input. Listeners are not notified.
func (m *MemoryInput) SetValue(v cty.Value) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.value = ctyconv.Normalize(v)
}

// Invalid implements Input.
func (m *MemoryInput) Invalid() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.validator != nil && !m.validator(m.value)
}

// SetInvalid implements Input.
func (m *MemoryInput) SetInvalid(invalid bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.marked = invalid
}

// Marked reports whether the controller marked the input invalid.
func (m *MemoryInput) Marked() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.marked
}

// SetShown implements Input.
func (m *MemoryInput) SetShown(shown bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.shown = shown
}

// Shown reports the last visibility written by the controller.
func (m *MemoryInput) Shown() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.shown
}

// SetProperty implements Input.
func (m *MemoryInput) SetProperty(name string, v cty.Value) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.properties[name] = v
}

// Property returns a property written by the controller.
func (m *MemoryInput) Property(name string) (cty.Value, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	v, ok := m.properties[name]
	return v, ok
}

// ToggleChangeTrigger implements Input.
func (m *MemoryInput) ToggleChangeTrigger() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.changeTrigger = !m.changeTrigger
}

// ChangeTrigger returns the current state of the change trigger toggle.
func (m *MemoryInput) ChangeTrigger() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.changeTrigger
}

// Subscribe implements Input.
func (m *MemoryInput) Subscribe(fn func(v cty.Value)) func() {
	m.mu.Lock()
	defer m.mu.Unlock()
	id := m.nextListener
	m.nextListener++
	m.listeners[id] = fn
	return func() {
		m.mu.Lock()
		defer m.mu.Unlock()
		delete(m.listeners, id)
	}
}

// Listeners returns the number of active subscriptions.
func (m *MemoryInput) Listeners() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.listeners)
}

// Emit simulates a user edit: the value is stored and every listener is
// notified, in subscription order, outside the input's lock.
func (m *MemoryInput) Emit(v cty.Value) {
	m.mu.Lock()
	m.value = ctyconv.Normalize(v)
	ids := make([]int, 0, len(m.listeners))
	for id := range m.listeners {
		ids = append(ids, id)
	}
	sort.Ints(ids)
	fns := make([]func(cty.Value), 0, len(ids))
	for _, id := range ids {
		fns = append(fns, m.listeners[id])
	}
	value := m.value
	m.mu.Unlock()

	for _, fn := range fns {
		fn(value)
	}
}
