package market

import (
	"fmt"
	"sort"
	"sync"

	"github.com/uhyunpark/hyperspot/pkg/app/core"
)

// Registry manages instruments in a thread-safe manner.
// Instruments are copied in and out; callers never share a pointer with it.
type Registry struct {
	mu          sync.RWMutex
	instruments map[string]Instrument // id -> instrument
}

// NewRegistry creates an empty instrument registry
func NewRegistry() *Registry {
	return &Registry{
		instruments: make(map[string]Instrument),
	}
}

// Register adds a new instrument.
// Returns error if an instrument with the same id already exists.
func (r *Registry) Register(inst *Instrument) error {
	if inst == nil {
		return fmt.Errorf("cannot register nil instrument")
	}
	if err := inst.Validate(); err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.instruments[inst.ID]; exists {
		return fmt.Errorf("instrument %s already registered", inst.ID)
	}

	r.instruments[inst.ID] = *inst
	return nil
}

// Get retrieves an instrument by id
func (r *Registry) Get(id string) (Instrument, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	inst, exists := r.instruments[id]
	if !exists {
		return Instrument{}, fmt.Errorf("%w: %s", core.ErrUnknownInstrument, id)
	}
	return inst, nil
}

// List returns all registered instruments sorted by id
func (r *Registry) List() []Instrument {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]Instrument, 0, len(r.instruments))
	for _, inst := range r.instruments {
		out = append(out, inst)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// SetStatus pauses or resumes trading on an instrument
func (r *Registry) SetStatus(id string, status Status) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	inst, exists := r.instruments[id]
	if !exists {
		return fmt.Errorf("%w: %s", core.ErrUnknownInstrument, id)
	}
	inst.Status = status
	r.instruments[id] = inst
	return nil
}

// Exists checks if an instrument is registered
func (r *Registry) Exists(id string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, exists := r.instruments[id]
	return exists
}

// AssetDecimals finds the precision of an asset across all instruments
func (r *Registry) AssetDecimals(asset string) (int32, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, inst := range r.instruments {
		if d, ok := inst.Decimals(asset); ok {
			return d, true
		}
	}
	return 0, false
}

// Count returns the number of registered instruments
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.instruments)
}
