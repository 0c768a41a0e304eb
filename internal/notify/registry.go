package notify

import "sync"

// Registry maps platform names to messengers.
type Registry struct {
	mu         sync.RWMutex
	messengers map[string]Messenger
}

func NewRegistry() *Registry {
	return &Registry{messengers: make(map[string]Messenger)}
}

// Register adds m under its platform name, replacing any previous one.
func (r *Registry) Register(m Messenger) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.messengers[m.Platform()] = m
}

func (r *Registry) Get(platform string) (Messenger, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	m, ok := r.messengers[platform]
	return m, ok
}
