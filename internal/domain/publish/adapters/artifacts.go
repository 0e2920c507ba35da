package adapters

import (
	"context"
	"sync"

	"github.com/relicta-tech/launchpad/internal/domain/publish/ports"
)

const memoryArtifactScheme = "memory://"

// MemoryArtifactStore keeps artifacts in process memory. It backs
// deployments without an object store.
type MemoryArtifactStore struct {
	mu      sync.RWMutex
	objects map[string][]byte
}

// NewMemoryArtifactStore creates a MemoryArtifactStore.
func NewMemoryArtifactStore() *MemoryArtifactStore {
	return &MemoryArtifactStore{objects: make(map[string][]byte)}
}

// Ensure MemoryArtifactStore implements the interface.
var _ ports.ArtifactStore = (*MemoryArtifactStore)(nil)

// Put stores body under key.
func (s *MemoryArtifactStore) Put(_ context.Context, key string, body []byte) (string, error) {
	url := memoryArtifactScheme + key
	s.mu.Lock()
	s.objects[url] = append([]byte(nil), body...)
	s.mu.Unlock()
	return url, nil
}

// Fetch returns a copy of the artifact, or nil.
func (s *MemoryArtifactStore) Fetch(_ context.Context, url string) ([]byte, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	body, ok := s.objects[url]
	if !ok {
		return nil, nil
	}
	return append([]byte(nil), body...), nil
}
