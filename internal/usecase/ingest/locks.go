package ingest

import "sync"

// projectLocks hands out one mutex per project so store writes of a project
// run one at a time while other projects proceed.
type projectLocks struct {
	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

func newProjectLocks() *projectLocks {
	return &projectLocks{locks: make(map[string]*sync.Mutex)}
}

func (p *projectLocks) lock(projectID string) func() {
	p.mu.Lock()
	m, ok := p.locks[projectID]
	if !ok {
		m = &sync.Mutex{}
		p.locks[projectID] = m
	}
	p.mu.Unlock()

	m.Lock()
	return m.Unlock
}
