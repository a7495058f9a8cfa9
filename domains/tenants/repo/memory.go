package repo

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/nekotab/control-plane/domains/tenants/service"
)

// MemoryRepository is a simple in-memory implementation suitable for tests
// and early development.
type MemoryRepository struct {
	mu          sync.RWMutex
	byID        map[string]service.Tenant
	bySubdomain map[string]string
}

// NewMemoryRepository constructs a MemoryRepository.
func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{
		byID:        make(map[string]service.Tenant),
		bySubdomain: make(map[string]string),
	}
}

func (r *MemoryRepository) Create(ctx context.Context, t service.Tenant) (service.Tenant, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.bySubdomain[t.Subdomain]; exists {
		return service.Tenant{}, service.ErrDuplicateSubdomain
	}

	r.byID[t.ID] = t
	r.bySubdomain[t.Subdomain] = t.ID
	return t, nil
}

func (r *MemoryRepository) Update(ctx context.Context, t service.Tenant) (service.Tenant, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.byID[t.ID]; !ok {
		return service.Tenant{}, service.ErrNotFound
	}
	r.byID[t.ID] = t
	return t, nil
}

func (r *MemoryRepository) Get(ctx context.Context, id string) (service.Tenant, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	t, ok := r.byID[id]
	if !ok {
		return service.Tenant{}, service.ErrNotFound
	}
	return t, nil
}

func (r *MemoryRepository) FindBySubdomain(ctx context.Context, subdomain string) (service.Tenant, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	id, ok := r.bySubdomain[subdomain]
	if !ok {
		return service.Tenant{}, service.ErrNotFound
	}
	return r.byID[id], nil
}

func (r *MemoryRepository) List(ctx context.Context, opts service.ListOptions) (service.ListResult, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	items := make([]service.Tenant, 0, len(r.byID))
	for _, t := range r.byID {
		if opts.Status != nil && t.Status != *opts.Status {
			continue
		}
		items = append(items, t)
	}

	sort.Slice(items, func(i, j int) bool {
		if items[i].CreatedAt.Equal(items[j].CreatedAt) {
			return items[i].ID < items[j].ID
		}
		return items[i].CreatedAt.Before(items[j].CreatedAt)
	})

	page := opts.Page
	if page < 1 {
		page = 1
	}
	pageSize := opts.PageSize
	if pageSize <= 0 {
		pageSize = 20
	}

	start := (page - 1) * pageSize
	end := start + pageSize
	if start > len(items) {
		start = len(items)
	}
	if end > len(items) {
		end = len(items)
	}

	totalPages := (len(items) + pageSize - 1) / pageSize

	return service.ListResult{
		Tenants:    items[start:end],
		Page:       page,
		PageSize:   pageSize,
		TotalItems: len(items),
		TotalPages: totalPages,
	}, nil
}

func (r *MemoryRepository) StatusCounts(ctx context.Context) (map[service.Status]int, int, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	counts := make(map[service.Status]int)
	tournaments := 0
	for _, t := range r.byID {
		counts[t.Status]++
		tournaments += t.TournamentCount
	}
	return counts, tournaments, nil
}

// Ensure interface compliance.
var _ service.Repository = (*MemoryRepository)(nil)

// MemoryAuditLog records audit entries in memory for tests.
type MemoryAuditLog struct {
	mu      sync.Mutex
	entries []service.AuditEntry
}

// NewMemoryAuditLog constructs a MemoryAuditLog.
func NewMemoryAuditLog() *MemoryAuditLog {
	return &MemoryAuditLog{}
}

func (l *MemoryAuditLog) Append(ctx context.Context, entry service.AuditEntry) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now().UTC()
	}
	l.entries = append(l.entries, entry)
	return nil
}

func (l *MemoryAuditLog) List(ctx context.Context, tenantID string, limit int) ([]service.AuditEntry, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if limit <= 0 {
		limit = 100
	}
	var out []service.AuditEntry
	for _, e := range l.entries {
		if e.TenantID != tenantID {
			continue
		}
		out = append(out, e)
		if len(out) == limit {
			break
		}
	}
	return out, nil
}

// Entries returns a copy of the recorded entries.
func (l *MemoryAuditLog) Entries() []service.AuditEntry {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]service.AuditEntry, len(l.entries))
	copy(out, l.entries)
	return out
}

var _ service.AuditLog = (*MemoryAuditLog)(nil)
