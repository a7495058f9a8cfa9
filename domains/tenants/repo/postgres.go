package repo

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5/pgconn"

	"github.com/nekotab/control-plane/domains/tenants/service"
	"github.com/nekotab/control-plane/platform/persistence"
)

// PostgresRepository persists tenants through the shared TenantStore.
type PostgresRepository struct {
	store *persistence.TenantStore
}

// NewPostgresRepository constructs a PostgresRepository.
func NewPostgresRepository(store *persistence.TenantStore) *PostgresRepository {
	if store == nil {
		panic("tenant store is required")
	}
	return &PostgresRepository{store: store}
}

func (r *PostgresRepository) Create(ctx context.Context, t service.Tenant) (service.Tenant, error) {
	rec, err := r.store.Insert(ctx, toRecord(t))
	if err != nil {
		if isUniqueViolation(err) {
			return service.Tenant{}, service.ErrDuplicateSubdomain
		}
		return service.Tenant{}, err
	}
	return fromRecord(rec), nil
}

func (r *PostgresRepository) Update(ctx context.Context, t service.Tenant) (service.Tenant, error) {
	rec, err := r.store.Update(ctx, toRecord(t))
	if err != nil {
		return service.Tenant{}, mapNotFound(err)
	}
	return fromRecord(rec), nil
}

func (r *PostgresRepository) Get(ctx context.Context, id string) (service.Tenant, error) {
	rec, err := r.store.GetByID(ctx, id)
	if err != nil {
		return service.Tenant{}, mapNotFound(err)
	}
	return fromRecord(rec), nil
}

func (r *PostgresRepository) FindBySubdomain(ctx context.Context, subdomain string) (service.Tenant, error) {
	rec, err := r.store.GetBySubdomain(ctx, subdomain)
	if err != nil {
		return service.Tenant{}, mapNotFound(err)
	}
	return fromRecord(rec), nil
}

func (r *PostgresRepository) List(ctx context.Context, opts service.ListOptions) (service.ListResult, error) {
	page := opts.Page
	if page < 1 {
		page = 1
	}
	pageSize := opts.PageSize
	if pageSize <= 0 {
		pageSize = 20
	}

	var status *string
	if opts.Status != nil {
		s := string(*opts.Status)
		status = &s
	}

	recs, total, err := r.store.List(ctx, status, pageSize, (page-1)*pageSize)
	if err != nil {
		return service.ListResult{}, err
	}

	tenants := make([]service.Tenant, 0, len(recs))
	for _, rec := range recs {
		tenants = append(tenants, fromRecord(rec))
	}

	return service.ListResult{
		Tenants:    tenants,
		Page:       page,
		PageSize:   pageSize,
		TotalItems: total,
		TotalPages: (total + pageSize - 1) / pageSize,
	}, nil
}

func (r *PostgresRepository) StatusCounts(ctx context.Context) (map[service.Status]int, int, error) {
	raw, tournaments, err := r.store.StatusCounts(ctx)
	if err != nil {
		return nil, 0, err
	}
	counts := make(map[service.Status]int, len(raw))
	for status, n := range raw {
		counts[service.StatusFromString(status)] += n
	}
	return counts, tournaments, nil
}

func mapNotFound(err error) error {
	if errors.Is(err, persistence.ErrNotFound) {
		return service.ErrNotFound
	}
	return err
}

// isUniqueViolation detects the duplicate-subdomain unique index trip.
func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}

func toRecord(t service.Tenant) persistence.TenantRecord {
	return persistence.TenantRecord{
		ID:              t.ID,
		Subdomain:       t.Subdomain,
		Name:            t.Name,
		OwnerEmail:      t.OwnerEmail,
		OwnerID:         t.OwnerID,
		DBName:          t.DBName,
		DBUser:          t.DBUser,
		DBPasswordEnc:   t.DBPasswordEnc,
		SecretKeyEnc:    t.SecretKeyEnc,
		Status:          string(t.Status),
		Plan:            t.Plan,
		CPULimit:        t.CPULimit,
		MemoryLimit:     t.MemoryLimit,
		SuspendReason:   t.SuspendReason,
		CreatedAt:       t.CreatedAt,
		ActivatedAt:     t.ActivatedAt,
		SuspendedAt:     t.SuspendedAt,
		DeletedAt:       t.DeletedAt,
		TournamentCount: t.TournamentCount,
		TotalRequests:   t.TotalRequests,
	}
}

func fromRecord(rec persistence.TenantRecord) service.Tenant {
	return service.Tenant{
		ID:              rec.ID,
		Subdomain:       rec.Subdomain,
		Name:            rec.Name,
		OwnerEmail:      rec.OwnerEmail,
		OwnerID:         rec.OwnerID,
		DBName:          rec.DBName,
		DBUser:          rec.DBUser,
		DBPasswordEnc:   rec.DBPasswordEnc,
		SecretKeyEnc:    rec.SecretKeyEnc,
		Status:          service.StatusFromString(rec.Status),
		Plan:            rec.Plan,
		CPULimit:        rec.CPULimit,
		MemoryLimit:     rec.MemoryLimit,
		SuspendReason:   rec.SuspendReason,
		CreatedAt:       rec.CreatedAt,
		ActivatedAt:     rec.ActivatedAt,
		SuspendedAt:     rec.SuspendedAt,
		DeletedAt:       rec.DeletedAt,
		TournamentCount: rec.TournamentCount,
		TotalRequests:   rec.TotalRequests,
	}
}

// Ensure interface compliance.
var _ service.Repository = (*PostgresRepository)(nil)
