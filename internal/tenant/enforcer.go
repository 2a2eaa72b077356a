package tenant

import (
	"context"
	"database/sql"
	"errors"
	"reflect"

	console "authgate/internal/utils/logger"

	"gorm.io/gorm"
	"gorm.io/gorm/schema"
)

var (
	// ErrCrossTenantCreate is returned when an insert carries a TenantId that
	// does not match the request's tenant.
	ErrCrossTenantCreate = errors.New("cross-tenant create rejected")
	// ErrCrossTenantUpdate is returned when an update targets a row owned by a
	// different tenant.
	ErrCrossTenantUpdate = errors.New("cross-tenant update rejected")
)

type ChangeKind int

const (
	ChangeInsert ChangeKind = iota
	ChangeUpdate
)

// PendingChange describes one entity mutation about to be committed.
type PendingChange struct {
	Kind ChangeKind
	// TenantID is the value currently set on the entity by the caller.
	TenantID string
	// PersistedTenantID is the value currently stored for the row. Only
	// meaningful for updates; read fresh from the database, never from the
	// caller's tracked instance, so a caller cannot dodge the check by
	// mutating TenantId before saving.
	PersistedTenantID string
	// Fill assigns the tenant id on inserts that arrive without one.
	Fill func(tenantID string)
}

// Enforcer applies row-level tenant isolation to pending writes. It runs
// inside the same transaction as the writes it guards: a rejection fails the
// statement and rolls back the whole unit of work.
type Enforcer struct {
	log *console.Logger
}

func NewEnforcer() *Enforcer {
	return &Enforcer{log: console.New("TENANT-ISOLATION")}
}

// BeforeCommit checks every pending change against the request's tenant.
// With no tenant in context it is a no-op: platform-level operations bypass
// isolation entirely.
func (e *Enforcer) BeforeCommit(ctx context.Context, changes []PendingChange) error {
	tc, ok := FromContext(ctx)
	if !ok || !tc.HasTenant() {
		return nil
	}

	for _, change := range changes {
		switch change.Kind {
		case ChangeInsert:
			if change.TenantID == "" {
				if change.Fill != nil {
					change.Fill(tc.TenantID)
				}
				continue
			}
			if change.TenantID != tc.TenantID {
				e.log.Warn("blocked cross-tenant create: entity tenant=%s request tenant=%s", change.TenantID, tc.TenantID)
				return ErrCrossTenantCreate
			}
		case ChangeUpdate:
			if change.PersistedTenantID != tc.TenantID {
				e.log.Warn("blocked cross-tenant update: row tenant=%s request tenant=%s", change.PersistedTenantID, tc.TenantID)
				return ErrCrossTenantUpdate
			}
			// Moving a row out of the tenant is as bad as touching a foreign one.
			if change.TenantID != "" && change.TenantID != tc.TenantID {
				e.log.Warn("blocked tenant reassignment: new tenant=%s request tenant=%s", change.TenantID, tc.TenantID)
				return ErrCrossTenantUpdate
			}
		}
	}
	return nil
}

// IsolationPlugin wires the enforcer into gorm as before-create/before-update
// callbacks, so the check runs immediately before every persistence commit.
type IsolationPlugin struct {
	enforcer *Enforcer
}

func NewIsolationPlugin() *IsolationPlugin {
	return &IsolationPlugin{enforcer: NewEnforcer()}
}

func (p *IsolationPlugin) Name() string {
	return "tenant:isolation"
}

func (p *IsolationPlugin) Initialize(db *gorm.DB) error {
	if err := db.Callback().Create().Before("gorm:create").Register("tenant:isolation:create", p.beforeCreate); err != nil {
		return err
	}
	return db.Callback().Update().Before("gorm:update").Register("tenant:isolation:update", p.beforeUpdate)
}

func (p *IsolationPlugin) beforeCreate(db *gorm.DB) {
	stmt := db.Statement
	if stmt.Schema == nil {
		return
	}
	field := stmt.Schema.LookUpField("TenantID")
	if field == nil {
		return
	}

	switch stmt.ReflectValue.Kind() {
	case reflect.Slice, reflect.Array:
		for i := 0; i < stmt.ReflectValue.Len(); i++ {
			p.checkCreate(db, field, stmt.ReflectValue.Index(i))
			if db.Error != nil {
				return
			}
		}
	case reflect.Struct:
		p.checkCreate(db, field, stmt.ReflectValue)
	}
}

func (p *IsolationPlugin) checkCreate(db *gorm.DB, field *schema.Field, rv reflect.Value) {
	stmt := db.Statement
	current := ""
	if value, zero := field.ValueOf(stmt.Context, rv); !zero {
		if s, ok := value.(string); ok {
			current = s
		}
	}

	change := PendingChange{
		Kind:     ChangeInsert,
		TenantID: current,
		Fill: func(tenantID string) {
			_ = field.Set(stmt.Context, rv, tenantID)
		},
	}
	if err := p.enforcer.BeforeCommit(stmt.Context, []PendingChange{change}); err != nil {
		_ = db.AddError(err)
	}
}

func (p *IsolationPlugin) beforeUpdate(db *gorm.DB) {
	stmt := db.Statement
	if stmt.Schema == nil {
		return
	}
	field := stmt.Schema.LookUpField("TenantID")
	if field == nil {
		return
	}
	tc, ok := FromContext(stmt.Context)
	if !ok || !tc.HasTenant() {
		return
	}

	incoming := ""
	if stmt.ReflectValue.Kind() == reflect.Struct {
		if value, zero := field.ValueOf(stmt.Context, stmt.ReflectValue); !zero {
			if s, ok := value.(string); ok {
				incoming = s
			}
		}
	}

	persisted, found, err := p.persistedTenantID(db)
	if err != nil {
		_ = db.AddError(err)
		return
	}
	if !found {
		// Row cannot be attributed to a tenant (no primary key on the model,
		// e.g. a bulk conditional update). The incoming value is still checked.
		if incoming != "" && incoming != tc.TenantID {
			_ = db.AddError(ErrCrossTenantUpdate)
		}
		return
	}

	change := PendingChange{
		Kind:              ChangeUpdate,
		TenantID:          incoming,
		PersistedTenantID: persisted,
	}
	if err := p.enforcer.BeforeCommit(stmt.Context, []PendingChange{change}); err != nil {
		_ = db.AddError(err)
	}
}

// persistedTenantID reads the stored tenant id for the row targeted by the
// update. The read runs on the same connection (and transaction) as the
// update itself, so the compared value is the one the commit would overwrite.
func (p *IsolationPlugin) persistedTenantID(db *gorm.DB) (string, bool, error) {
	stmt := db.Statement
	pkField := stmt.Schema.PrioritizedPrimaryField
	if pkField == nil || stmt.ReflectValue.Kind() != reflect.Struct {
		return "", false, nil
	}
	pkValue, zero := pkField.ValueOf(stmt.Context, stmt.ReflectValue)
	if zero {
		return "", false, nil
	}

	var persisted sql.NullString
	row := db.Session(&gorm.Session{NewDB: true}).
		Table(stmt.Table).
		Select("tenant_id").
		Where("id = ?", pkValue).
		Row()
	if err := row.Scan(&persisted); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return "", false, nil
		}
		return "", false, err
	}
	return persisted.String, true, nil
}
