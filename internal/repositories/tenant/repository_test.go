package tenant

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"net/http"
	"testing"
	"time"

	"github.com/Gobusters/ectoerror/httperror"
	"github.com/Gobusters/ectologger"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Ramsey-B/fern/pkg/database"
	"github.com/Ramsey-B/fern/pkg/models"
)

type fakeTx struct {
	execs      []string
	execErrs   map[int]error
	committed  bool
	rolledBack bool
}

func (t *fakeTx) IsOpen() bool { return !t.committed && !t.rolledBack }

func (t *fakeTx) Commit(_ context.Context) error {
	t.committed = true
	return nil
}

func (t *fakeTx) Rollback(_ context.Context) error {
	if !t.committed {
		t.rolledBack = true
	}
	return nil
}

func (t *fakeTx) ExecContext(_ context.Context, query string, _ ...any) (sql.Result, error) {
	idx := len(t.execs)
	t.execs = append(t.execs, query)
	if err, ok := t.execErrs[idx]; ok {
		return nil, err
	}
	return driver.RowsAffected(1), nil
}

func (t *fakeTx) GetContext(_ context.Context, _ any, _ string, _ ...any) error { return sql.ErrNoRows }

func (t *fakeTx) SelectContext(_ context.Context, _ any, _ string, _ ...any) error { return nil }

func (t *fakeTx) QueryRowxContext(_ context.Context, _ string, _ ...any) *sqlx.Row { return nil }

type fakeDB struct {
	tx *fakeTx
}

func (d *fakeDB) GetTx(ctx context.Context, _ *sql.TxOptions) (context.Context, database.Tx, error) {
	return ctx, d.tx, nil
}

func (d *fakeDB) BeginTxx(_ context.Context, _ *sql.TxOptions) (*sqlx.Tx, error) { return nil, nil }
func (d *fakeDB) Close() error                                                   { return nil }
func (d *fakeDB) ExecContext(_ context.Context, _ string, _ ...any) (sql.Result, error) {
	return driver.RowsAffected(1), nil
}
func (d *fakeDB) GetContext(_ context.Context, _ any, _ string, _ ...any) error { return sql.ErrNoRows }
func (d *fakeDB) NamedExecContext(_ context.Context, _ string, _ any) (sql.Result, error) {
	return driver.RowsAffected(1), nil
}
func (d *fakeDB) PingContext(_ context.Context) error                         { return nil }
func (d *fakeDB) QueryRowxContext(_ context.Context, _ string, _ ...any) *sqlx.Row { return nil }
func (d *fakeDB) QueryxContext(_ context.Context, _ string, _ ...any) (*sqlx.Rows, error) {
	return nil, nil
}
func (d *fakeDB) Rebind(q string) string                                    { return q }
func (d *fakeDB) SelectContext(_ context.Context, _ any, _ string, _ ...any) error { return nil }
func (d *fakeDB) SetConnMaxLifetime(_ time.Duration)                        {}
func (d *fakeDB) SetMaxIdleConns(_ int)                                     {}
func (d *fakeDB) SetMaxOpenConns(_ int)                                     {}
func (d *fakeDB) Stats() sql.DBStats                                        { return sql.DBStats{} }
func (d *fakeDB) Unsafe() *sqlx.DB                                          { return nil }

func newTestRepo(tx *fakeTx) *Repository {
	logger := ectologger.NewEctoLogger(func(_ ectologger.EctoLogMessage) {})
	return NewRepository(&fakeDB{tx: tx}, logger)
}

func TestCreateCommitsTenantAndSourcesTogether(t *testing.T) {
	tx := &fakeTx{}
	repo := newTestRepo(tx)

	tenant := &models.Tenant{
		Name: "Acme",
		Sources: models.SourceList{
			{ID: "team-1", Type: models.SourceTypeTeams},
			{ID: "W1", Type: models.SourceTypeSlack},
		},
	}

	created, err := repo.Create(context.Background(), tenant)
	require.NoError(t, err)
	assert.NotEmpty(t, created.ID)

	assert.True(t, tx.committed)
	assert.False(t, tx.rolledBack)

	require.Len(t, tx.execs, 3)
	assert.Contains(t, tx.execs[0], "tenants")
	assert.Contains(t, tx.execs[1], "tenant_sources")
	assert.Contains(t, tx.execs[2], "tenant_sources")
}

func TestCreateRollsBackWhenSourceBelongsElsewhere(t *testing.T) {
	// The second statement (the first source link) hits the global unique
	// constraint: the source already belongs to another tenant.
	tx := &fakeTx{execErrs: map[int]error{1: &pq.Error{Code: "23505"}}}
	repo := newTestRepo(tx)

	tenant := &models.Tenant{
		Name: "Acme",
		Sources: models.SourceList{
			{ID: "team-1", Type: models.SourceTypeTeams},
		},
	}

	_, err := repo.Create(context.Background(), tenant)
	require.Error(t, err)
	assert.True(t, httperror.IsHTTPError(err))
	assert.Equal(t, http.StatusConflict, httperror.GetStatusCode(err))

	// No sourceless tenant row survives the conflict.
	assert.False(t, tx.committed)
	assert.True(t, tx.rolledBack)
}

func TestCreateRollsBackWhenInsertFails(t *testing.T) {
	tx := &fakeTx{execErrs: map[int]error{0: sql.ErrConnDone}}
	repo := newTestRepo(tx)

	_, err := repo.Create(context.Background(), &models.Tenant{Name: "Acme"})
	require.Error(t, err)
	assert.False(t, tx.committed)
	assert.True(t, tx.rolledBack)
}
