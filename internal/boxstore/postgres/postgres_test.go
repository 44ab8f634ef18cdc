package postgres

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/koustreak/cloudbox/internal/boxstore"
	"github.com/koustreak/cloudbox/internal/errs"
)

const dsn = "postgres://cloudbox:pw@localhost:5432/cloudbox?sslmode=disable"

func TestNew_Queries(t *testing.T) {
	st, err := New(boxstore.DefaultDBConfig(dsn))
	require.NoError(t, err)
	assert.Equal(t, `SELECT name, provider, credentials::text, config::text FROM "data_boxes" WHERE name = $1`, st.getSQL)
	assert.Contains(t, st.listSQL, "ORDER BY name")

	cfg := boxstore.DefaultDBConfig(dsn)
	cfg.Table = "app.boxes"
	st, err = New(cfg)
	require.NoError(t, err)
	assert.Contains(t, st.getSQL, `FROM "app"."boxes"`)

	cfg.Table = `boxes"--`
	_, err = New(cfg)
	assert.Error(t, err)
}

func TestNotConnected(t *testing.T) {
	st, err := New(boxstore.DefaultDBConfig(dsn))
	require.NoError(t, err)
	_, err = st.Get(context.Background(), "reports")
	assert.Error(t, err)
	_, err = st.List(context.Background())
	assert.Error(t, err)
	assert.NoError(t, st.Close(context.Background()))
}

func TestPoolConfig(t *testing.T) {
	cfg := boxstore.DefaultDBConfig(dsn)
	cfg.MaxConns = 7
	cfg.ConnectTimeout = 3 * time.Second

	pc, err := poolConfig(cfg)
	require.NoError(t, err)
	assert.Equal(t, int32(7), pc.MaxConns)
	assert.Equal(t, int32(1), pc.MinConns)
	assert.Equal(t, 30*time.Minute, pc.MaxConnLifetime)
	assert.Equal(t, 3*time.Second, pc.ConnConfig.ConnectTimeout)

	pc, err = poolConfig(&boxstore.DBConfig{DSN: dsn})
	require.NoError(t, err)
	assert.Equal(t, int32(4), pc.MaxConns)

	_, err = poolConfig(&boxstore.DBConfig{DSN: "postgres://%zz"})
	assert.Error(t, err)
}

func TestMapError(t *testing.T) {
	assert.NoError(t, mapError(nil, "Get", ""))

	err := mapError(pgx.ErrNoRows, "Get", "reports")
	assert.True(t, errs.IsNotFound(err))
	assert.Contains(t, err.Error(), "reports")

	tests := []struct {
		code string
		want errs.Kind
	}{
		{"28P01", errs.KindAuthentication},
		{"42501", errs.KindPermission},
		{"42P01", errs.KindMalformedRequest},
		{"08006", errs.KindTransport},
		{"23505", errs.KindUnknown},
	}
	for _, tt := range tests {
		t.Run(tt.code, func(t *testing.T) {
			err := mapError(&pgconn.PgError{Code: tt.code, Message: "boom"}, "List", "")
			assert.Equal(t, tt.want, errs.KindOf(err))
		})
	}

	assert.True(t, errs.IsTransport(mapError(context.DeadlineExceeded, "Get", "x")))
	assert.Equal(t, errs.KindUnknown, errs.KindOf(mapError(errors.New("odd"), "Get", "x")))
}
