package keys

import (
	"context"
	"errors"
	"testing"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vnmchuo/inference-gateway/internal/provider"
)

type fakeRow struct {
	key string
	err error
}

func (r fakeRow) Scan(dest ...any) error {
	if r.err != nil {
		return r.err
	}
	*dest[0].(*string) = r.key
	return nil
}

type fakeDB struct {
	row  fakeRow
	tag  string
	args []any
}

func (db *fakeDB) QueryRow(_ context.Context, _ string, args ...any) pgx.Row {
	db.args = args
	return db.row
}

func (db *fakeDB) Exec(_ context.Context, _ string, args ...any) (pgconn.CommandTag, error) {
	db.args = args
	return pgconn.NewCommandTag(db.tag), nil
}

func TestPostgresStore_APIKey(t *testing.T) {
	s := NewPostgresStore(&fakeDB{row: fakeRow{key: "sk-db"}})
	key, err := s.APIKey(context.Background(), provider.OpenAI)
	require.NoError(t, err)
	assert.Equal(t, "sk-db", key)

	s = NewPostgresStore(&fakeDB{row: fakeRow{err: pgx.ErrNoRows}})
	_, err = s.APIKey(context.Background(), provider.OpenAI)
	assert.ErrorIs(t, err, provider.ErrNoAPIKey)

	s = NewPostgresStore(&fakeDB{row: fakeRow{err: errors.New("boom")}})
	_, err = s.APIKey(context.Background(), provider.OpenAI)
	assert.Error(t, err)
	assert.NotErrorIs(t, err, provider.ErrNoAPIKey)
}

func TestPostgresStore_PutAndRevoke(t *testing.T) {
	db := &fakeDB{tag: "UPDATE 0"}
	s := NewPostgresStore(db)

	require.NoError(t, s.Put(context.Background(), provider.Google, "g-key"))
	assert.Equal(t, []any{provider.Google, "g-key"}, db.args)
	assert.Error(t, s.Put(context.Background(), provider.Google, ""))

	assert.ErrorIs(t, s.Revoke(context.Background(), provider.Google), provider.ErrNoAPIKey)
	db.tag = "UPDATE 1"
	assert.NoError(t, s.Revoke(context.Background(), provider.Google))
}

type brokenLookup struct{}

func (brokenLookup) APIKey(context.Context, string) (string, error) {
	return "", errors.New("database unavailable")
}

func TestChain(t *testing.T) {
	chain := Chain{brokenLookup{}, provider.StaticKeys{}, FromEnv("sk-env", "", "")}

	key, err := chain.APIKey(context.Background(), provider.OpenAI)
	require.NoError(t, err)
	assert.Equal(t, "sk-env", key)

	_, err = chain.APIKey(context.Background(), provider.Google)
	assert.ErrorIs(t, err, provider.ErrNoAPIKey)
}

func TestFromEnvSkipsEmpty(t *testing.T) {
	keys := FromEnv("", "g", "")
	assert.Len(t, keys, 1)
	assert.Equal(t, "g", keys[provider.Google])
}
