package repository

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"errors"
	"maps"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testKey = "0123456789abcdef0123456789abcdef"

func newMock(t *testing.T) (*sql.DB, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() {
		assert.NoError(t, mock.ExpectationsWereMet())
		db.Close()
	})
	return db, mock
}

// sealedAs matches a credentials argument that decodes to want.
type sealedAs struct {
	codec CredentialCodec
	want  map[string]string
}

func (s sealedAs) Match(v driver.Value) bool {
	b, ok := v.([]byte)
	if !ok {
		return false
	}
	got, err := s.codec.Decode(b)
	return err == nil && maps.Equal(got, s.want)
}

func TestEncryptedCodec(t *testing.T) {
	codec, err := NewEncryptedCodec(testKey)
	require.NoError(t, err)

	sealed, err := codec.Encode(map[string]string{"access_token": "secret"})
	require.NoError(t, err)
	assert.NotContains(t, string(sealed), "secret")

	values, err := codec.Decode(sealed)
	require.NoError(t, err)
	assert.Equal(t, map[string]string{"access_token": "secret"}, values)

	other, err := NewEncryptedCodec("fedcba9876543210fedcba9876543210")
	require.NoError(t, err)
	_, err = other.Decode(sealed)
	assert.Error(t, err)

	_, err = NewEncryptedCodec("short")
	assert.Error(t, err)

	empty, err := codec.Decode(nil)
	require.NoError(t, err)
	assert.Empty(t, empty)
}

func TestTransactorCommits(t *testing.T) {
	db, mock := newMock(t)
	mock.ExpectBegin()
	mock.ExpectExec("DELETE FROM queue_entries").WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	err := NewTransactor(db).WithinTx(context.Background(), func(tx *sql.Tx) error {
		_, err := tx.Exec("DELETE FROM queue_entries WHERE id = 1")
		return err
	})
	assert.NoError(t, err)
}

func TestTransactorRollsBack(t *testing.T) {
	db, mock := newMock(t)
	mock.ExpectBegin()
	mock.ExpectRollback()

	boom := errors.New("boom")
	err := NewTransactor(db).WithinTx(context.Background(), func(tx *sql.Tx) error {
		return boom
	})
	assert.ErrorIs(t, err, boom)
}
