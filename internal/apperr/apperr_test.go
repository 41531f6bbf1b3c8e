package apperr

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewAndWrap(t *testing.T) {
	e := New(InvalidKey, "bad key")
	assert.Equal(t, "InvalidKey: bad key", e.Error())
	assert.Nil(t, e.Unwrap())

	inner := errors.New("boom")
	w := Wrap(StorageError, inner, "write failed")
	assert.ErrorIs(t, w, inner)
	assert.Contains(t, w.Error(), "boom")
}

func TestKindOfDefaultsToInternal(t *testing.T) {
	assert.Equal(t, Internal, KindOf(errors.New("plain")))
	assert.Equal(t, InvalidKey, KindOf(New(InvalidKey, "x")))
	assert.Equal(t, Kind(""), KindOf(nil))
}

func TestExitCodeAndHTTPStatusTablesAgree(t *testing.T) {
	kinds := []Kind{
		InvalidInput, InvalidToken, InvalidKey, InvalidSignature, ClaimInvalid,
		AmbiguousKey, NotFound, StorageError, CryptoError, NonInteractive,
		MissingEnv, IOError, CsrfRejected, OriginRejected, Internal,
	}
	for _, k := range kinds {
		err := New(k, "test")
		require.NotZero(t, ExitCode(err))
		require.NotZero(t, HTTPStatus(err))
	}
	assert.Equal(t, 0, ExitCode(nil))
	assert.Equal(t, 200, HTTPStatus(nil))
}

func TestUnknownErrorMapsToWorstCase(t *testing.T) {
	err := errors.New("unclassified")
	assert.Equal(t, 14, ExitCode(err))
	assert.Equal(t, 500, HTTPStatus(err))
}
