package errors

import (
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestE(t *testing.T) {
	base := New("boom")

	err := E(NotFound, "lead %s not found", "l1", base)
	assert.Equal(t, "lead l1 not found: boom", err.Error())
	assert.Equal(t, NotFound, KindOf(err))
	assert.True(t, Is(err, base))
}

func TestKindOfWrapped(t *testing.T) {
	inner := E(Conflict, "duplicate lead")
	outer := fmt.Errorf("creating lead: %w", inner)

	assert.Equal(t, Conflict, KindOf(outer))
	assert.True(t, IsKind(outer, Conflict))
	assert.False(t, IsKind(nil, Conflict))

	// A wrapper without its own kind inherits the inner one.
	assert.Equal(t, Conflict, KindOf(E("import row 3", inner)))
	assert.Equal(t, Other, KindOf(New("plain")))
}

func TestHTTPStatus(t *testing.T) {
	cases := map[Kind]int{
		Invalid:      http.StatusBadRequest,
		NotFound:     http.StatusNotFound,
		Conflict:     http.StatusConflict,
		Unauthorized: http.StatusUnauthorized,
		Forbidden:    http.StatusForbidden,
		Unconfirmed:  http.StatusPreconditionRequired,
		Internal:     http.StatusInternalServerError,
		Other:        http.StatusInternalServerError,
	}
	for kind, want := range cases {
		assert.Equal(t, want, kind.HTTPStatus(), kind.String())
	}
}

func TestErrorWithoutMessage(t *testing.T) {
	assert.Equal(t, "entity not found", E(NotFound).Error())
	assert.Equal(t, "boom", E(Internal, New("boom")).Error())
}
