package httpx

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/odyssey-lms/odyssey-lms/internal/shared"
)

func TestRespondErrorCodes(t *testing.T) {
	cases := []struct {
		err    error
		status int
		code   string
	}{
		{shared.ErrUnauthenticated, http.StatusUnauthorized, shared.CodeUnauthenticated},
		{shared.ErrInvalidCredentials, http.StatusUnauthorized, shared.CodeUnauthenticated},
		{shared.ErrInvalidEscalationCredential, http.StatusUnauthorized, shared.CodeInvalidEscalationCredential},
		{fmt.Errorf("switch: %w", shared.ErrDepartmentNotFound), http.StatusNotFound, shared.CodeDepartmentNotFound},
		{shared.ErrNotAMember, http.StatusForbidden, shared.CodeNotAMember},
		{shared.ErrDepartmentInactive, http.StatusForbidden, shared.CodeDepartmentInactive},
		{shared.ErrNoActiveAdminSession, http.StatusForbidden, shared.CodeNoActiveAdminSession},
		{shared.ErrAuthorizationDenied, http.StatusForbidden, shared.CodeAuthorizationDenied},
		{errors.New("boom"), http.StatusInternalServerError, ""},
	}
	for _, tc := range cases {
		rec := httptest.NewRecorder()
		RespondError(rec, tc.err)
		require.Equal(t, tc.status, rec.Code, tc.err.Error())
		var body ProblemDetail
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
		require.Equal(t, tc.code, body.Code, tc.err.Error())
	}
}

func TestRespondErrorHidesInternalDetail(t *testing.T) {
	rec := httptest.NewRecorder()
	RespondError(rec, errors.New("pq: connection refused"))
	require.NotContains(t, rec.Body.String(), "connection refused")
}
