package errors

import (
	stderrors "errors"
	"fmt"
	"net/http"
	"testing"
	"time"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func genCode() gopter.Gen {
	codes := make([]interface{}, 0, len(codeKinds))
	for code := range codeKinds {
		codes = append(codes, code)
	}
	return gen.OneConstOf(codes...)
}

// **Feature: error-taxonomy, Property 1: Code Identity Survives Wrapping**
// For any code and message, an error built from that code matches the
// same-coded sentinel through any number of fmt.Errorf wraps, and keeps its kind.
func TestCodeIdentitySurvivesWrapping(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 100
	parameters.Rng.Seed(time.Now().UnixNano())

	properties := gopter.NewProperties(parameters)

	properties.Property("wrapped errors match by code and keep kind", prop.ForAll(
		func(code Code, message string, depth int) bool {
			var err error = New(code, message)
			for i := 0; i < depth; i++ {
				err = fmt.Errorf("layer %d: %w", i, err)
			}

			if !stderrors.Is(err, &Error{Code: code}) {
				return false
			}
			if KindOf(err) != KindForCode(code) {
				return false
			}
			return CodeOf(err) == code
		},
		genCode(),
		gen.AlphaString(),
		gen.IntRange(0, 5),
	))

	properties.TestingRun(t)
}

func TestIs_DifferentCodesDoNotMatch(t *testing.T) {
	err := ErrFull.WithMessage("Trip is full")
	assert.True(t, stderrors.Is(err, ErrFull))
	assert.False(t, stderrors.Is(err, ErrAlreadyMember))
	assert.False(t, stderrors.Is(stderrors.New("plain"), ErrFull))
}

func TestKindOf_PlainError(t *testing.T) {
	assert.Equal(t, KindInternal, KindOf(stderrors.New("boom")))
	assert.Equal(t, Code(""), CodeOf(stderrors.New("boom")))
}

func TestAmbiguous(t *testing.T) {
	assert.False(t, Ambiguous(nil))
	assert.True(t, Ambiguous(stderrors.New("connection reset")))
	assert.True(t, Ambiguous(Transport(stderrors.New("dial tcp: refused"))))
	assert.True(t, Ambiguous(New(CodeUnavailable, "bad gateway")))
	assert.False(t, Ambiguous(ErrFull))
	assert.False(t, Ambiguous(ErrTooLate))
}

func TestFromResponse(t *testing.T) {
	tests := []struct {
		name     string
		status   int
		body     string
		wantCode Code
		wantKind Kind
	}{
		{"trip full", http.StatusBadRequest, `{"error":"This trip is full"}`, CodeFull, KindConflict},
		{"already member", http.StatusBadRequest, `{"error":"You are already a member of this trip"}`, CodeAlreadyMember, KindConflict},
		{"already cancelled", http.StatusBadRequest, `{"error":"This trip has already been cancelled"}`, CodeAlreadyCancelled, KindConflict},
		{"overlap", http.StatusBadRequest, `{"error":"You already have a trip that overlaps with these dates"}`, CodeConflict, KindConflict},
		{"too late", http.StatusBadRequest, `{"error":"Trips cannot be left less than 3 days before the start date"}`, CodeTooLate, KindValidation},
		{"creator only", http.StatusForbidden, `{"error":"Only the creator can cancel this trip"}`, CodeNotAuthorized, KindAuthorization},
		{"forbidden generic", http.StatusForbidden, `{"detail":"Forbidden"}`, CodeNotAuthorized, KindAuthorization},
		{"not a member", http.StatusNotFound, `{"error":"User is not a member of this trip"}`, CodeAlreadyRemoved, KindConflict},
		{"not found", http.StatusNotFound, `{"detail":"Not found."}`, CodeNotFound, KindNotFound},
		{"unauthenticated", http.StatusUnauthorized, `{"detail":"Given token not valid"}`, CodeUnauthenticated, KindAuthorization},
		{"server error", http.StatusBadGateway, `<html>bad gateway</html>`, CodeUnavailable, KindTransport},
		{"conflict status", http.StatusConflict, `{"error":"state changed"}`, CodeConflict, KindConflict},
		{"empty body", http.StatusBadRequest, ``, CodeInvalidInput, KindValidation},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := FromResponse(tt.status, []byte(tt.body))
			assert.Equal(t, tt.wantCode, err.Code)
			assert.Equal(t, tt.wantKind, err.Kind)
			assert.Equal(t, tt.status, err.Status)
		})
	}
}

func TestFromResponse_FieldErrors(t *testing.T) {
	body := `{"rating":["Ensure this value is less than or equal to 5."],"trip":"This field is required."}`

	err := FromResponse(http.StatusBadRequest, []byte(body))

	assert.Equal(t, KindValidation, err.Kind)
	assert.Equal(t, CodeInvalidInput, err.Code)
	require.Len(t, err.Fields, 2)
	assert.Equal(t, "rating", err.Fields[0].Field)
	assert.Equal(t, "trip", err.Fields[1].Field)
	assert.Contains(t, err.Message, "trip: This field is required.")
}

func TestFieldErrors_ToError(t *testing.T) {
	var fields FieldErrors
	assert.False(t, fields.HasErrors())
	assert.Equal(t, CodeInvalidInput, fields.ToError().Code)

	fields.Add("comment", "too long")
	err := fields.ToError()
	assert.Equal(t, "comment: too long", err.Message)
	assert.Equal(t, KindValidation, err.Kind)
}
