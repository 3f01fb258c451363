package domain

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// --- Validator Tests ---

func TestValidateEmail(t *testing.T) {
	tests := []struct {
		name    string
		email   string
		wantErr bool
		errMsg  string
	}{
		{"valid email", "user@example.com", false, ""},
		{"valid email with dots", "first.last@example.co.uk", false, ""},
		{"valid email with plus", "user+tag@example.com", false, ""},
		{"empty string", "", true, "email is required"},
		{"no at sign", "userexample.com", true, "invalid email format"},
		{"no domain", "user@", true, "invalid email format"},
		{"double at", "user@@example.com", true, "invalid email format"},
		{"no tld", "user@example", true, "invalid email format"},
		{"spaces", "user @example.com", true, "invalid email format"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateEmail(tt.email)
			if tt.wantErr {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.errMsg)
			} else {
				require.NoError(t, err)
			}
		})
	}
}

func TestValidatePassword(t *testing.T) {
	assert.Error(t, ValidatePassword(""))
	assert.Error(t, ValidatePassword("12345"))
	assert.NoError(t, ValidatePassword("123456"))
}

// --- Role / UserType Tests ---

func TestRoleUserTypeMapping(t *testing.T) {
	assert.Equal(t, UserTypeAdmin, RoleAdmin.UserType())
	assert.Equal(t, UserTypeStudent, RoleUser.UserType())
	assert.Equal(t, RoleAdmin, UserTypeAdmin.Role())
	assert.Equal(t, RoleUser, UserTypeStudent.Role())
}

func TestParseRole(t *testing.T) {
	r, err := ParseRole("admin")
	require.NoError(t, err)
	assert.Equal(t, RoleAdmin, r)

	_, err = ParseRole("Admin")
	assert.Error(t, err)
	_, err = ParseRole("")
	assert.Error(t, err)
}

func TestProfile_SetRoleKeepsInvariant(t *testing.T) {
	p := &Profile{UID: "u1"}
	p.SetRole(RoleAdmin)
	require.NoError(t, p.CheckInvariant())
	assert.Equal(t, UserTypeAdmin, p.UserType)

	p.SetRole(RoleUser)
	require.NoError(t, p.CheckInvariant())
	assert.Equal(t, UserTypeStudent, p.UserType)

	p.UserType = UserTypeAdmin
	assert.Error(t, p.CheckInvariant())
}

func TestFormatEmployeeCode(t *testing.T) {
	assert.Equal(t, "A001", FormatEmployeeCode(1))
	assert.Equal(t, "A002", FormatEmployeeCode(2))
	assert.Equal(t, "A0012", FormatEmployeeCode(12))
}

func TestParseEmployeeCode(t *testing.T) {
	for _, n := range []int64{1, 2, 12, 907} {
		got, err := ParseEmployeeCode(FormatEmployeeCode(n))
		require.NoError(t, err)
		assert.Equal(t, n, got)
	}
	for _, bad := range []string{"", "A00", "A000", "A00012", "B001", "A00x", "A00-3", "a001"} {
		_, err := ParseEmployeeCode(bad)
		assert.Error(t, err, bad)
	}
}

// --- Timings / Status Tests ---

func TestTimings_Validate(t *testing.T) {
	tests := []struct {
		name    string
		timings Timings
		wantErr string
	}{
		{"all four", Timings{North: 12, South: 8, East: 15, West: 10}, ""},
		{"zero allowed", Timings{North: 0, South: 0, East: 0, West: 0}, ""},
		{"missing west", Timings{North: 12, South: 8, East: 15}, "west missing"},
		{"negative", Timings{North: -1, South: 8, East: 15, West: 10}, "north must be a non-negative number"},
		{"nan", Timings{North: math.NaN(), South: 8, East: 15, West: 10}, "north must be a non-negative number"},
		{"extra key", Timings{North: 1, South: 1, East: 1, West: 1, "up": 1}, `unexpected direction "up"`},
		{"empty", Timings{}, "east missing"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.timings.Validate()
			if tt.wantErr == "" {
				require.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestTimings_JSONShape(t *testing.T) {
	raw := []byte(`{"north":12,"south":8,"east":15,"west":10}`)
	var tm Timings
	require.NoError(t, json.Unmarshal(raw, &tm))
	require.NoError(t, tm.Validate())
	assert.True(t, tm.Equal(Timings{North: 12, South: 8, East: 15, West: 10}))

	clone := tm.Clone()
	clone[North] = 99
	assert.Equal(t, float64(12), tm[North])
}

func TestParseDirection(t *testing.T) {
	d, ok := ParseDirection(" North ")
	assert.True(t, ok)
	assert.Equal(t, North, d)

	_, ok = ParseDirection("up")
	assert.False(t, ok)
}

func TestCanTransition(t *testing.T) {
	all := []ActivityStatus{StatusPending, StatusApproved, StatusRejected}
	for _, from := range all {
		for _, to := range all {
			t.Run(fmt.Sprintf("%s->%s", from, to), func(t *testing.T) {
				want := from == StatusPending && to != StatusPending
				assert.Equal(t, want, CanTransition(from, to))
			})
		}
	}
}

// --- AppError Tests ---

func TestAppError_Error(t *testing.T) {
	t.Run("without cause", func(t *testing.T) {
		err := ErrNotFound("activity", "a1")
		assert.Equal(t, "NOT_FOUND: activity a1 not found", err.Error())
	})

	t.Run("with cause", func(t *testing.T) {
		cause := errors.New("connection refused")
		err := ErrStore("update activity", cause)
		assert.Contains(t, err.Error(), "STORE_ERROR")
		assert.Contains(t, err.Error(), "connection refused")
	})
}

func TestAppError_Unwrap(t *testing.T) {
	cause := errors.New("root cause")
	err := ErrInternal("wrapped", cause)
	assert.Equal(t, cause, errors.Unwrap(err))
}

func TestErrorFactories(t *testing.T) {
	tests := []struct {
		name       string
		err        *AppError
		wantCode   string
		wantStatus int
	}{
		{"ErrValidation", ErrValidation("bad input"), CodeValidation, 400},
		{"ErrUnauthenticated", ErrUnauthenticated("sign in"), CodeUnauthenticated, 401},
		{"ErrUnauthorized", ErrUnauthorized("admins only"), CodeUnauthorized, 403},
		{"ErrAlreadyAuthenticated", ErrAlreadyAuthenticated(), CodeAlreadyAuthenticated, 409},
		{"ErrNotFound", ErrNotFound("activity", "a1"), CodeNotFound, 404},
		{"ErrProfileNotFound", ErrProfileNotFound("u1"), CodeProfileNotFound, 401},
		{"ErrInvalidTransition", ErrInvalidTransition("a1", StatusApproved, StatusRejected), CodeInvalidTransition, 409},
		{"ErrBackend", ErrBackend("bad clip"), CodeBackend, 422},
		{"ErrServer", ErrServer(""), CodeServer, 502},
		{"ErrNetwork", ErrNetwork(errors.New("dial tcp")), CodeNetwork, 504},
		{"ErrStore", ErrStore("insert", nil), CodeStore, 500},
		{"ErrSubmissionNotRecorded", ErrSubmissionNotRecorded("a1", nil), CodeSubmissionNotRecorded, 500},
		{"ErrRateLimited", ErrRateLimited("slow down"), CodeRateLimited, 429},
		{"ErrAccountLocked", ErrAccountLocked("too many attempts"), CodeAccountLocked, 429},
		{"ErrInternal", ErrInternal("oops", nil), CodeInternal, 500},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.wantCode, tt.err.Code)
			assert.Equal(t, tt.wantStatus, tt.err.Status)
			assert.NotEmpty(t, tt.err.Message)
		})
	}
}

func TestErrorRedirects(t *testing.T) {
	assert.Equal(t, RouteSignIn, ErrUnauthenticated("x").Redirect)
	assert.Equal(t, RouteSignIn, ErrProfileNotFound("u1").Redirect)
	assert.Equal(t, RouteHome, ErrUnauthorized("x").Redirect)
	assert.Equal(t, "User profile not found.", ErrProfileNotFound("u1").Message)
}

func TestBackendErrorDefaults(t *testing.T) {
	assert.Equal(t, "clip too short", ErrBackend("clip too short").Message)
	assert.Equal(t, "Invalid request. Please check your inputs.", ErrBackend("").Message)
	assert.Equal(t, "Server error. Please try again later.", ErrServer("").Message)
}

func TestCodeOf(t *testing.T) {
	wrapped := fmt.Errorf("approve: %w", ErrInvalidTransition("a1", StatusApproved, StatusApproved))
	assert.Equal(t, CodeInvalidTransition, CodeOf(wrapped))
	assert.True(t, IsCode(wrapped, CodeInvalidTransition))
	assert.Equal(t, "", CodeOf(errors.New("plain")))
}

func TestErrValidationFields(t *testing.T) {
	err := ErrValidationFields(map[string]string{"west": "missing", "east": "not a video"})
	assert.Equal(t, "east: not a video; west: missing", err.Message)
}

// --- Event Tests ---

func TestNewActivityApprovedEvent(t *testing.T) {
	a := &Activity{ID: "a1", UserID: "u1", Status: StatusApproved}
	r := &Result{ID: "u1_01H", UserID: "u1", ActivityID: "a1", Results: Timings{North: 12, South: 8, East: 15, West: 10}}

	event := NewActivityApprovedEvent(a, r, "admin-1")

	assert.NotEqual(t, uuid.Nil, event.EventID)
	assert.Equal(t, AggregateActivity, event.AggregateType)
	assert.Equal(t, "a1", event.AggregateID)
	assert.Equal(t, EventActivityApproved, event.EventType)
	assert.Equal(t, "u1", event.PartitionKey)
	assert.False(t, event.OccurredAt.IsZero())

	var payload map[string]interface{}
	require.NoError(t, json.Unmarshal(event.Payload, &payload))
	assert.Equal(t, "u1_01H", payload["result_id"])
	assert.Equal(t, "admin-1", payload["reviewer_id"])
}

func TestNewProfileEvent(t *testing.T) {
	p := &Profile{UID: "u1", Email: "a@b.co"}
	p.SetRole(RoleAdmin)

	event := NewProfileEvent(EventProfileCreated, p)
	assert.Equal(t, AggregateProfile, event.AggregateType)
	assert.Equal(t, EventProfileCreated, event.EventType)

	var payload map[string]string
	require.NoError(t, json.Unmarshal(event.Payload, &payload))
	assert.Equal(t, "admin", payload["role"])
	assert.Equal(t, "Admin", payload["userType"])
}
