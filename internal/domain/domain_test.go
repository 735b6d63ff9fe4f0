package domain

import (
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestPairKey(t *testing.T) {
	assert.Equal(t, "a:b", PairKey("a", "b"))
	assert.Equal(t, "a:b", PairKey("b", "a"), "順序不影響配對鍵")

	th := NewThread("t1", "zed", "amy", time.Now())
	assert.Equal(t, "amy", th.UserA)
	assert.Equal(t, "zed", th.UserB)
	assert.True(t, th.IsActive)
	assert.True(t, th.HasParticipant("zed"))
	assert.False(t, th.HasParticipant(""))
	assert.Equal(t, "amy", th.Other("zed"))
}

func TestThread_ActivityAt(t *testing.T) {
	created := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	th := NewThread("t1", "a", "b", created)
	assert.Equal(t, created, th.ActivityAt())

	last := created.Add(time.Hour)
	th.LastMessageAt = &last
	assert.Equal(t, last, th.ActivityAt())
}

func TestErrors(t *testing.T) {
	cause := errors.New("dial tcp: refused")
	tests := []struct {
		err     error
		kind    Kind
		code    string
		public  string
		wrapped error
	}{
		{NotFound("thread %s not found", "t1"), KindNotFound, "NOT_FOUND", "thread t1 not found", nil},
		{Forbidden("not a participant"), KindForbidden, "FORBIDDEN", "not a participant", nil},
		{Invalid("content is empty"), KindInvalidRequest, "INVALID_REQUEST", "content is empty", nil},
		{Conflict("email taken"), KindConflict, "CONFLICT", "email taken", nil},
		{Precondition("no identity"), KindPreconditionFailed, "PRECONDITION_FAILED", "no identity", nil},
		{External(cause, "failed to deliver"), KindExternalDependency, "EXTERNAL_DEPENDENCY_FAILURE", "failed to deliver", cause},
		{Internal(cause, "boom"), KindInternal, "INTERNAL_ERROR", "boom", cause},
		{cause, KindInternal, "INTERNAL_ERROR", "internal server error", nil},
	}

	for _, tt := range tests {
		t.Run(tt.code, func(t *testing.T) {
			wrapped := fmt.Errorf("handler: %w", tt.err)
			assert.Equal(t, tt.kind, KindOf(wrapped))
			assert.Equal(t, tt.code, KindOf(wrapped).Code())
			assert.Equal(t, tt.public, PublicMessage(wrapped))
			if tt.wrapped != nil {
				assert.ErrorIs(t, wrapped, tt.wrapped)
			}
		})
	}

	assert.ErrorIs(t, NotFound("x"), ErrNotFound)
	assert.NotErrorIs(t, NotFound("x"), ErrForbidden)
	assert.NotErrorIs(t, ErrNotFound, NotFound("x"), "帶訊息的錯誤不是哨兵")
}

func TestMessageKind_Valid(t *testing.T) {
	assert.True(t, MessageKindText.Valid())
	assert.True(t, MessageKindSystem.Valid())
	assert.False(t, MessageKind("image").Valid())
}
