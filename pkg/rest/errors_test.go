package rest

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestError_Error(t *testing.T) {
	cause := errors.New("boom")

	tests := []struct {
		name string
		err  *Error
		want string
	}{
		{
			name: "kind only",
			err:  &Error{Kind: KindConfiguration},
			want: "configuration",
		},
		{
			name: "with op and cause",
			err:  &Error{Kind: KindAssembly, Op: "PostsAPI.Get", Err: cause},
			want: "PostsAPI.Get: assembly: boom",
		},
		{
			name: "with status",
			err:  &Error{Kind: KindTransport, Op: "PostsAPI.Get", Status: 404, StatusText: "Not Found"},
			want: "PostsAPI.Get: transport: 404 Not Found",
		},
		{
			name: "with status and cause",
			err:  &Error{Kind: KindTransport, Status: 200, StatusText: "OK", Err: cause},
			want: "transport: 200 OK: boom",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.err.Error())
		})
	}
}

func TestError_Classification(t *testing.T) {
	wrapped := fmt.Errorf("calling: %w", &Error{Kind: KindTransport, Status: 502})

	assert.True(t, IsTransport(wrapped))
	assert.False(t, IsAssembly(wrapped))
	assert.False(t, IsConfiguration(wrapped))
	assert.Equal(t, 502, StatusOf(wrapped))

	plain := errors.New("plain")
	assert.False(t, IsTransport(plain))
	assert.Zero(t, StatusOf(plain))
}

func TestError_Unwrap(t *testing.T) {
	err := &Error{Kind: KindConfiguration, Err: ErrNoTransport}
	assert.ErrorIs(t, err, ErrNoTransport)
}

func TestWrapKind(t *testing.T) {
	assert.NoError(t, wrapKind(KindTransport, "A.B", nil))

	t.Run("plain error", func(t *testing.T) {
		cause := errors.New("reset")
		err := wrapKind(KindTransport, "A.B", cause)

		var restErr *Error
		require.True(t, errors.As(err, &restErr))
		assert.Equal(t, KindTransport, restErr.Kind)
		assert.Equal(t, "A.B", restErr.Op)
		assert.ErrorIs(t, err, cause)
	})

	t.Run("untagged rest error is copied", func(t *testing.T) {
		shared := &Error{Kind: KindTransport, Status: 500}
		err := wrapKind(KindTransport, "A.B", shared)

		var restErr *Error
		require.True(t, errors.As(err, &restErr))
		assert.Equal(t, "A.B", restErr.Op)
		assert.Equal(t, 500, restErr.Status)
		assert.Empty(t, shared.Op, "the shared error must not be mutated")
	})

	t.Run("tagged rest error kept", func(t *testing.T) {
		tagged := &Error{Kind: KindAssembly, Op: "X.Y"}
		assert.Same(t, tagged, wrapKind(KindTransport, "A.B", tagged))
	})
}

func TestKind_String(t *testing.T) {
	assert.Equal(t, "configuration", KindConfiguration.String())
	assert.Equal(t, "assembly", KindAssembly.String())
	assert.Equal(t, "transport", KindTransport.String())
	assert.Equal(t, "unknown", Kind(0).String())
}
