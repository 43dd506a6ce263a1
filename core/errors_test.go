package core

import (
	"database/sql"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
)

func TestNewStorageError(t *testing.T) {
	tests := []struct {
		name         string
		err          error
		wantShutdown bool
		wantMsg      string
	}{
		{name: "driver error", err: errors.New("boom"), wantMsg: "saving: boom"},
		{name: "no rows", err: sql.ErrNoRows, wantMsg: "saving: sql: no rows in result set"},
		{
			name: "closed connection", err: errors.Wrap(sql.ErrConnDone, "begin"), wantShutdown: true,
			wantMsg: "saving: begin: sql: connection is already closed",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := errors.Wrap(NewStorageError("saving", tt.err), "marking")
			assert.True(t, IsStorageError(err))
			assert.Equal(t, tt.wantShutdown, IsShutdown(err))
			assert.EqualError(t, errors.Cause(err), tt.wantMsg)
		})
	}
}

func TestValidationError(t *testing.T) {
	sentinel := errors.New("user exists")
	err := NewValidationError(sentinel, FieldError{Field: "username", Error: "taken"})

	assert.EqualError(t, err, "user exists")
	assert.True(t, errors.Is(errors.Wrap(err, "creating"), sentinel))

	var vErr *ValidationError
	assert.True(t, errors.As(err, &vErr))
	assert.Len(t, vErr.Fields, 1)
	assert.Empty(t, (&ValidationError{}).Error())
}
