package storage_test

import (
	"errors"
	"io/fs"
	"testing"

	"github.com/OCAP2/mocap/internal/storage"
	"github.com/stretchr/testify/assert"
)

func TestValidateName(t *testing.T) {
	tests := []struct {
		name  string
		valid bool
	}{
		{"Recording_20261018_090503", true},
		{"take 1", true},
		{"", false},
		{".hidden", false},
		{"../escape", false},
		{"a/b", false},
		{`a\b`, false},
		{"c:drive", false},
	}
	for _, tt := range tests {
		err := storage.ValidateName(tt.name)
		if tt.valid {
			assert.NoError(t, err, tt.name)
		} else {
			assert.ErrorIs(t, err, storage.ErrInvalidName, tt.name)
		}
	}
}

func TestIoError(t *testing.T) {
	err := &storage.IoError{Op: "save", Name: "take", Err: fs.ErrPermission}

	assert.Contains(t, err.Error(), `save "take"`)
	assert.ErrorIs(t, err, fs.ErrPermission)

	var ioErr *storage.IoError
	assert.True(t, errors.As(error(err), &ioErr))
	assert.Equal(t, "save", ioErr.Op)
}

func TestCorruptError(t *testing.T) {
	err := storage.CorruptError("take", errors.New("bad magic"))
	assert.ErrorIs(t, err, storage.ErrCorrupt)
	assert.Contains(t, err.Error(), "bad magic")
}
