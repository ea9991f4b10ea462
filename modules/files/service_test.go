package files_test

import (
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/upvault/upvault/modules/files"
)

func TestValidateTags(t *testing.T) {
	t.Parallel()

	t.Run("accepts valid tags", func(t *testing.T) {
		t.Parallel()
		assert.NoError(t, files.ValidateTags(map[string]string{
			"env":  "production",
			"team": "data",
		}))
	})

	t.Run("accepts nil and empty maps", func(t *testing.T) {
		t.Parallel()
		assert.NoError(t, files.ValidateTags(nil))
		assert.NoError(t, files.ValidateTags(map[string]string{}))
	})

	t.Run("accepts empty values", func(t *testing.T) {
		t.Parallel()
		assert.NoError(t, files.ValidateTags(map[string]string{"flag": ""}))
	})

	t.Run("rejects more than ten tags", func(t *testing.T) {
		t.Parallel()
		tags := make(map[string]string, 11)
		for i := 0; i < 11; i++ {
			tags[fmt.Sprintf("key-%d", i)] = "v"
		}
		err := files.ValidateTags(tags)
		require.ErrorIs(t, err, files.ErrInvalidTags)
		assert.Contains(t, err.Error(), "exceeds limit")
	})

	t.Run("rejects empty key", func(t *testing.T) {
		t.Parallel()
		err := files.ValidateTags(map[string]string{"": "value"})
		require.ErrorIs(t, err, files.ErrInvalidTags)
		assert.Contains(t, err.Error(), "empty tag key")
	})

	t.Run("rejects oversized key", func(t *testing.T) {
		t.Parallel()
		err := files.ValidateTags(map[string]string{strings.Repeat("k", 129): "v"})
		require.ErrorIs(t, err, files.ErrInvalidTags)
	})

	t.Run("accepts key at limit", func(t *testing.T) {
		t.Parallel()
		assert.NoError(t, files.ValidateTags(map[string]string{strings.Repeat("k", 128): "v"}))
	})

	t.Run("rejects oversized value", func(t *testing.T) {
		t.Parallel()
		err := files.ValidateTags(map[string]string{"key": strings.Repeat("v", 257)})
		require.ErrorIs(t, err, files.ErrInvalidTags)
	})

	t.Run("accepts value at limit", func(t *testing.T) {
		t.Parallel()
		assert.NoError(t, files.ValidateTags(map[string]string{"key": strings.Repeat("v", 256)}))
	})
}
