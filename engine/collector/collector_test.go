package collector

import (
	"path/filepath"
	"testing"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mijorus/collector/engine/scratch"
)

func newCollector(t *testing.T) (*Collector, *scratch.Dir) {
	t.Helper()
	dir, err := scratch.New(afero.NewMemMapFs(), "/cache", 0)
	require.NoError(t, err)
	c, err := New(dir)
	require.NoError(t, err)
	return c, dir
}

func TestCollector(t *testing.T) {
	t.Run("Should create an empty readable file at construction", func(t *testing.T) {
		c, dir := newCollector(t)

		assert.Equal(t, filepath.Join(dir.Path(), "collected_strings_1.csv"), c.Path())
		exists, err := afero.Exists(dir.Fs(), c.Path())
		require.NoError(t, err)
		assert.True(t, exists)
		rows, err := c.Rows()
		require.NoError(t, err)
		assert.Empty(t, rows)
		assert.Equal(t, 0, c.Count())
	})

	t.Run("Should return rows in insertion order", func(t *testing.T) {
		c, _ := newCollector(t)

		require.NoError(t, c.Append("hello world"))
		require.NoError(t, c.Append("hello world"))

		rows, err := c.Rows()
		require.NoError(t, err)
		assert.Equal(t, []string{"hello world", "hello world"}, rows)
		assert.Equal(t, 2, c.Count())
	})

	t.Run("Should round trip delimiters quotes and newlines", func(t *testing.T) {
		c, _ := newCollector(t)
		values := []string{
			"a,b,c",
			`she said "hi"`,
			"line one\nline two",
			"",
			"  padded  ",
		}
		for _, v := range values {
			require.NoError(t, c.Append(v))
		}

		rows, err := c.Rows()

		require.NoError(t, err)
		assert.Equal(t, values, rows)
	})

	t.Run("Should keep carriage returns from pasted text", func(t *testing.T) {
		c, _ := newCollector(t)
		values := []string{
			"line one\r\nline two",
			"trailing\r",
			"\r\n",
			"lone\rreturn",
			`quoted "crlf"\r\nrow`,
			"plain",
		}
		for _, v := range values {
			require.NoError(t, c.Append(v))
		}

		rows, err := c.Rows()

		require.NoError(t, err)
		assert.Equal(t, values, rows)
	})

	t.Run("Should quote values containing the delimiter on disk", func(t *testing.T) {
		c, dir := newCollector(t)
		require.NoError(t, c.Append("x,y"))

		data, err := afero.ReadFile(dir.Fs(), c.Path())

		require.NoError(t, err)
		assert.Equal(t, "\"x,y\"\n", string(data))
	})

	t.Run("Should delete the file and reset the count on clear", func(t *testing.T) {
		c, dir := newCollector(t)
		require.NoError(t, c.Append("one"))

		require.NoError(t, c.Clear())

		exists, err := afero.Exists(dir.Fs(), c.Path())
		require.NoError(t, err)
		assert.False(t, exists)
		assert.Equal(t, 0, c.Count())
		rows, err := c.Rows()
		require.NoError(t, err)
		assert.Empty(t, rows)
	})

	t.Run("Should allocate a new name when one already exists", func(t *testing.T) {
		c, dir := newCollector(t)

		second, err := New(dir)

		require.NoError(t, err)
		assert.NotEqual(t, c.Path(), second.Path())
		assert.Equal(t, filepath.Join(dir.Path(), "collected_strings_2.csv"), second.Path())
	})
}
