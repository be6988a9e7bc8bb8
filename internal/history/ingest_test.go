package history

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIngest(t *testing.T) {
	t.Parallel()

	t.Run("ValidStream", func(t *testing.T) {
		t.Parallel()
		input := strings.Join([]string{
			`{"id":"c1","time":100,"paths":["lib/core.go"]}`,
			``,
			`{"id":"c2","time":200,"paths":["lib/core.go","app/main.go"]}`,
		}, "\n")

		ix, err := Ingest(strings.NewReader(input))
		require.NoError(t, err)

		assert.Equal(t, 2, ix.CommitCount())
		assert.Equal(t, []string{"c1", "c2"}, ix.Commits("lib/core.go", Window{}))
	})

	t.Run("EmptyInput", func(t *testing.T) {
		t.Parallel()
		ix, err := Ingest(strings.NewReader(""))
		require.NoError(t, err)
		assert.Equal(t, 0, ix.CommitCount())
		assert.Equal(t, 0, ix.FileCount())
	})

	t.Run("MalformedJSON", func(t *testing.T) {
		t.Parallel()
		_, err := Ingest(strings.NewReader(`{"id":`))

		var malformed *MalformedRecordError
		require.ErrorAs(t, err, &malformed)
		assert.Equal(t, 0, malformed.Index)
	})

	t.Run("MissingID", func(t *testing.T) {
		t.Parallel()
		_, err := Ingest(strings.NewReader(`{"time":100,"paths":["f"]}`))

		var malformed *MalformedRecordError
		require.ErrorAs(t, err, &malformed)
	})

	t.Run("MissingTimestamp", func(t *testing.T) {
		t.Parallel()
		_, err := Ingest(strings.NewReader(`{"id":"c1","paths":["f"]}`))

		var malformed *MalformedRecordError
		require.ErrorAs(t, err, &malformed)
	})
}

func TestParseRecord(t *testing.T) {
	t.Parallel()

	rec, err := ParseRecord([]byte(`{"id":"c1","time":100,"paths":["a","b"]}`), 4)
	require.NoError(t, err)

	assert.Equal(t, "c1", rec.ID)
	assert.Equal(t, int64(100), rec.Time.Unix())
	assert.Equal(t, []string{"a", "b"}, rec.Paths)
}
