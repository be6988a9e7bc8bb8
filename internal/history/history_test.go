package history

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func at(unix int64) time.Time {
	return time.Unix(unix, 0).UTC()
}

func buildIndex(records ...CommitRecord) *Index {
	b := NewBuilder()
	for _, rec := range records {
		b.Add(rec)
	}
	return b.Build()
}

func TestIndexCommits(t *testing.T) {
	t.Parallel()

	ix := buildIndex(
		CommitRecord{ID: "c1", Time: at(100), Paths: []string{"lib/core.go"}},
		CommitRecord{ID: "c2", Time: at(200), Paths: []string{"lib/core.go", "app/main.go"}},
		CommitRecord{ID: "c3", Time: at(300), Paths: []string{"app/main.go"}},
	)

	assert.Equal(t, 3, ix.CommitCount())
	assert.Equal(t, 2, ix.FileCount())

	assert.Equal(t, []string{"c1", "c2"}, ix.Commits("lib/core.go", Window{}))
	assert.Equal(t, []string{"c2", "c3"}, ix.Commits("app/main.go", Window{}))
	assert.Nil(t, ix.Commits("unknown.go", Window{}))
}

func TestIndexWindowFiltering(t *testing.T) {
	t.Parallel()

	ix := buildIndex(
		CommitRecord{ID: "c1", Time: at(100), Paths: []string{"f"}},
		CommitRecord{ID: "c2", Time: at(200), Paths: []string{"f"}},
		CommitRecord{ID: "c3", Time: at(300), Paths: []string{"f"}},
	)

	t.Run("SinceInclusive", func(t *testing.T) {
		t.Parallel()
		assert.Equal(t, []string{"c2", "c3"}, ix.Commits("f", Window{Since: at(200)}))
	})

	t.Run("UntilExclusive", func(t *testing.T) {
		t.Parallel()
		assert.Equal(t, []string{"c1"}, ix.Commits("f", Window{Until: at(200)}))
	})

	t.Run("HalfOpenRange", func(t *testing.T) {
		t.Parallel()
		w := Window{Since: at(200), Until: at(300)}
		assert.Equal(t, []string{"c2"}, ix.Commits("f", w))
	})

	t.Run("EmptyRange", func(t *testing.T) {
		t.Parallel()
		w := Window{Since: at(300), Until: at(200)}
		assert.Nil(t, ix.Commits("f", w))
	})
}

func TestIndexPerFileDedup(t *testing.T) {
	t.Parallel()

	// One commit listing the same path twice still appears once.
	ix := buildIndex(
		CommitRecord{ID: "c1", Time: at(100), Paths: []string{"f", "f"}},
	)

	assert.Equal(t, []string{"c1"}, ix.Commits("f", Window{}))
}

func TestDistinctCommits(t *testing.T) {
	t.Parallel()

	ix := buildIndex(
		CommitRecord{ID: "c1", Time: at(100), Paths: []string{"a", "b"}},
		CommitRecord{ID: "c2", Time: at(200), Paths: []string{"b"}},
	)

	// c1 touches both paths but counts once.
	assert.Equal(t, 2, ix.DistinctCommits([]string{"a", "b"}, Window{}))
	assert.Equal(t, 1, ix.DistinctCommits([]string{"a"}, Window{}))
	assert.Equal(t, 0, ix.DistinctCommits([]string{"missing"}, Window{}))

	// Never more than the total number of commits.
	assert.LessOrEqual(t, ix.DistinctCommits([]string{"a", "b"}, Window{}), ix.CommitCount())
}

func TestViewMemoizesAndIsShared(t *testing.T) {
	t.Parallel()

	ix := buildIndex(
		CommitRecord{ID: "c1", Time: at(100), Paths: []string{"f"}},
	)

	w := Window{Since: at(50)}
	v1 := ix.View(w)
	v2 := ix.View(w)
	assert.Same(t, v1, v2)

	assert.Equal(t, []string{"c1"}, v1.Commits("f"))
	assert.Equal(t, []string{"c1"}, v1.Commits("f"))
}

func TestWindowContains(t *testing.T) {
	t.Parallel()

	w := Window{Since: at(100), Until: at(200)}
	assert.True(t, w.Contains(at(100)))
	assert.True(t, w.Contains(at(199)))
	assert.False(t, w.Contains(at(200)))
	assert.False(t, w.Contains(at(99)))

	assert.True(t, Window{}.IsZero())
	assert.False(t, w.IsZero())
	assert.True(t, Window{}.Contains(at(1)))
}

func TestSnapshotRoundTrip(t *testing.T) {
	t.Parallel()

	ix := buildIndex(
		CommitRecord{ID: "c1", Time: at(100), Paths: []string{"a", "b"}},
		CommitRecord{ID: "c2", Time: at(200), Paths: []string{"b"}},
	)

	restored := FromSnapshot(ix.Snapshot())

	assert.Equal(t, ix.CommitCount(), restored.CommitCount())
	assert.Equal(t, ix.FileCount(), restored.FileCount())
	assert.Equal(t, ix.Commits("b", Window{}), restored.Commits("b", Window{}))

	w := Window{Since: at(150)}
	assert.Equal(t, ix.Commits("b", w), restored.Commits("b", w))
}
