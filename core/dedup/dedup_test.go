package dedup

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type entry struct {
	Key   string
	Value int
	At    time.Time
}

func keyOf(e entry) string { return e.Key }

func TestFirstSeen(t *testing.T) {
	t.Run("Keeps first occurrence in stable order", func(t *testing.T) {
		items := []entry{{Key: "a", Value: 1}, {Key: "b", Value: 2}, {Key: "a", Value: 3}, {Key: "c", Value: 4}}

		kept := FirstSeen(items, keyOf)

		require.Len(t, kept, 3)
		assert.Equal(t, []entry{{Key: "a", Value: 1}, {Key: "b", Value: 2}, {Key: "c", Value: 4}}, kept)
	})

	t.Run("Empty input", func(t *testing.T) {
		assert.Empty(t, FirstSeen([]entry{}, keyOf))
	})
}

func TestDuplicates(t *testing.T) {
	t.Run("Returns second and later occurrences", func(t *testing.T) {
		items := []entry{{Key: "a", Value: 1}, {Key: "a", Value: 2}, {Key: "b", Value: 3}, {Key: "a", Value: 4}}

		dupes := Duplicates(items, keyOf)

		require.Len(t, dupes, 2)
		assert.Equal(t, 2, dupes[0].Value)
		assert.Equal(t, 4, dupes[1].Value)
	})

	t.Run("No duplicates yields empty", func(t *testing.T) {
		assert.Empty(t, Duplicates([]entry{{Key: "a"}, {Key: "b"}}, keyOf))
	})
}

func TestMerge(t *testing.T) {
	t.Run("Reduces duplicates into the first occurrence", func(t *testing.T) {
		items := []entry{{Key: "a", Value: 1}, {Key: "b", Value: 10}, {Key: "a", Value: 2}}

		merged := Merge(items, keyOf, func(acc, next entry) entry {
			acc.Value += next.Value
			return acc
		})

		require.Len(t, merged, 2)
		assert.Equal(t, entry{Key: "a", Value: 3}, merged[0], "Expected duplicate values to be summed into the first slot")
		assert.Equal(t, entry{Key: "b", Value: 10}, merged[1])
	})
}

func TestWithinWindow(t *testing.T) {
	base := time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)

	t.Run("Drops repeats inside the window", func(t *testing.T) {
		items := []entry{
			{Key: "a", Value: 1, At: base},
			{Key: "a", Value: 2, At: base.Add(10 * time.Minute)},
			{Key: "a", Value: 3, At: base.Add(2 * time.Hour)},
		}

		kept := WithinWindow(items, keyOf, func(e entry) time.Time { return e.At }, time.Hour)

		require.Len(t, kept, 2)
		assert.Equal(t, 1, kept[0].Value)
		assert.Equal(t, 3, kept[1].Value, "Expected occurrence beyond the window to be kept again")
	})

	t.Run("Sorts by timestamp before windowing", func(t *testing.T) {
		items := []entry{
			{Key: "a", Value: 2, At: base.Add(10 * time.Minute)},
			{Key: "a", Value: 1, At: base},
		}

		kept := WithinWindow(items, keyOf, func(e entry) time.Time { return e.At }, time.Hour)

		require.Len(t, kept, 1)
		assert.Equal(t, 1, kept[0].Value, "Expected the earliest occurrence to survive")
	})

	t.Run("Equal timestamps keep input order", func(t *testing.T) {
		items := []entry{
			{Key: "a", Value: 1, At: base},
			{Key: "a", Value: 2, At: base},
		}

		kept := WithinWindow(items, keyOf, func(e entry) time.Time { return e.At }, time.Hour)

		require.Len(t, kept, 1)
		assert.Equal(t, 1, kept[0].Value)
	})

	t.Run("Different keys are windowed independently", func(t *testing.T) {
		items := []entry{
			{Key: "a", Value: 1, At: base},
			{Key: "b", Value: 2, At: base.Add(time.Minute)},
		}

		kept := WithinWindow(items, keyOf, func(e entry) time.Time { return e.At }, time.Hour)

		assert.Len(t, kept, 2)
	})
}

func TestContext(t *testing.T) {
	t.Run("Seen set persists across calls", func(t *testing.T) {
		ctx := NewContext[string]()

		first := Filter(ctx, []entry{{Key: "a"}, {Key: "b"}}, keyOf)
		second := Filter(ctx, []entry{{Key: "b"}, {Key: "c"}}, keyOf)

		assert.Len(t, first, 2)
		require.Len(t, second, 1)
		assert.Equal(t, "c", second[0].Key, "Expected only the newly seen key to survive the second call")
	})

	t.Run("Clear resets the seen set", func(t *testing.T) {
		ctx := NewContext[string]()
		ctx.Observe("a")
		require.True(t, ctx.Seen("a"))

		ctx.Clear()

		assert.False(t, ctx.Seen("a"))
		assert.Equal(t, 0, ctx.Len())
	})

	t.Run("Observe reports newly seen", func(t *testing.T) {
		ctx := NewContext[string]()

		assert.True(t, ctx.Observe("a"))
		assert.False(t, ctx.Observe("a"))
	})
}

func TestStream(t *testing.T) {
	t.Run("Yields only newly seen items per batch", func(t *testing.T) {
		batches := make(chan []entry, 3)
		batches <- []entry{{Key: "a", Value: 1}, {Key: "b", Value: 2}}
		batches <- []entry{{Key: "a", Value: 3}, {Key: "c", Value: 4}}
		batches <- []entry{{Key: "c", Value: 5}}
		close(batches)

		var got [][]entry
		for batch := range Stream(batches, keyOf) {
			got = append(got, batch)
		}

		require.Len(t, got, 3)
		assert.Len(t, got[0], 2)
		require.Len(t, got[1], 1)
		assert.Equal(t, "c", got[1][0].Key)
		assert.Empty(t, got[2], "Expected a fully duplicate batch to yield no items")
	})
}
