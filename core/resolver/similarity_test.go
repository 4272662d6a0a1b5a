package resolver

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSimilarity(t *testing.T) {
	t.Run("Identical strings score one", func(t *testing.T) {
		assert.Equal(t, 1.0, Similarity("franklin bbq", "franklin bbq"))
	})

	t.Run("Normalization applies before comparison", func(t *testing.T) {
		assert.Equal(t, 1.0, Similarity("  Franklin   BBQ ", "franklin bbq"))
	})

	t.Run("Disjoint strings score zero", func(t *testing.T) {
		assert.Equal(t, 0.0, Similarity("abc", "xyz"))
	})

	t.Run("Empty strings score zero", func(t *testing.T) {
		assert.Equal(t, 0.0, Similarity("", ""))
		assert.Equal(t, 0.0, Similarity("franklin", ""))
	})

	t.Run("Single character falls back to exact comparison", func(t *testing.T) {
		assert.Equal(t, 1.0, Similarity("a", "a"))
		assert.Equal(t, 0.0, Similarity("a", "b"))
	})

	t.Run("Near spellings score high", func(t *testing.T) {
		score := Similarity("franklin barbecue", "franklin barbeque")
		assert.Greater(t, score, 0.85, "Expected near spellings to clear the default threshold")
	})

	t.Run("Different names score low", func(t *testing.T) {
		score := Similarity("franklin barbecue", "la barbecue")
		assert.Less(t, score, 0.85)
	})

	t.Run("Accented names are scored over runes", func(t *testing.T) {
		score := Similarity("café", "cafés")
		assert.InDelta(t, 6.0/7.0, score, 1e-9, "Expected the denominator to count runes, not bytes")
	})

	t.Run("Symmetric", func(t *testing.T) {
		assert.Equal(t, Similarity("brisket", "briskit"), Similarity("briskit", "brisket"))
	})

	t.Run("Bounded to the unit interval", func(t *testing.T) {
		pairs := [][2]string{
			{"taco", "tacos"},
			{"ramen", "ramen shop"},
			{"aa", "aaaa"},
		}
		for _, pair := range pairs {
			score := Similarity(pair[0], pair[1])
			assert.GreaterOrEqual(t, score, 0.0)
			assert.LessOrEqual(t, score, 1.0)
		}
	})
}
