package collectors

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/adalundhe/mosaic/core/fragment"
)

func searchFragment(id, content string, tags ...string) *fragment.Fragment {
	return &fragment.Fragment{
		ID:        id,
		Kind:      fragment.KindText,
		Content:   content,
		Tags:      tags,
		UpdatedAt: time.Now(),
	}
}

func TestSearchIndex_RebuildAndQuery(t *testing.T) {
	index, err := NewSearchIndex()
	require.NoError(t, err)
	defer index.Close()

	err = index.Rebuild([]*fragment.Fragment{
		searchFragment("f1", "warm analog photograph of morning light"),
		searchFragment("f2", "geometric shapes in primary colors"),
		searchFragment("f3", "notes about rhythm and tempo"),
	})
	require.NoError(t, err)

	count, err := index.Count()
	require.NoError(t, err)
	assert.Equal(t, uint64(3), count)

	hits, err := index.Query("analog photograph", 10)
	require.NoError(t, err)
	require.NotEmpty(t, hits)
	assert.Equal(t, "f1", hits[0].FragmentID)
}

func TestSearchIndex_RebuildReplacesPriorContents(t *testing.T) {
	index, err := NewSearchIndex()
	require.NoError(t, err)
	defer index.Close()

	require.NoError(t, index.Rebuild([]*fragment.Fragment{
		searchFragment("old", "fading daguerreotype"),
	}))
	require.NoError(t, index.Rebuild([]*fragment.Fragment{
		searchFragment("new", "bright cyanotype print"),
	}))

	hits, err := index.Query("daguerreotype", 10)
	require.NoError(t, err)
	assert.Empty(t, hits)

	hits, err = index.Query("cyanotype", 10)
	require.NoError(t, err)
	require.Len(t, hits, 1)
	assert.Equal(t, "new", hits[0].FragmentID)
}

func TestSearchIndex_IndexAndDeleteSingle(t *testing.T) {
	index, err := NewSearchIndex()
	require.NoError(t, err)
	defer index.Close()

	require.NoError(t, index.Index(searchFragment("f1", "soft gradient wash")))

	hits, err := index.Query("gradient", 10)
	require.NoError(t, err)
	require.Len(t, hits, 1)

	require.NoError(t, index.Delete("f1"))

	hits, err = index.Query("gradient", 10)
	require.NoError(t, err)
	assert.Empty(t, hits)
}

func TestSearchIndex_EmptyQueryReturnsNothing(t *testing.T) {
	index, err := NewSearchIndex()
	require.NoError(t, err)
	defer index.Close()

	hits, err := index.Query("   ", 10)
	require.NoError(t, err)
	assert.Nil(t, hits)
}
