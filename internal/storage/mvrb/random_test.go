package mvrb

import (
	"math/rand"
	"sort"
	"strings"
	"testing"

	"github.com/go-faker/faker/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/KilimcininKorOglu/mvrbtree/internal/storage"
)

func TestRandomWorkloadMatchesMap(t *testing.T) {
	store := storage.NewMemoryStore()
	s := testSettings(5, 40, 6)
	tree, err := New[string, string](store, strings.Compare, Options{Settings: StaticSettings(s)})
	require.NoError(t, err)

	rng := rand.New(rand.NewSource(7))
	want := make(map[string]string)
	var keys []string
	for i := 0; i < 600; i++ {
		switch {
		case len(keys) > 0 && rng.Intn(4) == 0:
			k := keys[rng.Intn(len(keys))]
			v, ok, err := tree.Remove(k)
			require.NoError(t, err)
			_, exists := want[k]
			require.Equal(t, exists, ok, "remove %q", k)
			if exists {
				require.Equal(t, want[k], v)
				delete(want, k)
			}
		case len(keys) > 0 && rng.Intn(5) == 0:
			k := keys[rng.Intn(len(keys))]
			v := faker.Word()
			_, _, err := tree.Put(k, v)
			require.NoError(t, err)
			want[k] = v
		default:
			k := faker.UUIDHyphenated()
			v := faker.Word()
			_, existed, err := tree.Put(k, v)
			require.NoError(t, err)
			require.False(t, existed)
			want[k] = v
			keys = append(keys, k)
		}
		if i%100 == 0 {
			require.NoError(t, tree.CheckStructure())
		}
	}

	sorted := make([]string, 0, len(want))
	for k := range want {
		sorted = append(sorted, k)
	}
	sort.Strings(sorted)

	check := func() {
		t.Helper()
		assert.Equal(t, len(want), tree.Size())
		var got []string
		require.NoError(t, tree.Ascend(func(k, v string) bool {
			got = append(got, k)
			assert.Equal(t, want[k], v)
			return true
		}))
		assert.Equal(t, sorted, got)
		require.NoError(t, tree.Verify())
	}
	check()

	reopened, err := Open[string, string](store, tree.HeaderRID(), strings.Compare, Options{Settings: StaticSettings(s)})
	require.NoError(t, err)
	tree = reopened
	check()
}
