package history

import (
	"path/filepath"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	bolt "go.etcd.io/bbolt"
)

func newTestStore(t *testing.T) *Store {
	dbPath := filepath.Join(t.TempDir(), "history.db")

	store := New(dbPath)
	require.NoError(t, store.Open())
	t.Cleanup(func() { store.Close() })

	return store
}

func TestQuery(t *testing.T) {
	rec1 := Record{
		ID:       "a",
		Time:     2000,
		Command:  "convert",
		Input:    "a.raw",
		Format:   "EVT2",
		EventsIn: 10,
	}
	rec2 := Record{
		ID:      "b",
		Time:    3000,
		Command: "simulate",
		Input:   "b.raw",
		Format:  "EVT3",
		Policy:  "taildrop",
	}
	rec3 := Record{
		ID:      "c",
		Time:    4000,
		Command: "convert",
		Input:   "c.dat",
		Format:  "DAT",
	}

	store := newTestStore(t)
	require.NoError(t, store.Save(rec1))
	require.NoError(t, store.Save(rec2))
	require.NoError(t, store.Save(rec3))

	cases := []struct {
		name     string
		input    Query
		expected []Record
	}{
		{
			name:     "all",
			input:    Query{},
			expected: []Record{rec3, rec2, rec1},
		},
		{
			name:     "singleFormat",
			input:    Query{Formats: []string{"EVT3"}},
			expected: []Record{rec2},
		},
		{
			name:     "multipleFormats",
			input:    Query{Formats: []string{"EVT2", "DAT"}},
			expected: []Record{rec3, rec1},
		},
		{
			name:     "limit",
			input:    Query{Limit: 2},
			expected: []Record{rec3, rec2},
		},
		{
			name:     "exactTime",
			input:    Query{Time: 4000},
			expected: []Record{rec2, rec1},
		},
		{
			name:     "betweenTime",
			input:    Query{Time: 3500},
			expected: []Record{rec2, rec1},
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			records, err := store.Query(tc.input)
			require.NoError(t, err)
			require.Equal(t, tc.expected, records)
		})
	}
}

func TestQueryEmpty(t *testing.T) {
	store := newTestStore(t)

	records, err := store.Query(Query{})
	require.NoError(t, err)
	require.Empty(t, records)
}

func TestQueryUnmarshalErr(t *testing.T) {
	store := newTestStore(t)

	err := store.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket([]byte(dbAPIversion))
		return b.Put([]byte("invalid"), []byte("nil"))
	})
	require.NoError(t, err)

	_, err = store.Query(Query{})
	require.Error(t, err)
}

func TestSaveAssignsIDAndTime(t *testing.T) {
	store := newTestStore(t)
	require.NoError(t, store.Save(Record{Input: "a.raw", Format: "EVT2"}))

	records, err := store.Query(Query{})
	require.NoError(t, err)
	require.Len(t, records, 1)

	_, err = uuid.Parse(records[0].ID)
	require.NoError(t, err)
	require.NotZero(t, records[0].Time)
}

func TestSaveTimeCollision(t *testing.T) {
	store := newTestStore(t)
	require.NoError(t, store.Save(Record{ID: "a", Time: 1000}))
	require.NoError(t, store.Save(Record{ID: "b", Time: 1000}))

	records, err := store.Query(Query{})
	require.NoError(t, err)
	require.Len(t, records, 2)
	require.Equal(t, "b", records[0].ID)
	require.Equal(t, int64(1001), records[0].Time)
	require.Equal(t, "a", records[1].ID)
}

func TestMaxKeys(t *testing.T) {
	store := newTestStore(t)
	store.maxKeys = 3

	for i := int64(1); i <= 5; i++ {
		require.NoError(t, store.Save(Record{Time: i * 1000}))
	}

	store.db.View(func(tx *bolt.Tx) error {
		keyN := tx.Bucket([]byte(dbAPIversion)).Stats().KeyN
		require.Equal(t, 3, keyN)
		return nil
	})
}

func TestOpenErr(t *testing.T) {
	store := New("/dev/null")
	require.Error(t, store.Open())
}
