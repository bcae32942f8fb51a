package dictionary

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
)

type fakePersister struct {
	entries  []Entry
	inserted []Entry
}

func (f *fakePersister) LoadColumnDictionary(ctx context.Context) (<-chan Entry, error) {
	out := make(chan Entry, len(f.entries))
	for _, e := range f.entries {
		out <- e
	}
	close(out)
	return out, nil
}

func (f *fakePersister) InsertColumnDictionaryValue(ctx context.Context, column string, value any, valueID int) error {
	f.inserted = append(f.inserted, Entry{Column: column, Value: value, ValueID: valueID})
	return nil
}

func TestLoadSeedsLookup(t *testing.T) {
	fp := &fakePersister{entries: []Entry{
		{Column: "status", Value: "active", ValueID: 1},
		{Column: "status", Value: "inactive", ValueID: 2},
	}}
	d, err := Load(context.Background(), fp)
	require.NoError(t, err)

	id, err := d.GetOrCreate(context.Background(), "status", "active")
	require.NoError(t, err)
	require.Equal(t, 1, id)
	require.Empty(t, fp.inserted, "a previously-seen value must not be re-persisted")
}

func TestGetOrCreateAssignsIncreasingIDs(t *testing.T) {
	d, err := Load(context.Background(), &fakePersister{})
	require.NoError(t, err)

	id1, err := d.GetOrCreate(context.Background(), "level", "info")
	require.NoError(t, err)
	require.Equal(t, 1, id1)

	id2, err := d.GetOrCreate(context.Background(), "level", "warn")
	require.NoError(t, err)
	require.Equal(t, 2, id2)

	idAgain, err := d.GetOrCreate(context.Background(), "level", "info")
	require.NoError(t, err)
	require.Equal(t, id1, idAgain)
}

func TestGetOrCreateNormalizesNumericTypes(t *testing.T) {
	d, err := Load(context.Background(), &fakePersister{})
	require.NoError(t, err)

	idInt, err := d.GetOrCreate(context.Background(), "code", 7)
	require.NoError(t, err)

	idFloat, err := d.GetOrCreate(context.Background(), "code", float64(7))
	require.NoError(t, err)

	require.Equal(t, idInt, idFloat, "int 7 and float64 7 must intern to the same id")
}

func TestGetOrCreatePersistsBeforeCaching(t *testing.T) {
	fp := &fakePersister{}
	d, err := Load(context.Background(), fp)
	require.NoError(t, err)

	_, err = d.GetOrCreate(context.Background(), "status", "active")
	require.NoError(t, err)
	require.Len(t, fp.inserted, 1)
	require.Equal(t, "status", fp.inserted[0].Column)
}
