package pagination

import (
	"strconv"
	"testing"

	"github.com/stretchr/testify/require"
)

type row struct{ id int }

func TestCursorRoundTrip(t *testing.T) {
	encoded, err := EncodeCursor(Cursor{ID: "42"})
	require.NoError(t, err)

	decoded, err := DecodeCursor(encoded)
	require.NoError(t, err)
	require.Equal(t, "42", decoded.ID)

	_, err = DecodeCursor("%%%")
	require.Error(t, err)
}

func TestBuildCursorPage(t *testing.T) {
	rows := []*row{{5}, {4}, {3}}
	extract := func(r *row) Cursor { return Cursor{ID: strconv.Itoa(r.id)} }

	page, info := BuildCursorPage(rows, 2, extract)
	require.Len(t, page, 2)
	require.True(t, info.HasMore)

	next, err := DecodeCursor(info.NextCursor)
	require.NoError(t, err)
	require.Equal(t, "4", next.ID)

	page, info = BuildCursorPage(rows[2:], 2, extract)
	require.Len(t, page, 1)
	require.False(t, info.HasMore)
	require.Empty(t, info.NextCursor)
}

func TestNormalize(t *testing.T) {
	require.Equal(t, DefaultLimit, Pagination{}.Normalize().Limit)
	require.Equal(t, MaxLimit, Pagination{Limit: 1000}.Normalize().Limit)
	require.Equal(t, 5, Pagination{Limit: 5}.Normalize().Limit)
}
