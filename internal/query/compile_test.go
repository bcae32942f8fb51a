package query

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestCompileNoFiltersIsTautology(t *testing.T) {
	c := Compile(nil)
	require.Equal(t, "1=1", c.Where)
	require.Empty(t, c.Args)
}

func TestCompileEqualityBindsValue(t *testing.T) {
	c := Compile([]Filter{{Field: "status", Operator: OpEQ, Value: "active"}})
	require.Equal(t, "status = ?", c.Where)
	require.Equal(t, []any{"active"}, c.Args)
}

func TestCompileLikeWrapsWildcards(t *testing.T) {
	c := Compile([]Filter{{Field: "message", Operator: OpLike, Value: "timeout"}})
	require.Equal(t, "message LIKE ?", c.Where)
	require.Equal(t, []any{"%timeout%"}, c.Args)
}

func TestCompileJoinsMultipleFiltersWithAnd(t *testing.T) {
	c := Compile([]Filter{
		{Field: "level", Operator: OpGE, Value: "3"},
		{Field: "status", Operator: OpNE, Value: "deleted"},
	})
	require.Equal(t, "level >= ? AND status != ?", c.Where)
	require.Equal(t, []any{"3", "deleted"}, c.Args)
}
