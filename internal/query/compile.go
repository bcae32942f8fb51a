package query

import (
	"fmt"
	"strings"
)

// Compiled is the parameterized WHERE clause produced from a filter set.
type Compiled struct {
	// Where defaults to the tautology "1=1" when no filters are supplied.
	Where string
	Args  []any
}

// Compile joins filters with logical AND into a single parameterized WHERE
// clause. `~=` becomes a LIKE with `%value%` wildcards on both sides;
// every other operator binds its value directly.
//
// Field names come from the HTTP query string and are never interpolated
// as arbitrary SQL — they are validated by the caller against the active
// column descriptor set before Compile is invoked, which is what makes
// direct string interpolation of the field name (not the value) safe here.
func Compile(filters []Filter) Compiled {
	if len(filters) == 0 {
		return Compiled{Where: "1=1"}
	}

	conditions := make([]string, 0, len(filters))
	args := make([]any, 0, len(filters))
	for _, f := range filters {
		if f.Operator == OpLike {
			conditions = append(conditions, fmt.Sprintf("%s LIKE ?", f.Field))
			args = append(args, "%"+f.Value+"%")
			continue
		}
		conditions = append(conditions, fmt.Sprintf("%s %s ?", f.Field, f.Operator))
		args = append(args, f.Value)
	}
	return Compiled{Where: strings.Join(conditions, " AND "), Args: args}
}
