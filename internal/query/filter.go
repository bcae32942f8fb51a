// Package query implements the filter grammar and query compiler behind the
// GET /logs query string. Grounded on the Python original's
// loglite/handlers/query.py QueryLogsHandler, including its exact filter
// regex.
package query

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/Dicklesworthstone/loglite/internal/apperr"
)

// Operator is one of the comparison operators allowed in a QueryFilter.
type Operator string

const (
	OpEQ   Operator = "="
	OpNE   Operator = "!="
	OpGT   Operator = ">"
	OpGE   Operator = ">="
	OpLT   Operator = "<"
	OpLE   Operator = "<="
	OpLike Operator = "~="
)

var validOperators = map[Operator]bool{
	OpEQ: true, OpNE: true, OpGT: true, OpGE: true, OpLT: true, OpLE: true, OpLike: true,
}

// Filter is one parsed condition: field OP value.
type Filter struct {
	Field    string
	Operator Operator
	Value    string
}

// filterExprPattern matches the "(>=|<=|!=|~=|=|>|<)([^,]+)" grammar,
// applied repeatedly to the EXPR of a single K=EXPR query parameter so that
// e.g. "level=>=3,<=5" yields two filters on the same field.
var filterExprPattern = regexp.MustCompile(`(>=|<=|!=|~=|=|>|<)([^,]+)`)

// nonFilterParams are query keys that are not field filters.
var nonFilterParams = map[string]bool{"fields": true, "offset": true, "limit": true}

// ParseParam parses a single "field=expr" query parameter into zero or more
// filters. An expression with no matches is a ValidationError, surfaced to
// the caller as HTTP 400.
func ParseParam(field, expr string) ([]Filter, error) {
	matches := filterExprPattern.FindAllStringSubmatch(expr, -1)
	if len(matches) == 0 {
		return nil, apperr.Validation(fmt.Sprintf("field %q has invalid filter expression: %q", field, expr), nil)
	}
	filters := make([]Filter, 0, len(matches))
	for _, m := range matches {
		op := Operator(m[1])
		if !validOperators[op] {
			return nil, apperr.Validation(fmt.Sprintf("field %q has unsupported operator %q", field, m[1]), nil)
		}
		filters = append(filters, Filter{
			Field:    field,
			Operator: op,
			Value:    strings.TrimSpace(m[2]),
		})
	}
	return filters, nil
}

// ParseQueryString parses an entire GET /logs query string (already decoded
// into key->value pairs by the HTTP layer) into fields/offset/limit/filters.
func ParseQueryString(params map[string][]string) (fields []string, offset, limit int, filters []Filter, err error) {
	offset, limit = 0, 100

	if v, ok := firstValue(params, "offset"); ok {
		offset, err = parseNonNegativeInt("offset", v)
		if err != nil {
			return nil, 0, 0, nil, err
		}
	}
	if v, ok := firstValue(params, "limit"); ok {
		limit, err = parseNonNegativeInt("limit", v)
		if err != nil {
			return nil, 0, 0, nil, err
		}
	}

	fieldsParam := "*"
	if v, ok := firstValue(params, "fields"); ok {
		fieldsParam = v
	}
	if fieldsParam == "*" || fieldsParam == "" {
		fields = []string{"*"}
	} else {
		fields = strings.Split(fieldsParam, ",")
	}

	for key, values := range params {
		if nonFilterParams[key] {
			continue
		}
		for _, v := range values {
			parsed, perr := ParseParam(key, v)
			if perr != nil {
				return nil, 0, 0, nil, perr
			}
			filters = append(filters, parsed...)
		}
	}

	return fields, offset, limit, filters, nil
}

func firstValue(params map[string][]string, key string) (string, bool) {
	v, ok := params[key]
	if !ok || len(v) == 0 {
		return "", false
	}
	return v[0], true
}

func parseNonNegativeInt(name, raw string) (int, error) {
	var n int
	if _, err := fmt.Sscanf(raw, "%d", &n); err != nil || n < 0 {
		return 0, apperr.Validation(fmt.Sprintf("%s must be a non-negative integer, got %q", name, raw), nil)
	}
	return n, nil
}
