package storage

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/google/uuid"
)

const (
	defaultPageSize = 50
	maxPageSize     = 500
)

// verifiedStatuses are the verification states that count as verified
var verifiedStatuses = []string{"verified", "already-verified"}

// generateID generates a new UUID
func generateID() string {
	return uuid.New().String()
}

// pageBounds converts pagination params into a limit and offset.
// Cursors are opaque to callers but are plain offsets here.
func pageBounds(p PaginationParams) (limit, offset int, err error) {
	limit = p.Limit
	if limit <= 0 {
		limit = defaultPageSize
	}
	if limit > maxPageSize {
		limit = maxPageSize
	}
	if p.Cursor != "" {
		offset, err = strconv.Atoi(p.Cursor)
		if err != nil || offset < 0 {
			return 0, 0, fmt.Errorf("invalid cursor: %q", p.Cursor)
		}
	}
	return limit, offset, nil
}

// deploymentWhere builds the WHERE clause for a filter. placeholder renders
// the nth (1-based) bind parameter for the dialect.
func deploymentWhere(filter DeploymentFilter, placeholder func(n int) string) (string, []any) {
	var clauses []string
	var args []any

	add := func(clause string, value any) {
		args = append(args, value)
		clauses = append(clauses, fmt.Sprintf(clause, placeholder(len(args))))
	}

	if filter.Network != "" {
		add("network = %s", filter.Network)
	}
	if filter.ChainID != "" {
		add("chain_id = %s", filter.ChainID)
	}
	if filter.Contract != "" {
		add("contract = %s", filter.Contract)
	}
	if filter.Verified != nil {
		in := make([]string, len(verifiedStatuses))
		for i, s := range verifiedStatuses {
			args = append(args, s)
			in[i] = placeholder(len(args))
		}
		op := "IN"
		if !*filter.Verified {
			op = "NOT IN"
		}
		clauses = append(clauses, fmt.Sprintf("COALESCE(verification_status, '') %s (%s)", op, strings.Join(in, ", ")))
	}

	if len(clauses) == 0 {
		return "", nil
	}
	return " WHERE " + strings.Join(clauses, " AND "), args
}

// paginate trims the extra row fetched to detect another page
func paginate[T any](rows []T, limit, offset int) *PaginatedResult[T] {
	result := &PaginatedResult[T]{Data: rows}
	if len(rows) > limit {
		result.Data = rows[:limit]
		result.HasMore = true
		result.NextCursor = strconv.Itoa(offset + limit)
	}
	return result
}
