package database

import (
	"context"
	"fmt"
	"slices"
	"strings"

	sq "github.com/Masterminds/squirrel"
	"github.com/facette/natsort"
	"go.uber.org/zap"

	"github.com/camden-git/familytree/models"
)

// DefaultSearchLimit caps SearchPersonIndex when no limit is given.
const DefaultSearchLimit = 50

var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

// SearchPersonIndex finds people of a tree whose display, given or surname
// contains query (case-insensitive for ASCII). Results are in natural order of
// display name, so "John 2" sorts before "John 10".
func SearchPersonIndex(ctx context.Context, db Querier, treeID uint, query string, limit int) ([]models.PersonIndex, error) {
	if limit <= 0 {
		limit = DefaultSearchLimit
	}
	pattern := "%" + likeEscaper.Replace(strings.TrimSpace(query)) + "%"

	queryBuilder := psql.Select("tree_id", "person_id", "display_name", "given", "surname", "gender", "birth_year", "generation").
		From("person_index").
		Where(sq.Eq{"tree_id": treeID}).
		Where(sq.Or{
			sq.Expr(`display_name LIKE ? ESCAPE '\'`, pattern),
			sq.Expr(`given LIKE ? ESCAPE '\'`, pattern),
			sq.Expr(`surname LIKE ? ESCAPE '\'`, pattern),
		}).
		OrderBy("display_name ASC").
		Limit(uint64(limit))

	sqlStr, args, err := queryBuilder.ToSql()
	if err != nil {
		return nil, fmt.Errorf("failed to build SQL for SearchPersonIndex: %w", err)
	}

	rows, err := db.QueryContext(ctx, sqlStr, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to execute SearchPersonIndex for tree %d, query '%s': %w", treeID, query, err)
	}
	defer rows.Close()

	results := []models.PersonIndex{}
	for rows.Next() {
		var p models.PersonIndex
		err := rows.Scan(&p.TreeID, &p.PersonID, &p.DisplayName, &p.Given, &p.Surname, &p.Gender, &p.BirthYear, &p.Generation)
		if err != nil {
			zap.S().Errorf("Error scanning person index row: %v", err)
			continue
		}
		results = append(results, p)
	}
	if err = rows.Err(); err != nil {
		return results, fmt.Errorf("error iterating person index rows for tree %d: %w", treeID, err)
	}

	SortPersonIndex(results)
	return results, nil
}

// SortPersonIndex orders rows by display name in natural order, then by person id.
func SortPersonIndex(rows []models.PersonIndex) {
	slices.SortStableFunc(rows, func(a, b models.PersonIndex) int {
		switch {
		case a.DisplayName == b.DisplayName:
			return strings.Compare(a.PersonID, b.PersonID)
		case natsort.Compare(a.DisplayName, b.DisplayName):
			return -1
		default:
			return 1
		}
	})
}
