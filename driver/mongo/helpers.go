package mongo

import (
	"regexp"
	"strings"

	"github.com/earlzo/ormx/core"
)

// toMongoLikePattern converts a SQL LIKE pattern into a mongo regex:
// % becomes .* and _ becomes a single-character wildcard, with everything
// else quoted literally.
func toMongoLikePattern(input string) string {
	const percent = "__PERCENT__"
	const underscore = "__UNDERSCORE__"
	safe := strings.ReplaceAll(input, "%", percent)
	safe = strings.ReplaceAll(safe, "_", underscore)
	safe = regexp.QuoteMeta(safe)
	safe = strings.ReplaceAll(safe, percent, ".*")
	safe = strings.ReplaceAll(safe, underscore, ".")
	return safe
}

// safeCondition guards against nil queries so the filter builder never has
// to special-case them.
func safeCondition(query *core.Where) *core.Condition {
	if query == nil || query.Condition == nil {
		return &core.Condition{Operator: &core.OpAnd, Children: []*core.Condition{}}
	}
	return query.Condition
}
