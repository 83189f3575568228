package sql

import (
	"strconv"
	"strings"
)

// predicate is one WHERE condition. Its clause marks every bound value with
// a '?' and args holds them in the same order.
type predicate struct {
	clause string
	args   []any
}

// selectQuery collects optional predicates and renders them into a single
// statement with Postgres positional placeholders. Placeholders are numbered
// only at render time so adding or skipping a predicate never shifts the
// arguments of another one.
type selectQuery struct {
	base    string
	preds   []predicate
	orderBy string
}

func newSelect(base string) *selectQuery {
	return &selectQuery{base: base}
}

func (q *selectQuery) where(p predicate) *selectQuery {
	q.preds = append(q.preds, p)
	return q
}

func (q *selectQuery) order(by string) *selectQuery {
	q.orderBy = by
	return q
}

func (q *selectQuery) render() (string, []any) {
	var sb strings.Builder
	var args []any
	sb.WriteString(q.base)
	for i, p := range q.preds {
		if i == 0 {
			sb.WriteString(" WHERE ")
		} else {
			sb.WriteString(" AND ")
		}
		sb.WriteByte('(')
		n := 0
		for j := 0; j < len(p.clause); j++ {
			if p.clause[j] != '?' {
				sb.WriteByte(p.clause[j])
				continue
			}
			args = append(args, p.args[n])
			n++
			sb.WriteByte('$')
			sb.WriteString(strconv.Itoa(len(args)))
		}
		sb.WriteByte(')')
	}
	if q.orderBy != "" {
		sb.WriteString(" ORDER BY ")
		sb.WriteString(q.orderBy)
	}
	return sb.String(), args
}

// statusIn matches rows whose status equals one of statuses, ignoring case.
// Column and values are folded by the same LOWER so the comparison does not
// depend on how the client or the database locale would fold them alone.
// Each status gets its own placeholder.
func statusIn(statuses []string) predicate {
	marks := strings.TrimSuffix(strings.Repeat("LOWER(?), ", len(statuses)), ", ")
	args := make([]any, len(statuses))
	for i, s := range statuses {
		args[i] = s
	}
	return predicate{clause: "LOWER(status) IN (" + marks + ")", args: args}
}

// titleOrAssigneeContains matches rows whose title or assignee contains text,
// ignoring case. text is matched as given, whitespace included. LIKE
// metacharacters in text match literally.
func titleOrAssigneeContains(text string) predicate {
	pattern := "%" + escapeLike(text) + "%"
	return predicate{
		clause: `LOWER(title) LIKE LOWER(?) ESCAPE '\' OR LOWER(assigned_to) LIKE LOWER(?) ESCAPE '\'`,
		args:   []any{pattern, pattern},
	}
}

var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

func escapeLike(s string) string {
	return likeEscaper.Replace(s)
}
