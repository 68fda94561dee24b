// internal/search/retriever/query.go
package retriever

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/36JungKwan/place-search-engine-RAG/internal/search/constraint"
)

// topK caps every hybrid query; relaxation happens by loosening constraints,
// never by paging deeper.
const topK = 8

// Scoring weights per strategy. Precise leans on the lexical rank, semantic
// on the vector similarity.
const (
	preciseTextWeight    = 0.7
	preciseVectorWeight  = 0.3
	semanticTextWeight   = 0.3
	semanticVectorWeight = 0.7
)

// allDayMarker flags venues without a bounded opening window in the dataset.
const allDayMarker = "Cả ngày"

var lexicalStripper = strings.NewReplacer(
	"!", "", "&", "", "|", "", "(", "", ")", "", ":", "", "*", "", "'", "",
)

// normalizeLexicalQuery turns free text into a tsquery expression: boolean
// operator characters are stripped and the remaining tokens are AND-joined,
// so every token must appear in the document.
func normalizeLexicalQuery(text string) string {
	return strings.Join(strings.Fields(lexicalStripper.Replace(text)), " & ")
}

// vectorLiteral renders an embedding in pgvector's input syntax.
func vectorLiteral(emb []float32) string {
	parts := make([]string, len(emb))
	for i, v := range emb {
		parts[i] = strconv.FormatFloat(float64(v), 'f', -1, 32)
	}
	return "[" + strings.Join(parts, ",") + "]"
}

type queryBuilder struct {
	sql  strings.Builder
	args []interface{}
}

// bind registers a value and returns its positional placeholder.
func (q *queryBuilder) bind(v interface{}) string {
	q.args = append(q.args, v)
	return fmt.Sprintf("$%d", len(q.args))
}

func (q *queryBuilder) writef(format string, a ...interface{}) {
	fmt.Fprintf(&q.sql, format, a...)
}

// buildQuery composes the hybrid scoring query for one constraint model.
// Every user-derived value goes through a positional bind; only the weights,
// which are compile-time constants, are spliced into the statement text.
//
// The lexical rank is squashed with rank/(rank+1) so it shares the vector
// term's [0,1) scale, and the vector term is 1 minus the cosine distance.
func buildQuery(m constraint.Model, emb []float32, now time.Time) (string, []interface{}) {
	wText, wVec := semanticTextWeight, semanticVectorWeight
	if m.Strategy == constraint.StrategyPrecise {
		wText, wVec = preciseTextWeight, preciseVectorWeight
	}

	q := &queryBuilder{}
	ts := q.bind(normalizeLexicalQuery(m.Query))
	vec := q.bind(vectorLiteral(emb))

	q.writef(`SELECT id, name, address, price_range, opening_hours, category,
    (%.1f * (ts_rank_cd(text_vector, to_tsquery('simple', %s)) / (ts_rank_cd(text_vector, to_tsquery('simple', %s)) + 1))
     + %.1f * (1 - (context_embedding <=> %s::vector))) AS final_score
FROM places
WHERE 1=1`, wText, ts, ts, wVec, vec)

	if m.HasDistrict() {
		q.writef(" AND address ILIKE %s", q.bind("%"+m.District+"%"))
	}

	// A price band only participates in price filtering when it parses as
	// "low - high"; malformed bands are filtered out rather than matched.
	if m.MaxPrice != nil {
		q.writef(` AND (price_range ~ '^\d+ - \d+$' AND CAST(split_part(price_range, ' - ', 1) AS INTEGER) <= %s)`,
			q.bind(*m.MaxPrice))
	}
	if m.MinPrice != nil {
		q.writef(` AND (price_range ~ '^\d+ - \d+$' AND CAST(split_part(price_range, ' - ', 2) AS INTEGER) >= %s)`,
			q.bind(*m.MinPrice))
	}

	if m.OpenNow {
		nowArg := q.bind(now.Format("15:04:05"))
		// Windows with end < start wrap past midnight.
		q.writef(` AND (opening_hours ILIKE %s OR (opening_hours ~ '^\d{2}:\d{2} - \d{2}:\d{2}$' AND (CASE WHEN CAST(split_part(opening_hours, ' - ', 1) AS TIME) <= CAST(split_part(opening_hours, ' - ', 2) AS TIME) THEN CAST(%s AS TIME) BETWEEN CAST(split_part(opening_hours, ' - ', 1) AS TIME) AND CAST(split_part(opening_hours, ' - ', 2) AS TIME) ELSE CAST(%s AS TIME) >= CAST(split_part(opening_hours, ' - ', 1) AS TIME) OR CAST(%s AS TIME) <= CAST(split_part(opening_hours, ' - ', 2) AS TIME) END)))`,
			q.bind("%"+allDayMarker+"%"), nowArg, nowArg, nowArg)
	}

	// Under the precise strategy the lexical query is a hard gate, not just
	// a ranking signal.
	if m.Strategy == constraint.StrategyPrecise {
		q.writef(" AND text_vector @@ to_tsquery('simple', %s)", ts)
	}

	for _, kw := range m.ExcludeKeywords {
		p := q.bind("%" + kw + "%")
		q.writef(" AND NOT (name ILIKE %s OR category ILIKE %s OR description ILIKE %s)", p, p, p)
	}

	for _, d := range m.ExcludeDistricts {
		q.writef(" AND address NOT ILIKE %s", q.bind("%"+d+"%"))
	}

	if len(m.TargetCategories) > 0 {
		conds := make([]string, len(m.TargetCategories))
		for i, cat := range m.TargetCategories {
			conds[i] = "category ILIKE " + q.bind("%"+cat+"%")
		}
		q.writef(" AND (%s)", strings.Join(conds, " OR "))
	}

	q.writef(" ORDER BY final_score DESC, id ASC LIMIT %d", topK)

	return q.sql.String(), q.args
}
