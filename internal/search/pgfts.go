package search

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"
)

// PgFTS implements search using PostgreSQL full-text search as a fallback.
type PgFTS struct {
	db *sql.DB
}

// NewPgFTS creates a PostgreSQL FTS searcher.
func NewPgFTS(db *sql.DB) *PgFTS {
	return &PgFTS{db: db}
}

// Healthy always returns true. If Postgres is down the whole app is down.
func (p *PgFTS) Healthy() bool {
	return true
}

type ftsSource struct {
	rtyp    ResultType
	table   string
	alias   string
	title   string
	snippet string
	entity  string
}

var ftsSources = []ftsSource{
	{ResultEntity, "game_entities", "e", "e.name", "e.summary || ' ' || e.description", "e.id"},
	{ResultLore, "lore_entries", "l", "l.title", "l.content", "coalesce(l.entity_id, '')"},
	{ResultThought, "thoughts", "th", "th.title", "th.body", "coalesce(th.entity_id, '')"},
	{ResultArt, "concept_art", "a", "a.title", "a.description", "coalesce(a.entity_id, '')"},
}

// buildQuery returns the count and page queries for q. Both share args.
func buildQuery(q Query) (countSQL, dataSQL string, args []any) {
	limit := q.Limit
	if limit <= 0 {
		limit = 20
	}
	offset := q.Offset
	if offset < 0 {
		offset = 0
	}

	tsQuery := "plainto_tsquery('simple', $1)"
	args = []any{q.Text}
	statusFilter := ""
	if q.Status != "" {
		args = append(args, q.Status)
		statusFilter = " AND %s.status = $2"
	}

	var subQueries []string
	for _, src := range ftsSources {
		if q.FilterType != "" && q.FilterType != src.rtyp {
			continue
		}
		where := src.alias + ".fts @@ " + tsQuery
		if statusFilter != "" {
			where += fmt.Sprintf(statusFilter, src.alias)
		}
		subQueries = append(subQueries, fmt.Sprintf(`
			SELECT '%s'::text AS type, %s.id, %s AS title,
				ts_headline('simple', coalesce(%s, ''), %s, 'MaxFragments=1,MaxWords=30,StartSel=<mark>,StopSel=</mark>') AS snippet,
				%s.status, %s AS entity_id,
				ts_rank(%s.fts, %s) AS rank
			FROM %s %s
			WHERE %s`,
			src.rtyp, src.alias, src.title,
			src.snippet, tsQuery,
			src.alias, src.entity,
			src.alias, tsQuery,
			src.table, src.alias,
			where))
	}

	union := strings.Join(subQueries, " UNION ALL ")
	countSQL = fmt.Sprintf("SELECT count(*) FROM (%s) sub", union)
	dataSQL = fmt.Sprintf(`SELECT type, id, title, snippet, status, entity_id
		FROM (%s) sub
		ORDER BY rank DESC, id
		LIMIT %d OFFSET %d`, union, limit, offset)
	return countSQL, dataSQL, args
}

// Search executes a UNION ALL query across the content tables using
// plainto_tsquery and ts_rank, with ts_headline for snippets.
func (p *PgFTS) Search(ctx context.Context, q Query) ([]Result, int, error) {
	if strings.TrimSpace(q.Text) == "" {
		return nil, 0, nil
	}

	countSQL, dataSQL, args := buildQuery(q)

	var total int
	if err := p.db.QueryRowContext(ctx, countSQL, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("pgfts count: %w", err)
	}

	rows, err := p.db.QueryContext(ctx, dataSQL, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("pgfts query: %w", err)
	}
	defer rows.Close()

	var results []Result
	for rows.Next() {
		var r Result
		var typ string
		if err := rows.Scan(&typ, &r.ID, &r.Title, &r.Snippet, &r.Status, &r.EntityID); err != nil {
			return nil, 0, fmt.Errorf("pgfts scan: %w", err)
		}
		r.Type = ResultType(typ)
		results = append(results, r)
	}

	return results, total, rows.Err()
}

// LoadAllRecords returns every searchable record grouped by type for full reindexing.
func (p *PgFTS) LoadAllRecords(ctx context.Context) (map[ResultType][]Record, error) {
	queries := []struct {
		rtyp  ResultType
		query string
		tags  string
	}{
		{ResultEntity, `SELECT id, name, summary, description, status, '', updated_at FROM game_entities`, `SELECT entity_id, tag FROM entity_tags`},
		{ResultLore, `SELECT id, title, summary, content, status, coalesce(entity_id, ''), updated_at FROM lore_entries`, `SELECT lore_id, tag FROM lore_entry_tags`},
		{ResultThought, `SELECT id, title, '', body, status, coalesce(entity_id, ''), updated_at FROM thoughts`, `SELECT thought_id, tag FROM thought_tags`},
		{ResultArt, `SELECT id, title, '', description, status, coalesce(entity_id, ''), updated_at FROM concept_art`, `SELECT art_id, tag FROM concept_art_tags`},
	}

	out := make(map[ResultType][]Record, len(queries))
	for _, q := range queries {
		tags, err := p.loadTagMap(ctx, q.tags)
		if err != nil {
			return nil, fmt.Errorf("load %s tags: %w", q.rtyp, err)
		}
		records, err := p.loadRecords(ctx, q.rtyp, q.query, tags)
		if err != nil {
			return nil, err
		}
		out[q.rtyp] = records
	}
	return out, nil
}

func (p *PgFTS) loadRecords(ctx context.Context, rtyp ResultType, query string, tags map[string][]string) ([]Record, error) {
	rows, err := p.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("load %s: %w", rtyp, err)
	}
	defer rows.Close()

	records := make([]Record, 0)
	for rows.Next() {
		rec := Record{Type: rtyp}
		var updatedAt time.Time
		if err := rows.Scan(&rec.ID, &rec.Title, &rec.Summary, &rec.Body, &rec.Status, &rec.EntityID, &updatedAt); err != nil {
			return nil, fmt.Errorf("scan %s: %w", rtyp, err)
		}
		rec.UpdatedAt = Timestamp(updatedAt)
		rec.Tags = tags[rec.ID]
		if rec.Tags == nil {
			rec.Tags = []string{}
		}
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate %s: %w", rtyp, err)
	}
	return records, nil
}

func (p *PgFTS) loadTagMap(ctx context.Context, query string) (map[string][]string, error) {
	rows, err := p.db.QueryContext(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make(map[string][]string)
	for rows.Next() {
		var owner, tag string
		if err := rows.Scan(&owner, &tag); err != nil {
			return nil, err
		}
		out[owner] = append(out[owner], tag)
	}
	return out, rows.Err()
}
