package bloat

import (
	"context"
	"fmt"
)

// Estimate approximates B-tree bloat from catalog statistics: the expected
// leaf page count for the indexed tuple widths and fill factor is compared
// with the actual relpages. No index pages are read.
type Estimate struct{}

// Name implements Scanner.
func (Estimate) Name() string { return "estimate" }

// RequiredExtensions implements Scanner. The estimate works from pg_stats
// alone.
func (Estimate) RequiredExtensions() []string { return nil }

// estimateSQL models the expected page count of each B-tree index from the
// average width of its key columns, the table tuple count and the index fill
// factor (default 90), then scores bloat as the excess of actual pages over
// the estimate. The filters match ExactScan: valid persistent B-tree
// indexes outside system schemas, bloat >= $1, $2 <= size <= $3.
const estimateSQL = `
with index_cols as (
    select i.indexrelid,
           sum((1 - coalesce(s.null_frac, 0)) * coalesce(s.avg_width, 8)) as tuple_width
    from pg_index i
    join pg_class t on t.oid = i.indrelid
    join pg_namespace tn on tn.oid = t.relnamespace
    join pg_attribute a on a.attrelid = i.indexrelid and a.attnum > 0
    left join pg_stats s on s.schemaname = tn.nspname
        and s.tablename = t.relname
        and s.attname = pg_get_indexdef(i.indexrelid, a.attnum::int, true)
    group by i.indexrelid
),
scored as (
    select n.nspname as schemaname,
           c.relname as indexname,
           pg_relation_size(c.oid) as size_bytes,
           c.relpages::bigint as actual_pages,
           (ceil(t.reltuples * (coalesce(ic.tuple_width, 8) + 16)
                 / ((current_setting('block_size')::numeric - 24)
                    * coalesce(nullif(substring(array_to_string(c.reloptions, ' ')
                          from 'fillfactor=([0-9]+)'), '')::numeric, 90) / 100))
            + 1)::bigint as estimated_pages
    from pg_index i
    join pg_class c on c.oid = i.indexrelid
    join pg_class t on t.oid = i.indrelid
    join pg_namespace n on n.oid = c.relnamespace
    join pg_am am on am.oid = c.relam
    left join index_cols ic on ic.indexrelid = i.indexrelid
    where am.amname = 'btree'
      and i.indisvalid
      and c.relpersistence = 'p'
      and c.relpages > 0
      and n.nspname not in ('pg_catalog', 'information_schema')
      and n.nspname not like 'pg\_toast%%'
)
select schemaname, indexname, size_bytes,
       round(100 * (actual_pages - estimated_pages)::numeric / actual_pages, 1) as bloat_pct
from scored
where actual_pages > estimated_pages
  and round(100 * (actual_pages - estimated_pages)::numeric / actual_pages, 1) >= $1
  and size_bytes between $2 and $3
order by size_bytes %s`

// Scan implements Scanner.
func (Estimate) Scan(ctx context.Context, q Querier, opts Options) ([]Candidate, error) {
	if err := opts.Validate(); err != nil {
		return nil, err
	}
	return collect(ctx, q, fmt.Sprintf(estimateSQL, orderClause(opts.Order)), opts)
}
