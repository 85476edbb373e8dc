package bloat

import (
	"context"
	"fmt"
)

// ExactScan measures true bloat by inspecting index pages through
// pgstatindex(). Accurate, but every candidate index is read in full, so the
// I/O cost grows with index size.
type ExactScan struct{}

// Name implements Scanner.
func (ExactScan) Name() string { return "exact-scan" }

// RequiredExtensions implements Scanner. pgstatindex lives in pgstattuple.
func (ExactScan) RequiredExtensions() []string { return []string{"pgstattuple"} }

// exactSQL measures leaf density per index and scores bloat as the free
// share of leaf pages. Empty indexes report a NaN density and are skipped.
// The filters match Estimate: valid persistent B-tree indexes outside
// system schemas, bloat >= $1, $2 <= size <= $3.
const exactSQL = `
select n.nspname, c.relname,
       pg_relation_size(c.oid),
       round((100 - st.avg_leaf_density)::numeric, 1)
from pg_index i
join pg_class c on c.oid = i.indexrelid
join pg_namespace n on n.oid = c.relnamespace
join pg_am am on am.oid = c.relam,
lateral pgstatindex(c.oid) st
where am.amname = 'btree'
  and i.indisvalid
  and c.relpersistence = 'p'
  and n.nspname not in ('pg_catalog', 'information_schema')
  and n.nspname not like 'pg\_toast%%'
  and pg_relation_size(c.oid) between $2 and $3
  and st.avg_leaf_density <> 'NaN'::double precision
  and (100 - st.avg_leaf_density) >= $1
order by pg_relation_size(c.oid) %s`

// Scan implements Scanner.
func (ExactScan) Scan(ctx context.Context, q Querier, opts Options) ([]Candidate, error) {
	if err := opts.Validate(); err != nil {
		return nil, err
	}
	return collect(ctx, q, fmt.Sprintf(exactSQL, orderClause(opts.Order)), opts)
}
