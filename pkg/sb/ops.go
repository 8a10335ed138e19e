package sb

// OpKind mirrors the vocabulary of github.com/ovn-org/libovsdb's
// ovsdb.Operation ("insert"/"update"/"delete") without depending on a live
// client — the DB transport itself is out of scope (spec §1).
type OpKind string

const (
	OpInsert OpKind = "insert"
	OpUpdate OpKind = "update"
	OpDelete OpKind = "delete"
)

// Operation is one row-level mutation produced by a reconciler or syncer.
// Comment records a short audit reason, matching spec §4.2 "deleted with
// an audit comment" for malformed SB rows.
type Operation struct {
	Kind    OpKind
	Table   string
	RowUUID string
	Comment string
}
