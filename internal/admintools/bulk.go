package admintools

// BulkMode gates execute_bulk_operation at the type level. The zero value is
// disabled and DisabledBulkMode is the only exported constructor, so an
// enabled mode cannot be built outside this package. This keeps the guard in
// the type system rather than in a config flag someone could flip in
// production.
type BulkMode struct {
	enabled bool
}

// DisabledBulkMode returns the only BulkMode the server ever constructs.
func DisabledBulkMode() BulkMode {
	return BulkMode{}
}

// Enabled reports whether bulk operations may run.
func (m BulkMode) Enabled() bool {
	return m.enabled
}
