package db

import "gorm.io/gorm"

// RowLockClause returns the suffix appended to SELECT statements that must
// hold the row until the surrounding transaction ends. SQLite has no FOR
// UPDATE syntax and serializes writers at the connection level, so the
// suffix is empty there.
func RowLockClause(tx *gorm.DB) string {
	if tx.Dialector.Name() == "sqlite" {
		return ""
	}
	return " FOR UPDATE"
}
