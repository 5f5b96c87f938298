// Package journal persists plugin lifecycle events.
//
// SQLJournal implements plugins.EventSink on a database/sql handle (SQLite via
// OpenSQLite in the daemon) and lists recorded events for the admin API:
//
//	db, err := journal.OpenSQLite("brace.db")
//	j, err := journal.New(db)
//	registry := plugins.NewRegistry(dir, host, plugins.WithSink(journal.Multi(j, journal.NewLogSink(logger))))
package journal
