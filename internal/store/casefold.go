package store

import (
	"github.com/ncruces/go-sqlite3"
	"golang.org/x/text/cases"
)

// registerFunctions installs the custom SQL functions on a new connection.
func registerFunctions(conn *sqlite3.Conn) error {
	return conn.CreateFunction("casefold", 1, sqlite3.DETERMINISTIC|sqlite3.INNOCUOUS, casefoldFunc)
}

// casefoldFunc implements casefold(text). Built-in LIKE only folds ASCII, so
// keyword search compares casefold(column) LIKE casefold(pattern).
func casefoldFunc(ctx sqlite3.Context, arg ...sqlite3.Value) {
	if arg[0].Type() == sqlite3.NULL {
		ctx.ResultNull()
		return
	}
	ctx.ResultText(foldCase(arg[0].Text()))
}

// folder is safe for concurrent use.
var folder = cases.Fold()

// foldCase applies full Unicode case folding, so "Straße" and "STRASSE" agree.
func foldCase(s string) string {
	return folder.String(s)
}
