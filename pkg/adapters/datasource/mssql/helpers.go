package mssql

import "strings"

// quoteName brackets an identifier the way QUOTENAME() would, escaping
// closing brackets by doubling them.
func quoteName(identifier string) string {
	return "[" + strings.ReplaceAll(identifier, "]", "]]") + "]"
}

// buildFullyQualifiedName builds a bracketed [schema].[table] reference.
func buildFullyQualifiedName(schema, table string) string {
	return quoteName(schema) + "." + quoteName(table)
}

// mapSQLServerType normalizes SQL Server type names into the shared
// vocabulary the engine's type predicates understand. Types with no
// special handling pass through upper-cased.
func mapSQLServerType(name string) string {
	switch strings.ToUpper(name) {
	case "INT":
		return "INTEGER"
	case "DECIMAL":
		return "NUMERIC"
	case "FLOAT":
		return "DOUBLE PRECISION"
	case "NCHAR":
		return "CHAR"
	case "NVARCHAR":
		return "VARCHAR"
	case "NTEXT":
		return "TEXT"
	case "BINARY", "VARBINARY":
		return "BYTEA"
	case "IMAGE":
		return "BLOB"
	case "DATETIME", "DATETIME2", "SMALLDATETIME":
		return "TIMESTAMP"
	case "DATETIMEOFFSET":
		return "TIMESTAMP WITH TIME ZONE"
	case "BIT":
		return "BOOLEAN"
	case "UNIQUEIDENTIFIER":
		return "UUID"
	default:
		return strings.ToUpper(name)
	}
}

// isStringType reports whether a SQL Server type holds text. The driver
// scans these as []byte in some paths; callers convert them to string.
func isStringType(sqlType string) bool {
	switch strings.ToUpper(sqlType) {
	case "CHAR", "NCHAR", "VARCHAR", "NVARCHAR", "TEXT", "NTEXT":
		return true
	default:
		return false
	}
}
