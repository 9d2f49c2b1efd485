// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 QueryMesh Contributors

package extension

import (
	"errors"
	"strings"
)

var errNoSQLEngine = errors.New("no SQL engine attached")

// ColumnType is the declared type of a result column.
type ColumnType string

// Column types understood by the query surface.
const (
	ColumnUnknown ColumnType = "UNKNOWN"
	ColumnText    ColumnType = "TEXT"
	ColumnInteger ColumnType = "INTEGER"
	ColumnBigInt  ColumnType = "BIGINT"
	ColumnDouble  ColumnType = "DOUBLE"
	ColumnBlob    ColumnType = "BLOB"
)

// ColumnTypeOf maps a declared type name to a ColumnType.
func ColumnTypeOf(name string) ColumnType {
	switch ColumnType(strings.ToUpper(name)) {
	case ColumnText, ColumnInteger, ColumnBigInt, ColumnDouble, ColumnBlob:
		return ColumnType(strings.ToUpper(name))
	default:
		return ColumnUnknown
	}
}

// ColumnOptions carries per-column flags. Only the default set is used
// by the query surface today.
type ColumnOptions int

// DefaultColumnOptions is the option set applied to translated columns.
const DefaultColumnOptions ColumnOptions = 0

// Column is one entry of a query's column metadata.
type Column struct {
	Name    string
	Type    ColumnType
	Options ColumnOptions
}
