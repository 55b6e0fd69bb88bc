package schema

import (
	"strconv"
	"strings"
)

// Portable column type names. Dialects translate these; any other type
// string is passed through to the database verbatim.
const (
	TypeInt      = "int"
	TypeBigInt   = "bigint"
	TypeBool     = "bool"
	TypeFloat    = "float"
	TypeDouble   = "double"
	TypeText     = "text"
	TypeString   = "string"
	TypeDateTime = "datetime"
	TypeBlob     = "blob"
)

// DefaultStringLength is used for "string" without an explicit length.
const DefaultStringLength = 255

// ParseType splits a portable type such as "string(64)" into its name and
// length. ok is false when the type is not one of the portable names.
func ParseType(t string) (name string, length int, ok bool) {
	t = strings.ToLower(strings.TrimSpace(t))

	name = t
	if open := strings.IndexByte(t, '('); open > 0 && strings.HasSuffix(t, ")") {
		n, err := strconv.Atoi(strings.TrimSpace(t[open+1 : len(t)-1]))
		if err != nil || n <= 0 {
			return "", 0, false
		}
		name, length = strings.TrimSpace(t[:open]), n
	}

	switch name {
	case TypeString:
		if length == 0 {
			length = DefaultStringLength
		}
		return name, length, true
	case TypeInt, TypeBigInt, TypeBool, TypeFloat, TypeDouble, TypeText, TypeDateTime, TypeBlob:
		if length != 0 {
			return "", 0, false
		}
		return name, 0, true
	}

	return "", 0, false
}
