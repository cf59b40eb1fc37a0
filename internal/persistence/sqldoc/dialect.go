package sqldoc

import (
	"strconv"
	"strings"
)

// Dialect captures the SQL differences between the supported engines.
type Dialect struct {
	// Name identifies the engine in logs and errors.
	Name string
	// PayloadType is the column type used for JSON documents.
	PayloadType string
	// TimeType is the column type used for timestamps.
	TimeType string
	// PayloadSelect is the expression used to read a payload as text.
	PayloadSelect string
	// LockSuffix is appended to single-row reads inside a transaction.
	LockSuffix string
	// Numbered selects $1 style placeholders instead of ?.
	Numbered bool
}

// SQLite is the dialect used with modernc.org/sqlite.
var SQLite = Dialect{
	Name:          "sqlite",
	PayloadType:   "TEXT",
	TimeType:      "TEXT",
	PayloadSelect: "payload",
}

// Postgres is the dialect used with the pgx stdlib driver.
var Postgres = Dialect{
	Name:          "postgres",
	PayloadType:   "JSONB",
	TimeType:      "TIMESTAMPTZ",
	PayloadSelect: "payload::text",
	LockSuffix:    " FOR UPDATE",
	Numbered:      true,
}

// rebind rewrites ? placeholders for dialects using numbered parameters.
func (d Dialect) rebind(query string) string {
	if !d.Numbered {
		return query
	}
	var b strings.Builder
	b.Grow(len(query) + 8)
	n := 0
	for _, r := range query {
		if r == '?' {
			n++
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}
