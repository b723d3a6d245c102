package errors

import (
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5/pgconn"
)

// ErrorDump is a flattened view of an error chain for structured logs:
// the top message, the typed code if any, every link in the chain, and
// Postgres driver details when a PgError is buried in there.
type ErrorDump struct {
	TopMessage string   `json:"top_message"`
	Code       Code     `json:"code,omitempty"`
	Chain      []string `json:"chain,omitempty"`
	Postgres   *PGDump  `json:"postgres,omitempty"`
}

type PGDump struct {
	Code       string `json:"code,omitempty"`
	Constraint string `json:"constraint,omitempty"`
	Table      string `json:"table,omitempty"`
	Column     string `json:"column,omitempty"`
	Detail     string `json:"detail,omitempty"`
	Message    string `json:"message,omitempty"`
}

// Dump flattens err for logging. Safe on nil.
func Dump(err error) ErrorDump {
	if err == nil {
		return ErrorDump{}
	}

	dump := ErrorDump{TopMessage: err.Error()}
	if typed := As(err); typed != nil {
		dump.Code = typed.Code()
	}
	for link := err; link != nil; link = errors.Unwrap(link) {
		dump.Chain = append(dump.Chain, fmt.Sprintf("%T: %v", link, link))
	}
	dump.Postgres = pgDump(err)
	return dump
}

func pgDump(err error) *PGDump {
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) {
		return nil
	}
	return &PGDump{
		Code:       pgErr.Code,
		Constraint: pgErr.ConstraintName,
		Table:      pgErr.TableName,
		Column:     pgErr.ColumnName,
		Detail:     pgErr.Detail,
		Message:    pgErr.Message,
	}
}
