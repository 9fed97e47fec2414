package dataprovider

import (
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"

	fwerrors "github.com/otherjamesbrown/foodwaste-data/pkg/errors"
)

// Scope names the database a command belongs to.
type Scope string

const (
	ScopeSystem    Scope = "system"
	ScopeHousehold Scope = "household"
)

// Command is a built SQL command with positional ($n) arguments.
type Command struct {
	Scope Scope
	SQL   string
	Args  []any
}

// CommandBuilder builds a Command from SQL using @name placeholders and
// typed parameters. Errors are collected and reported by Build.
type CommandBuilder struct {
	scope  Scope
	sql    string
	params map[string]any
	order  []string
	errs   []error
}

// NewCommandBuilder creates a builder for the given scope and SQL.
func NewCommandBuilder(scope Scope, sql string) *CommandBuilder {
	return &CommandBuilder{
		scope:  scope,
		sql:    sql,
		params: make(map[string]any),
	}
}

// NewSystemCommandBuilder creates a builder for food-waste system data commands.
func NewSystemCommandBuilder(sql string) *CommandBuilder {
	return NewCommandBuilder(ScopeSystem, sql)
}

// NewHouseholdCommandBuilder creates a builder for household data commands.
func NewHouseholdCommandBuilder(sql string) *CommandBuilder {
	return NewCommandBuilder(ScopeHousehold, sql)
}

// AddIdentifierParameter binds a GUID. uuid.Nil is bound as NULL.
func (b *CommandBuilder) AddIdentifierParameter(name string, id uuid.UUID) *CommandBuilder {
	if id == uuid.Nil {
		return b.add(name, nil)
	}
	return b.add(name, id)
}

// AddNullableIdentifierParameter binds an optional GUID.
func (b *CommandBuilder) AddNullableIdentifierParameter(name string, id *uuid.UUID) *CommandBuilder {
	if id == nil {
		return b.add(name, nil)
	}
	return b.AddIdentifierParameter(name, *id)
}

// AddBitParameter binds a boolean.
func (b *CommandBuilder) AddBitParameter(name string, value bool) *CommandBuilder {
	return b.add(name, value)
}

// AddSmallIntParameter binds a smallint (int16).
func (b *CommandBuilder) AddSmallIntParameter(name string, value int) *CommandBuilder {
	if value < -32768 || value > 32767 {
		b.errs = append(b.errs, fmt.Errorf("parameter @%s: value %d out of range: %w", trimAt(name), value, fwerrors.ErrValidation))
	}
	return b.add(name, int16(value))
}

// AddVarCharParameter binds a string limited to size characters. An empty
// string is bound as NULL when nullable is set.
func (b *CommandBuilder) AddVarCharParameter(name, value string, size int, nullable bool) *CommandBuilder {
	if size > 0 && utf8.RuneCountInString(value) > size {
		b.errs = append(b.errs, fmt.Errorf("parameter @%s: length %d exceeds %d: %w",
			trimAt(name), utf8.RuneCountInString(value), size, fwerrors.ErrValidation))
	}
	if value == "" && nullable {
		return b.add(name, nil)
	}
	return b.add(name, value)
}

// AddTextParameter binds an optional unbounded string.
func (b *CommandBuilder) AddTextParameter(name string, value *string) *CommandBuilder {
	if value == nil {
		return b.add(name, nil)
	}
	return b.add(name, *value)
}

// AddDateTimeParameter binds a timestamp, normalised to UTC.
func (b *CommandBuilder) AddDateTimeParameter(name string, value time.Time) *CommandBuilder {
	return b.add(name, value.UTC())
}

// AddNullableDateTimeParameter binds an optional timestamp.
func (b *CommandBuilder) AddNullableDateTimeParameter(name string, value *time.Time) *CommandBuilder {
	if value == nil {
		return b.add(name, nil)
	}
	return b.AddDateTimeParameter(name, *value)
}

// AddBinaryParameter binds a byte slice; nil is bound as NULL.
func (b *CommandBuilder) AddBinaryParameter(name string, value []byte) *CommandBuilder {
	if value == nil {
		return b.add(name, nil)
	}
	return b.add(name, value)
}

func (b *CommandBuilder) add(name string, value any) *CommandBuilder {
	key := trimAt(name)
	if key == "" {
		b.errs = append(b.errs, fmt.Errorf("parameter name is empty: %w", fwerrors.ErrValidation))
		return b
	}
	if _, exists := b.params[key]; exists {
		b.errs = append(b.errs, fmt.Errorf("parameter @%s bound twice: %w", key, fwerrors.ErrValidation))
		return b
	}
	b.params[key] = value
	b.order = append(b.order, key)
	return b
}

// Build rewrites @name placeholders outside string literals into positional
// parameters. A name used several times shares one position.
func (b *CommandBuilder) Build() (Command, error) {
	if len(b.errs) > 0 {
		return Command{}, b.errs[0]
	}

	var out strings.Builder
	out.Grow(len(b.sql))
	positions := make(map[string]int, len(b.params))
	args := make([]any, 0, len(b.params))
	inLiteral := false

	for i := 0; i < len(b.sql); i++ {
		c := b.sql[i]
		if c == '\'' {
			inLiteral = !inLiteral
			out.WriteByte(c)
			continue
		}
		if c != '@' || inLiteral || i+1 >= len(b.sql) || !isIdentStart(b.sql[i+1]) {
			out.WriteByte(c)
			continue
		}

		j := i + 1
		for j < len(b.sql) && isIdentChar(b.sql[j]) {
			j++
		}
		name := b.sql[i+1 : j]

		pos, seen := positions[name]
		if !seen {
			value, bound := b.params[name]
			if !bound {
				return Command{}, fmt.Errorf("placeholder @%s has no parameter: %w", name, fwerrors.ErrValidation)
			}
			args = append(args, value)
			pos = len(args)
			positions[name] = pos
		}
		fmt.Fprintf(&out, "$%d", pos)
		i = j - 1
	}

	for _, name := range b.order {
		if _, used := positions[name]; !used {
			return Command{}, fmt.Errorf("parameter @%s is not referenced: %w", name, fwerrors.ErrValidation)
		}
	}

	return Command{Scope: b.scope, SQL: out.String(), Args: args}, nil
}

func trimAt(name string) string {
	return strings.TrimPrefix(strings.TrimSpace(name), "@")
}

func isIdentStart(c byte) bool {
	return c == '_' || (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z')
}

func isIdentChar(c byte) bool {
	return isIdentStart(c) || (c >= '0' && c <= '9')
}
