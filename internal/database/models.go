package database

import (
	"database/sql"
	"time"
)

// Account owns a token balance. Balance is mutated only through the
// conditional balance operations on Store.
type Account struct {
	ID        int64     `db:"id"`
	Email     string    `db:"email"`
	Balance   int64     `db:"balance"`
	CreatedAt time.Time `db:"created_at"`
	UpdatedAt time.Time `db:"updated_at"`
}

// SurfaceKind distinguishes web tabs from the bot dialog.
type SurfaceKind string

const (
	SurfaceTab    SurfaceKind = "tab"
	SurfaceDialog SurfaceKind = "dialog"
)

// Surface is a conversation thread owning an ordered list of turns.
type Surface struct {
	ID        int64       `db:"id"`
	AccountID int64       `db:"account_id"`
	Kind      SurfaceKind `db:"kind"`
	Name      string      `db:"name"`
	CreatedAt time.Time   `db:"created_at"`
	UpdatedAt time.Time   `db:"updated_at"`
}

// Turn roles.
const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// Turn is one immutable message in a surface. Role and Content are nullable
// so that rows written by older tooling can be read and filtered.
type Turn struct {
	ID        int64          `db:"id"`
	SurfaceID int64          `db:"surface_id"`
	Role      sql.NullString `db:"role"`
	Content   sql.NullString `db:"content"`
	CreatedAt time.Time      `db:"created_at"`
}
