package models

import (
	"time"

	"github.com/uptrace/bun"
)

type User struct {
	bun.BaseModel `bun:"table:users"`

	ID    string `bun:"id,pk" json:"id"`
	Name  string `bun:"name,notnull" json:"name"`
	Email string `bun:"email,notnull" json:"email"`
	Role  string `bun:"role,notnull" json:"role"`
}

// PointsTally is the attendance-points balance maintained by the points worker
// from check-in events. It is bookkeeping only: the ledger never reads it.
type PointsTally struct {
	bun.BaseModel `bun:"table:user_points"`

	UserID    string    `bun:"user_id,pk" json:"user_id"`
	Points    int       `bun:"points,notnull" json:"points"`
	UpdatedAt time.Time `bun:"updated_at,notnull" json:"updated_at"`
}
