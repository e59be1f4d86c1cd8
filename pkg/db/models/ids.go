package models

import "github.com/google/uuid"

// ensureID assigns a client-side id so inserts do not depend on a database default.
func ensureID(id *uuid.UUID) {
	if *id == uuid.Nil {
		*id = uuid.New()
	}
}
