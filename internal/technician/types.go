package technician

import "time"

// Technician is a laboratory user identity.
//
// Each physical store keeps its own technician rows under local ids;
// the canonical store holds the merged identity set. The cross-store
// match key is Username, which is unique within any single store.
type Technician struct {
	ID        string    `json:"id"`
	Username  string    `json:"username"`
	Email     string    `json:"email"`
	FirstName string    `json:"first_name"`
	LastName  string    `json:"last_name"`
	IsStaff   bool      `json:"is_staff"`
	IsActive  bool      `json:"is_active"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}
