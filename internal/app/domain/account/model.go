package account

import "time"

// Account represents an isolated customer workspace (a CRM sub-account).
// Every other entity in the automation layer is owned by one account.
type Account struct {
	ID        string
	Name      string
	Owner     string
	Active    bool
	Metadata  map[string]string
	CreatedAt time.Time
	UpdatedAt time.Time
}
