package models

type Role string

const (
	RoleOperator Role = "operator"
	RoleAdmin    Role = "admin"
)

// Operator is the caller of the control API, taken from the bearer token.
type Operator struct {
	ID   string `json:"id"`
	Role Role   `json:"role"`
}

func (o Operator) IsAdmin() bool { return o.Role == RoleAdmin }
