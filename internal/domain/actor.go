package domain

// Role: роль участника, выполняющего команду.
type Role string

const (
	RoleCustomer Role = "customer"
	RoleShop     Role = "shop"
	RoleAdmin    Role = "admin"
)

// Valid проверяет, что роль известна.
func (r Role) Valid() bool {
	switch r {
	case RoleCustomer, RoleShop, RoleAdmin:
		return true
	default:
		return false
	}
}

// Actor описывает аутентифицированного участника.
// У аккаунта магазина заполнен ShopID; такой аккаунт может заказывать и как покупатель.
type Actor struct {
	AccountID int64
	ShopID    int64
	Role      Role
}

// Validate проверяет, что участник аутентифицирован.
func (a Actor) Validate() error {
	if a.AccountID <= 0 || !a.Role.Valid() {
		return ErrActorInvalid
	}
	if a.Role == RoleShop && a.ShopID <= 0 {
		return ErrActorInvalid
	}
	return nil
}

// IsAdmin сообщает, что участник обходит проверку владения.
func (a Actor) IsAdmin() bool {
	return a.Role == RoleAdmin
}
