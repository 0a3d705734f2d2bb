package models

// All returns every model in migration order.
func All() []any {
	return []any{
		&User{},
		&RefreshToken{},
		&Category{},
		&Game{},
		&Plan{},
		&PaymentSession{},
		&Purchase{},
		&Subscription{},
		&Entitlement{},
		&GameToken{},
		&GameRequest{},
	}
}
