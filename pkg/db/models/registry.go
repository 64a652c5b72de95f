package models

// All lists every persisted model in dependency order.
func All() []any {
	return []any{
		&Order{},
		&SubOrder{},
		&OrderItem{},
		&SubOrderStatusHistory{},
		&EscrowAllocation{},
		&EscrowLedgerEntry{},
		&PayoutAccount{},
		&PayoutRun{},
		&Invoice{},
		&ReturnCase{},
		&ReturnCaseItem{},
		&ReturnCaseHistory{},
		&CaseMessage{},
		&OutboxEvent{},
		&OutboxDLQ{},
	}
}
