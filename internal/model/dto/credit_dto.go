package dto

type BalanceInfo struct {
	UserID  int64 `json:"user_id"`
	Credits int   `json:"credits"`
}

type LedgerEntryItem struct {
	ID             int64  `json:"id"`
	OperationType  string `json:"operation_type"`
	IdempotencyKey string `json:"idempotency_key"`
	OldValue       int    `json:"old_value"`
	ChangeValue    int    `json:"change_value"`
	NewValue       int    `json:"new_value"`
	Note           string `json:"note,omitempty"`
	CreatedAt      string `json:"created_at"`
}
