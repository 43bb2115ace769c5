package storage

// ApiStore defines the read-only operations needed by the HTTP query endpoints.
type ApiStore interface {
	TransactionReader
	EntitlementReader
	WalletReader
	NotificationReader
}
