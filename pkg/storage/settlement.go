package storage

// SettlementStore defines the highly-privileged interface used by the settlement engine.
// It can move transactions between statuses, grant entitlements and credit wallets.
// It should only be exposed to the component responsible for settlement.
type SettlementStore interface {
	TransactionStore
	CatalogReader
	EntitlementStore
	CommissionStore
}
