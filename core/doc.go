// Package core defines the domain model and contracts for the courier
// webhook event gateway: courier events, the processed-event ledger,
// shipment projections, dead letters, and the store/queue interfaces the
// rest of the module is wired through.
package core
