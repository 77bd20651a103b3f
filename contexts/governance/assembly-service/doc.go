// Package assemblyservice implements condominium assembly governance inside
// the governance context.
//
// The module owns the assembly session lifecycle and the attendance ledger
// that feeds quorum. Its voting engine admits at most one weighted ballot per
// resident and agenda item. Every read and write is routed through the
// tenant router to the namespace of a single residential complex; finalized
// results leave through the outbox and the result publisher worker.
package assemblyservice
