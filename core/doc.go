// Package core defines the shared contracts of the DeskMesh framework: the
// Agent interface, the immutable Message and Response types, the request
// category enumeration, the per-request RunContext, the error taxonomy and
// the collaborator store interfaces (history, knowledge, tickets, metrics).
//
// Package core has no dependencies on concrete agents or services so that
// every other package can depend on it without cycles.
package core
