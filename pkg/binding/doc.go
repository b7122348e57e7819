// Package binding maps carpool groups to upstream AI accounts.
//
// Each group carries one ResourceBinding that fixes its binding mode
// (dedicated, shared or hybrid), its quota limits and its ranking strategy.
// The Manager turns that configuration into per-request account selection:
// group quota is checked first, then the mode's pool is filtered for status
// and account quota, and a pluggable Strategy orders what survives.
//
// Dedicated accounts are exclusive across the whole platform. The store
// enforces this with a partial unique index over active exclusive bindings,
// so moving an account between groups is a single transaction and two
// concurrent binds cannot both win.
package binding
