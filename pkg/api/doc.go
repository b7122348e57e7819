// Package api exposes the permission evaluator, resource-binding engine and
// quota tracker over a versioned HTTP interface.
//
// Routes are grouped under /api/v1. Mutating routes require the identity
// middleware to have run; the caller's user id becomes the actor for
// authorization and audit. Typed domain errors map onto statuses: Forbidden
// to 403, invalid arguments to 400, missing bindings to 404, capacity
// failures and storage outages to 503.
package api
