// Package accounts exposes the read-only directory of upstream AI API
// accounts. The inventory itself is owned by the wider platform; this core
// only reads accounts to rank and select them for carpool groups.
package accounts
