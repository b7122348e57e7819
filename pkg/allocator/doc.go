// Package allocator maintains precomputed account candidate lists for groups
// drawing on the shared pool. A cron job rebuilds the lists periodically;
// between rebuilds the in-memory snapshot serves reads lock-free of the
// database, and a failed rebuild keeps the last known good snapshot in
// place. An optional Redis mirror makes the lists visible to other
// processes.
package allocator
