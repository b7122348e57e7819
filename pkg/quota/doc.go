// Package quota tracks daily and monthly token/cost consumption for carpool
// groups and upstream AI accounts.
//
// Period keys derive from wall-clock time at every read and write, so a new
// day or month simply starts from a lazily created zero row; there is no
// reset job. Remaining headroom never reports negative, and threshold
// classification (ok/warning/alert) uses the warning and alert percentages
// configured on the group's resource binding.
package quota
