// Package dispatch decides which cost tier a piece of agent work belongs to.
// Descriptions are matched against three ordered keyword tables (high, then
// medium, then low) and fall back to the medium tier when nothing matches so
// unknown work is never silently under-provisioned. Everything here is pure:
// a Classifier holds only compiled keyword tables and never mutates them.
package dispatch
