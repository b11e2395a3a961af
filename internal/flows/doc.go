// Package flows holds flow transitions as pure functions over Deps
// structs of function values. The root package owns state, locking, and
// error identity; this package owns the order of operations.
package flows
