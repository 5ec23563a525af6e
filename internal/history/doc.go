// Package history stores the append-only log of device actions.
//
// Every action writes exactly one row, in the same transaction as the
// device status change. Rows record both capabilities: a lamp-only device
// always shows its fan as off. Rows are never updated; the retention sweep
// is the only delete.
package history
