// Package retention ages out sensor history and notifications.
//
// A row is deleted when its timestamp is strictly older than now minus
// retention.days. Notification read rows are removed by foreign key
// cascade. With retention.days <= 0 nothing is ever deleted.
package retention
