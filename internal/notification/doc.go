// Package notification fans device events out to every user.
//
// A notification is written once, together with one read row per user that
// exists at that moment. Users created later do not see older
// notifications. Each user's inbox is the set of their read rows, so
// deleting from one inbox leaves the others intact.
package notification
