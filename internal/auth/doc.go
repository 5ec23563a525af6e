// Package auth holds the users notifications fan out to and the bearer
// token claims the HTTP API validates.
//
// Credentials, login and token issuance over HTTP are not handled here.
// Tokens are HS256 JWTs whose subject is a user ID; operators mint them
// with the -issue-token flag of the binary.
package auth
