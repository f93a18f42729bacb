// Package identity authenticates ledger accounts at the node's HTTP surface.
//
// It provides:
//   - AccountTokenIssuer  issues and verifies HS256 account tokens
//   - RequireAccount      Gin middleware binding a request to one account
package identity
