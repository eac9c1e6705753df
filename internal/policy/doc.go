// Package policy declares the access policy of every operation exposed by the API.
//
// The table is built once at startup and consulted centrally by the
// authorization middleware:
//   - operations are anonymous-allowed or require authentication
//   - an operation may additionally require one of a set of authorities
//   - operations missing from the table require authentication
package policy
