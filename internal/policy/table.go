package policy

import "sort"

// Operation identifies an API operation
type Operation string

const (
	OpLogin             Operation = "auth.login"
	OpRefresh           Operation = "auth.refresh"
	OpPublicGreeting    Operation = "greetings.public"
	OpProtectedGreeting Operation = "greetings.protected"
	OpListUsers         Operation = "users.list"
	OpGetUser           Operation = "users.get"
	OpCurrentUser       Operation = "users.me"
	OpHealth            Operation = "health.live"
	OpReadiness         Operation = "health.ready"
)

// Policy is the declared access requirement of an operation
type Policy struct {
	// AnonymousAllowed permits callers without an identity
	AnonymousAllowed bool

	// RequiredAuthorities lists authorities of which the caller must hold at least one
	RequiredAuthorities []string
}

// RequiresAuthentication is the default policy for undeclared operations
var RequiresAuthentication = Policy{}

// Anonymous allows every caller
var Anonymous = Policy{AnonymousAllowed: true}

// RequireAnyOf builds a policy requiring an authenticated caller holding one of the authorities
func RequireAnyOf(authorities ...string) Policy {
	return Policy{RequiredAuthorities: authorities}
}

// Table maps operations to their policy. It must not be modified once serving starts.
type Table map[Operation]Policy

// Lookup returns the policy of the operation, defaulting to RequiresAuthentication
func (t Table) Lookup(op Operation) Policy {
	if p, ok := t[op]; ok {
		return p
	}
	return RequiresAuthentication
}

// Operations returns the declared operations in sorted order
func (t Table) Operations() []Operation {
	ops := make([]Operation, 0, len(t))
	for op := range t {
		ops = append(ops, op)
	}
	sort.Slice(ops, func(i, j int) bool { return ops[i] < ops[j] })
	return ops
}

// DefaultTable returns the policy table of the API
func DefaultTable() Table {
	return Table{
		OpLogin:             Anonymous,
		OpRefresh:           RequiresAuthentication,
		OpPublicGreeting:    Anonymous,
		OpProtectedGreeting: RequiresAuthentication,
		OpListUsers:         RequireAnyOf("ADMIN"),
		OpGetUser:           RequireAnyOf("ADMIN"),
		OpCurrentUser:       Anonymous,
		OpHealth:            Anonymous,
		OpReadiness:         Anonymous,
	}
}
