// Package models defines the core domain models for Tally.
//
// # Money
//
// All monetary amounts are int64 minor units (cents for USD). Floating point
// never touches a stored balance; the calculator package distributes rounding
// remainders deterministically so that every expense's split lines sum to the
// expense amount exactly.
//
// # Balances
//
// Two balance graphs exist side by side:
//
//   - FriendLink holds one signed number per unordered user pair. Positive
//     means UserB owes UserA; reading from the other side negates it.
//   - Membership holds one signed number per (group, user) against the
//     group's virtual pool. Positive means the group owes the member.
//
// Both graphs are mutated only through the ledger package, which guarantees
// that every applied expense can be exactly reversed.
//
// # Design Principles
//
//  1. ID strings instead of pointers for relationships (no circular refs)
//  2. Stored records are the source of truth; BalanceSnapshot is derived and
//     always recomputable
//  3. Soft deletes for expenses (audit trail); settlements are append-only
package models
