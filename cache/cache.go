// Package cache provides the expiring key-value store that sits in front of
// IP and ASN lookups.
//
// A [Store] keeps three independent key spaces (IP results, ASN results and
// a generic slot) that share one time-to-live fixed at construction. Entries
// are stamped when written and become stale once the TTL has elapsed; a stale
// entry reads as a miss but stays in memory until it is overwritten or the
// store is cleared. There is no background sweeper and no size bound.
package cache

import "github.com/Keksclan/ipcache/model"

// Cache is the contract the resolving client uses to short-circuit lookups.
// Get methods report a miss with a false boolean; a stale entry is a miss.
// Set and Clear always succeed and report true.
type Cache interface {
	GetIP(ip string) (*model.IPResult, bool)
	SetIP(ip string, r *model.IPResult) bool

	GetASN(asn string) (*model.ASNResult, bool)
	SetASN(asn string, r *model.ASNResult) bool

	Get(key string) (any, bool)
	Set(key string, val any) bool

	Clear() bool
}

// Space names one of the store's key spaces. It is used as a label in
// metrics and logs.
type Space string

const (
	SpaceIP      Space = "ip"
	SpaceASN     Space = "asn"
	SpaceGeneric Space = "generic"
)
