package registry

import (
	"strings"

	"github.com/MrSnakeDoc/vigil/internal/domain"
)

// Key layout under the namespace root:
//
//	{root}/by-uuid/{id}              -> encoded ServiceRecord
//	{root}/by-status/{status}/{id}   -> "" (marker)
//	{root}/by-type-host/{kind}/{host} -> id
//	{root}/by-region/{region}/{id}   -> "" (marker)
const (
	segmentServices = "services"
	segmentByUUID   = "by-uuid"
	segmentByStatus = "by-status"
	segmentByType   = "by-type-host"
	segmentByRegion = "by-region"
)

// Keyspace builds every key the registry reads or writes. All keys live
// under a single namespace root so multiple deployments can share one
// cluster without colliding.
type Keyspace struct {
	root string
}

// NewKeyspace returns a Keyspace rooted at /{namespace}/services, or at
// /services when the namespace is empty. Surrounding slashes in the
// namespace are ignored.
func NewKeyspace(namespace string) Keyspace {
	ns := strings.Trim(namespace, "/")
	if ns == "" {
		return Keyspace{root: "/" + segmentServices}
	}
	return Keyspace{root: "/" + ns + "/" + segmentServices}
}

// Root returns the namespace root shared by all registry keys.
func (k Keyspace) Root() string {
	return k.root
}

// Primary returns the key holding the encoded record for id.
func (k Keyspace) Primary(id string) string {
	return k.PrimaryPrefix() + id
}

// PrimaryPrefix returns the prefix covering every primary record key.
func (k Keyspace) PrimaryPrefix() string {
	return k.root + "/" + segmentByUUID + "/"
}

// Status returns the marker key placing id inside one status partition.
func (k Keyspace) Status(s domain.Status, id string) string {
	return k.StatusPrefix(s) + id
}

// StatusPrefix returns the prefix covering one status partition.
func (k Keyspace) StatusPrefix(s domain.Status) string {
	return k.StatusRoot() + s.String() + "/"
}

// StatusRoot returns the prefix covering every status partition.
func (k Keyspace) StatusRoot() string {
	return k.root + "/" + segmentByStatus + "/"
}

// TypeHost returns the alias key mapping (kind, host) to a record id.
func (k Keyspace) TypeHost(kind, host string) string {
	return k.TypeHostRoot() + kind + "/" + host
}

// TypeHostRoot returns the prefix covering every (kind, host) alias.
func (k Keyspace) TypeHostRoot() string {
	return k.root + "/" + segmentByType + "/"
}

// Region returns the marker key placing id inside one region partition.
func (k Keyspace) Region(region, id string) string {
	return k.RegionPrefix(region) + id
}

// RegionPrefix returns the prefix covering one region partition.
func (k Keyspace) RegionPrefix(region string) string {
	return k.RegionRoot() + region + "/"
}

// RegionRoot returns the prefix covering every region partition.
func (k Keyspace) RegionRoot() string {
	return k.root + "/" + segmentByRegion + "/"
}

// LastSegment returns the text after the final slash of key. Marker keys
// end in the record id, so this recovers the id from a scanned key.
func LastSegment(key string) string {
	if i := strings.LastIndexByte(key, '/'); i >= 0 {
		return key[i+1:]
	}
	return key
}
