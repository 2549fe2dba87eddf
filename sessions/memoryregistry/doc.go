// Package memoryregistry provides an in-process sessions.Registry.
//
// Entries live only as long as the process; nothing is persisted and the
// registry is not shared between processes. A single RWMutex guards the map,
// so lookups from concurrent POST handlers do not contend with each other.
package memoryregistry
