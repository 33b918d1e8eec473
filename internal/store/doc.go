// Package store persists finished artifacts in an embedded badger database.
//
// Every artifact gets a random id and two keys: artifact/<id>/data holds the
// payload and artifact/<id>/meta holds a JSON Record.
package store
