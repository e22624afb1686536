// Package library owns uploaded documents and the Share Registry that
// decides which user may view which upload.
//
// Every viewer, admins included, reaches a document through a Share row.
// Admins never receive ordinary grants; they preview through a self-share
// created by EnsureSelfShare.
package library
