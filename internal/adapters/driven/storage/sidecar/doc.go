// Package sidecar implements driven.MetadataStore over JSON metadata files
// co-located with each organised document.
//
// A document at <root>/Investment_Fundraising/safe.pdf is described by
// <root>/Investment_Fundraising/safe.pdf.metadata.json. The record ID is the
// document path relative to the root, slash separated.
//
// Every sidecar is validated against an embedded JSON Schema before it is
// decoded. Files failing validation are logged and skipped; I/O failures
// abort the scan.
//
// Sidecars are written by the organiser and may carry fields the record
// does not model, so the store never rewrites them. Removing a record is
// the only operation that touches the library.
package sidecar
