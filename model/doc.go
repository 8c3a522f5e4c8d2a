// Package model defines the core types shared across geostream.
//
// # Identity
//
// A Feature's identity is its string ID. Two Features with the same ID but
// different geometry or tags are "the same record" for equality and removal
// purposes; re-ingesting an ID replaces the prior generation.
//
// # Envelopes
//
// Envelopes are orb.Bound values computed from a Feature's geometry at the
// moment it is indexed. Entry captures the (feature, envelope) pair so the
// exact spatial registration can be undone later even if the geometry type
// would bound differently today.
package model
