// Package kv is the durable backend.Backend on an embedded Badger store.
//
// Every table lives under its own key prefix and every secondary index is
// a set of empty-valued keys of the form prefix/{indexed value}\x00{id}.
// A row and its index keys are always written in one transaction.
//
// Key layout:
//
//	s/{id}                     session row
//	iu/{user}\x00{id}          sessions by owner
//	f/{id}                     file row
//	if/{session}\x00{id}       files by session
//	r/{id}                     record row
//	ip/{patient}\x00{id}       records by patient
//	a/{id:be64}                audit entry
//	ias/{session}\x00{id:be64} audit by session
//	iaa/{actor}\x00{id:be64}   audit by actor
package kv
