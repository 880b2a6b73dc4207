// Package persistence mirrors a user's Layout Store into three storage tiers.
//
// The volatile tier holds the active tab per layout and is written
// immediately. The local tier receives a debounced snapshot of the whole
// record, with a periodic safety flush and a final flush on shutdown. The
// optional remote tier receives changed layouts in the background and is
// the first source consulted at bootstrap.
package persistence
