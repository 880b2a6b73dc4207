// Package local implements the durable local storage tier.
//
// Each user's record lives in <dir>/<user>.workspace, written through a
// temp file and rename. Before a save replaces the primary, a primary that
// still decodes is rotated to <user>.workspace.bak, which the persistence
// coordinator reads when the primary is corrupt.
//
// Records may be written zstd-compressed; the encoding is detected from the
// frame magic on read, so the setting can change between runs.
package local
