// Package session manages anonymous connection sessions. It stores ephemeral
// per-connection state in Redis: the optional authenticated identity, the
// gate verification stage, and the current matchmaking status.
package session
