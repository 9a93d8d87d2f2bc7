package domain

import "strings"

// ClientID identifies a client for the lifetime of its signaling connection.
// IDs are client-chosen random tokens; they are not persisted anywhere.
type ClientID string

// ControllerIDPrefix marks a client as registering in the controller role.
const ControllerIDPrefix = "controller-"

// IsControllerID reports whether the ID carries the controller-role prefix.
func IsControllerID(id ClientID) bool {
	return strings.HasPrefix(string(id), ControllerIDPrefix)
}

// ControllerInfo is the relay's answer to controller discovery. An empty
// ControllerID means no controller is currently registered.
type ControllerInfo struct {
	ControllerID ClientID `json:"controllerId"`
}

// PolitePeer decides which side of a negotiation glare yields. The
// lexicographically lower ID abandons its own offer and answers the
// incoming one; the comparison is the same on both sides, so exactly one
// peer is polite.
func PolitePeer(localID, remoteID ClientID) bool {
	return localID < remoteID
}
