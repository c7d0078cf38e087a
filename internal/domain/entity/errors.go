package entity

import "errors"

var (
	// Session errors
	ErrInvalidSessionID   = errors.New("invalid session id")
	ErrSessionNotFound    = errors.New("session not found")
	ErrNoLeaf             = errors.New("session has no leaf entry")
	ErrInvalidTransition  = errors.New("session cannot resume running from failed_execute without explicit regenerate")

	// Entry errors
	ErrInvalidEntryID     = errors.New("invalid entry id")
	ErrInvalidParentEntry = errors.New("parent entry does not exist on this branch")
	ErrDanglingToolCall   = errors.New("tool entry references unknown tool_call id")
	ErrBranchCycle        = errors.New("cycle detected while walking branch")
	ErrBranchTooLong      = errors.New("branch exceeds maximum traversal length")

	// Tool contract / provider errors
	ErrInvalidToolName   = errors.New("invalid tool name")
	ErrAliasCollision    = errors.New("alias collides with an existing canonical name")
	ErrCapabilityUnbound = errors.New("capability has no registered policy")

	// Lease errors
	ErrLeaseHeld     = errors.New("tab lease is held by another owner")
	ErrLeaseExpired  = errors.New("tab lease has expired")
	ErrLeaseNotFound = errors.New("no lease exists for this tab")
)
