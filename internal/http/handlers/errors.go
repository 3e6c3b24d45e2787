// Package handlers defines HTTP-layer error codes used across all API endpoints.
//
// Codes are lowercase snake_case and supplement the human-readable `error`
// message. Clients branch on the code; the message is for display.
//
// Example response:
//
//	{
//	  "success": false,
//	  "error": "Invalid agent type",
//	  "code": "bad_request"
//	}
package handlers

const (
	ErrCodeBadRequest  = "bad_request"
	ErrCodeNotFound    = "not_found"
	ErrCodeRateLimited = "too_many_requests"
	ErrCodeInternal    = "internal_error"

	// Domain-specific:
	ErrCodeChatFailed       = "chat_failed"
	ErrCodeListFailed       = "list_failed"
	ErrCodeDeleteFailed     = "delete_failed"
	ErrCodeMethodNotAllowed = "method_not_allowed"
)

// User-facing messages.
const (
	msgInvalidBody           = "Invalid request body"
	msgMessageTooLong        = "Message is too long"
	msgProcessFailed         = "Failed to process message"
	msgInvalidConversationID = "Invalid conversation ID"
	msgConversationNotFound  = "Conversation not found"
	msgFetchConversations    = "Failed to fetch conversations"
	msgFetchConversation     = "Failed to fetch conversation"
	msgDeleteConversation    = "Failed to delete conversation"
	msgConversationDeleted   = "Conversation deleted successfully"
	msgInvalidAgentType      = "Invalid agent type"
	msgAgentNotFound         = "Agent not found"
)
