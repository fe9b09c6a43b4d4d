package logger

const (
	FieldChatID    = "chat_id"
	FieldChatRef   = "chat_ref"
	FieldUpdateID  = "update_id"
	FieldSenderID  = "sender_id"
	FieldEvent     = "event"
	FieldAction    = "action"
	FieldOperation = "operation"
	FieldPreview   = "preview"
	FieldError     = "error"

	FieldMessageID  = "message_id"
	FieldStatusCode = "status_code"
)
