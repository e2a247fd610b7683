package telegram

// Package telegram is the chat surface: long-poll ingress, selection
// keyboards, status message edits, and artifact delivery over the Bot API.
