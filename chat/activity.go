package chat

import "github.com/jrsteele09/go-identity-bridge/sessions"

const (
	ActivityMessage        = "message"
	ActivityInvoke         = "invoke"
	ActivityInvokeResponse = "invokeResponse"

	// InvokeVerifyState is sent by the sign-in success page with the code it displayed.
	InvokeVerifyState = "signin/verifyState"
)

// ChannelAccount identifies a user or bot on a channel.
type ChannelAccount struct {
	ID          string `json:"id"`
	Name        string `json:"name,omitempty"`
	AADObjectID string `json:"aadObjectId,omitempty"`
}

// ConversationAccount identifies a conversation.
type ConversationAccount struct {
	ID string `json:"id"`
}

// Activity is the subset of a Bot Framework activity this service reads and writes.
type Activity struct {
	Type         string              `json:"type"`
	ID           string              `json:"id,omitempty"`
	ChannelID    string              `json:"channelId"`
	ServiceURL   string              `json:"serviceUrl,omitempty"`
	From         ChannelAccount      `json:"from"`
	Recipient    ChannelAccount      `json:"recipient"`
	Conversation ConversationAccount `json:"conversation"`
	ReplyToID    string              `json:"replyToId,omitempty"`
	Text         string              `json:"text,omitempty"`
	Name         string              `json:"name,omitempty"`
	Value        map[string]any      `json:"value,omitempty"`
}

// Address returns the conversation address of the activity's sender.
func (a Activity) Address() sessions.Address {
	return sessions.Address{
		ChannelID:      a.ChannelID,
		ServiceURL:     a.ServiceURL,
		ConversationID: a.Conversation.ID,
		UserID:         a.From.ID,
		UserObjectID:   a.From.AADObjectID,
		BotID:          a.Recipient.ID,
	}
}

func (a Activity) reply(text string) *Activity {
	return &Activity{
		Type:         ActivityMessage,
		ChannelID:    a.ChannelID,
		ServiceURL:   a.ServiceURL,
		From:         a.Recipient,
		Recipient:    a.From,
		Conversation: a.Conversation,
		ReplyToID:    a.ID,
		Text:         text,
	}
}

func (a Activity) invokeResponse(status int, text string) *Activity {
	return &Activity{
		Type:      ActivityInvokeResponse,
		ChannelID: a.ChannelID,
		ReplyToID: a.ID,
		Value: map[string]any{
			"status": status,
			"body":   map[string]any{"text": text},
		},
	}
}
