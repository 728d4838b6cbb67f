package onebot

import (
	"context"
	"time"
)

// SendMsgParams mirrors the gateway's send_msg action.
type SendMsgParams struct {
	MessageType string `json:"message_type"`
	UserID      int64  `json:"user_id,omitempty"`
	GroupID     int64  `json:"group_id,omitempty"`
	Message     string `json:"message"`
	AutoEscape  bool   `json:"auto_escape,omitempty"`
}

// SendGroupMsg sends a text message to a group.
func (c *Client) SendGroupMsg(ctx context.Context, groupID int64, message string) (*Ack, error) {
	return c.Call(ctx, "send_msg", SendMsgParams{
		MessageType: "group",
		GroupID:     groupID,
		Message:     message,
	})
}

// SendPrivateMsg sends a text message to a user.
func (c *Client) SendPrivateMsg(ctx context.Context, userID int64, message string) (*Ack, error) {
	return c.Call(ctx, "send_msg", SendMsgParams{
		MessageType: "private",
		UserID:      userID,
		Message:     message,
	})
}

// SetGroupKick removes a member from a group.
func (c *Client) SetGroupKick(ctx context.Context, groupID, userID int64, rejectAddRequest bool) error {
	_, err := c.Call(ctx, "set_group_kick", map[string]any{
		"group_id":           groupID,
		"user_id":            userID,
		"reject_add_request": rejectAddRequest,
	})
	return err
}

// SetGroupBan mutes a member. A zero duration lifts the mute.
func (c *Client) SetGroupBan(ctx context.Context, groupID, userID int64, duration time.Duration) error {
	_, err := c.Call(ctx, "set_group_ban", map[string]any{
		"group_id": groupID,
		"user_id":  userID,
		"duration": int64(duration.Seconds()),
	})
	return err
}

// GetGroupMemberInfo fetches a member's group profile.
func (c *Client) GetGroupMemberInfo(ctx context.Context, groupID, userID int64) (*Ack, error) {
	return c.Call(ctx, "get_group_member_info", map[string]any{
		"group_id": groupID,
		"user_id":  userID,
	})
}
