package chat

import "github.com/cloudzz-dev/rosterchat/internal/models"

// CountUnread tallies unread messages addressed to me by sender. The
// result depends only on msgs, so recomputing it never drifts.
func CountUnread(msgs []models.Message, me string) map[string]int {
	counts := make(map[string]int)
	for _, m := range msgs {
		if m.Read || m.ReceiverID != me {
			continue
		}
		counts[m.SenderID]++
	}
	return counts
}

// Addressable returns the users that can be messaged, which is
// everybody except me.
func Addressable(all []models.ChatUser, me string) []models.ChatUser {
	out := make([]models.ChatUser, 0, len(all))
	for _, u := range all {
		if u.ID == me {
			continue
		}
		out = append(out, u)
	}
	return out
}
