package cmd

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/marcus/desk/internal/models"
	"github.com/marcus/desk/internal/output"
	"github.com/marcus/desk/internal/remote"
	desksync "github.com/marcus/desk/internal/sync"
)

var chatCmd = &cobra.Command{
	Use:     "chat",
	Short:   "Team channel and direct messages",
	GroupID: "records",
}

var chatSendCmd = &cobra.Command{
	Use:   "send TEXT...",
	Short: "Send a message to the channel or, with --to, to one user",
	RunE: func(cmd *cobra.Command, args []string) error {
		text := strings.Join(args, " ")
		to, _ := cmd.Flags().GetString("to")
		image, _ := cmd.Flags().GetString("image")

		a, err := openApp(cmd, appOptions{})
		if err != nil {
			return err
		}
		defer a.close()

		if to != "" {
			if _, ok := a.state.User(to); !ok {
				return fmt.Errorf("unknown user %q", to)
			}
		}

		if a.engine == nil {
			// local-only: same append the sender does, nothing to insert into
			msg, err := appendLocalMessage(a, to, text, image)
			if err != nil {
				return err
			}
			output.Warning("no remote configured, message stored locally (%s)", msg.ID)
			return nil
		}

		var res desksync.SendResult
		if image != "" {
			res, err = a.engine.Sender.SendImage(cmd.Context(), a.user.ID, to, image, text)
		} else {
			res, err = a.engine.Sender.Send(cmd.Context(), a.user.ID, to, text)
		}
		if err != nil {
			return err
		}
		if res.Err != nil {
			output.Warning("stored locally, not delivered: %s", remote.Describe(res.Err))
			return nil
		}
		if jsonOutput(cmd) {
			return output.JSON(res.Message)
		}
		output.Success("Sent %s", res.Message.ID)
		return nil
	},
}

func appendLocalMessage(a *app, to, text, image string) (models.ChatMessage, error) {
	msg := models.ChatMessage{
		ID:         models.NewMessageID(),
		SenderID:   a.user.ID,
		ReceiverID: to,
		Text:       strings.TrimSpace(text),
		Type:       models.MessageText,
	}
	if image != "" {
		msg.Type = models.MessageImage
		msg.AttachmentURL = image
	}
	if msg.Text == "" && msg.AttachmentURL == "" {
		return msg, desksync.ErrEmptyMessage
	}
	msg.CreatedAt = time.Now().UTC()
	_, err := a.state.AppendMessageIfAbsent(msg)
	return msg, err
}

var chatListCmd = &cobra.Command{
	Use:     "list",
	Aliases: []string{"ls"},
	Short:   "Show recent messages visible to you",
	RunE: func(cmd *cobra.Command, args []string) error {
		limit, _ := cmd.Flags().GetInt("limit")
		with, _ := cmd.Flags().GetString("with")

		a, err := openApp(cmd, appOptions{})
		if err != nil {
			return err
		}
		defer a.close()

		var msgs []models.ChatMessage
		for _, m := range a.state.Messages() {
			if !visibleTo(m, a.user.ID, with) {
				continue
			}
			msgs = append(msgs, m)
		}
		if limit > 0 && len(msgs) > limit {
			msgs = msgs[len(msgs)-limit:]
		}

		if jsonOutput(cmd) {
			if msgs == nil {
				msgs = []models.ChatMessage{}
			}
			return output.JSON(msgs)
		}
		if len(msgs) == 0 {
			fmt.Println("No messages")
			return nil
		}
		for _, m := range msgs {
			to := ""
			if m.ReceiverID != "" {
				to = a.userName(m.ReceiverID)
			}
			fmt.Println(output.FormatMessage(m, a.userName(m.SenderID), to))
		}
		return nil
	},
}

// visibleTo reports whether userID can see m. With a non-empty peer only
// the direct conversation between the two is shown.
func visibleTo(m models.ChatMessage, userID, peer string) bool {
	if peer != "" {
		return (m.SenderID == userID && m.ReceiverID == peer) ||
			(m.SenderID == peer && m.ReceiverID == userID)
	}
	return m.ReceiverID == "" || m.ReceiverID == userID || m.SenderID == userID
}

var chatReadCmd = &cobra.Command{
	Use:   "read USER",
	Short: "Mark direct messages from USER as read",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := openApp(cmd, appOptions{})
		if err != nil {
			return err
		}
		defer a.close()

		if _, ok := a.state.User(args[0]); !ok {
			return fmt.Errorf("unknown user %q", args[0])
		}
		var n int
		if a.engine != nil {
			n, err = a.engine.Sender.MarkRead(args[0], a.user.ID)
		} else {
			n, err = desksync.NewSender(nil, a.state).MarkRead(args[0], a.user.ID)
		}
		if err != nil {
			output.Warning("saved in memory only: %v", err)
		}
		output.Success("Marked %d message(s) from %s as read", n, a.userName(args[0]))
		return nil
	},
}

func init() {
	chatSendCmd.Flags().String("to", "", "Recipient user id (default: the team channel)")
	chatSendCmd.Flags().String("image", "", "Send an image by URL; TEXT becomes the caption")
	chatListCmd.Flags().Int("limit", 30, "Show at most this many messages")
	chatListCmd.Flags().String("with", "", "Only the direct conversation with this user")

	chatCmd.AddCommand(chatSendCmd, chatListCmd, chatReadCmd)
	rootCmd.AddCommand(chatCmd)
}
