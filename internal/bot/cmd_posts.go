package bot

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"postbot/internal/messagelog"
	"postbot/internal/transport"
)

const (
	listPostsDefault = 10
	listPostsMax     = 50
)

func (b *Bot) cmdListPosts(ctx context.Context, req *Request) error {
	limit := listPostsDefault
	if len(req.Args) == 1 {
		n, err := strconv.Atoi(req.Args[0])
		if err != nil || n < 1 {
			return b.replyText(ctx, req, "Usage: /list_posts [count], count between 1 and 50.")
		}
		if n > listPostsMax {
			n = listPostsMax
		}
		limit = n
	}

	posts := b.msgs.MessagesForChat(req.Chat.ChatID, limit)
	if len(posts) == 0 {
		return b.replyText(ctx, req, "No posts recorded for this chat yet.")
	}
	if err := b.replyText(ctx, req, fmt.Sprintf("Recent posts (%d):", len(posts))); err != nil {
		return err
	}
	for _, p := range posts {
		id := strconv.Itoa(p.MessageID)
		text := fmt.Sprintf("msg %s • %s\n%s", id,
			p.SentAt.In(b.engine.Location()).Format("02.01 15:04"),
			previewText(p.Text, p.ContentType))
		err := b.replyMarkup(ctx, req, text, keyboard(
			row(
				btn("✏️ Edit", "postedit", id),
				btn("🗑 Delete", "delete", id),
			),
		))
		if err != nil {
			return err
		}
	}
	return nil
}

// resolvePost finds the target of /edit_post and /delete_post: either an
// explicit message id argument or the replied-to bot message. Returns the
// remaining argument tokens.
func (b *Bot) resolvePost(req *Request) (messagelog.StoredMessage, []string, bool) {
	if req.Msg.ReplyTo != nil {
		if p, ok := b.msgs.Get(req.Chat.ChatID, req.Msg.ReplyTo.ID); ok && !p.Deleted {
			return p, req.Args, true
		}
	}
	if len(req.Args) >= 1 {
		if id, err := strconv.Atoi(req.Args[0]); err == nil {
			if p, ok := b.msgs.Get(req.Chat.ChatID, id); ok && !p.Deleted {
				return p, req.Args[1:], true
			}
		}
	}
	return messagelog.StoredMessage{}, nil, false
}

func (b *Bot) cmdEditPost(ctx context.Context, req *Request) error {
	post, rest, ok := b.resolvePost(req)
	if !ok {
		return b.replyText(ctx, req,
			"Usage: /edit_post <message id> <new text>, or reply to a bot post with /edit_post <new text>.\nSee /list_posts for ids.")
	}
	text := strings.TrimSpace(strings.Join(rest, " "))
	if text == "" {
		return b.replyText(ctx, req, "Give the new text: /edit_post <message id> <new text>.")
	}

	err := b.editStoredPost(ctx, post, text)
	b.recordAudit(ctx, req, "post.edit", postTarget(post.MessageID), err, nil)
	if err != nil {
		return b.replyText(ctx, req, "Edit failed: "+err.Error())
	}
	return b.replyText(ctx, req, fmt.Sprintf("✏️ Post %d updated.", post.MessageID))
}

// editStoredPost rewrites a sent post's text, or its caption for media
// posts, keeping the registry in sync.
func (b *Bot) editStoredPost(ctx context.Context, post messagelog.StoredMessage, text string) error {
	ref := transport.MessageRef{ChatID: post.ChatID, MessageID: post.MessageID}
	if post.ContentType == transport.ContentText {
		return b.send.EditText(ctx, ref, text, nil)
	}
	media := transport.Media{Kind: post.ContentType, FileID: post.FileID}
	return b.send.EditMedia(ctx, ref, media, text, nil)
}

func (b *Bot) cmdDeletePost(ctx context.Context, req *Request) error {
	post, _, ok := b.resolvePost(req)
	if !ok {
		return b.replyText(ctx, req,
			"Usage: /delete_post <message id>, or reply to a bot post with /delete_post.\nSee /list_posts for ids.")
	}
	ref := transport.MessageRef{ChatID: post.ChatID, MessageID: post.MessageID}
	err := b.send.Delete(ctx, ref)
	b.recordAudit(ctx, req, "post.delete", postTarget(post.MessageID), err, nil)
	if err != nil {
		return b.replyText(ctx, req, "Delete failed: "+err.Error())
	}
	return b.replyText(ctx, req, fmt.Sprintf("🗑 Post %d deleted.", post.MessageID))
}
