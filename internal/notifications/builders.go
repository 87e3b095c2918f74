package notifications

import (
	"context"
	"fmt"
	"slices"
	"strings"
)

// Builder turns one group's rows, newest first, into a notification.
type Builder interface {
	Build(ctx context.Context, rows []Row) (*Notification, error)
}

// BuilderFunc adapts a function to Builder.
type BuilderFunc func(ctx context.Context, rows []Row) (*Notification, error)

func (f BuilderFunc) Build(ctx context.Context, rows []Row) (*Notification, error) {
	return f(ctx, rows)
}

// Builders holds the builder of every notification type.
type Builders struct {
	Reply        Builder
	Reaction     Builder
	External     Builder
	ThreadAction Builder
}

// DefaultBuilders returns the builders that render from content.
func DefaultBuilders(content ContentSource) Builders {
	return Builders{
		Reply:        &replyBuilder{content: content},
		Reaction:     &reactionBuilder{content: content},
		External:     externalBuilder{},
		ThreadAction: &threadActionBuilder{content: content},
	}
}

// buildGroup checks g and hands it to the builder of its type.
func (b Builders) buildGroup(ctx context.Context, g Group) (*Notification, error) {
	if err := checkGroup(g); err != nil {
		return nil, err
	}

	var builder Builder
	switch t := g.Rows[0].Type; t {
	case TypeReply:
		builder = b.Reply
	case TypeReaction:
		builder = b.Reaction
	case TypeExternal:
		builder = b.External
	case TypeThreadAction:
		builder = b.ThreadAction
	default:
		return nil, integrityErrorf(g.Rows[0].ID, "unknown notification type %q", t)
	}
	if builder == nil {
		return nil, fmt.Errorf("no builder for %s notifications", g.Rows[0].Type)
	}
	return builder.Build(ctx, g.Rows)
}

// base fills the fields every notification copies from its newest row.
func base(r Row) *Notification {
	return &Notification{
		ID:              r.ID,
		ExternalID:      r.ExternalID,
		Type:            r.Type,
		IconURL:         r.IconURL,
		ReadStatus:      r.ReadStatus,
		Timestamp:       r.CreatedTimestamp,
		ExtraClassnames: r.ExtraClassnames,
		Metadata:        r.Metadata,
	}
}

func requireSender(r Row) (string, error) {
	if r.SenderID == nil || *r.SenderID == "" {
		return "", fmt.Errorf("%s notification %s has no sender", r.Type, r.ID)
	}
	return *r.SenderID, nil
}

type replyBuilder struct {
	content ContentSource
}

func (b *replyBuilder) Build(ctx context.Context, rows []Row) (*Notification, error) {
	r := rows[0]
	sender, err := requireSender(r)
	if err != nil {
		return nil, err
	}
	if r.MessageID == nil {
		return nil, fmt.Errorf("reply notification %s has no message", r.ID)
	}
	msg, err := b.content.Message(ctx, *r.MessageID)
	if err != nil {
		return nil, err
	}
	thread, err := b.content.Thread(ctx, msg.ThreadID)
	if err != nil {
		return nil, err
	}

	n := base(r)
	n.SenderUserIDs = []string{sender}
	n.Header = []HeaderNode{UserNode(sender), TextNode(replyVerb(r.ReplyActions))}
	if thread.Name != "" {
		n.Header = append(n.Header, TextNode(thread.Name))
	}
	n.Attachment = MessageAttachment{MessageID: msg.ID, ThreadID: msg.ThreadID}
	return n, nil
}

func replyVerb(actions []string) string {
	switch {
	case slices.Contains(actions, "assign-task"):
		return "assigned you a task in"
	case slices.Contains(actions, "mention"):
		return "mentioned you in"
	case slices.Contains(actions, "create-thread"):
		return "created a thread"
	default:
		return "replied to"
	}
}

type reactionBuilder struct {
	content ContentSource
}

func (b *reactionBuilder) Build(ctx context.Context, rows []Row) (*Notification, error) {
	r := rows[0]
	if r.ReactionID == nil {
		return nil, fmt.Errorf("reaction notification %s has no reaction", r.ID)
	}
	reaction, err := b.content.Reaction(ctx, *r.ReactionID)
	if err != nil {
		return nil, err
	}
	msg, err := b.content.Message(ctx, reaction.MessageID)
	if err != nil {
		return nil, err
	}

	n := base(r)
	for _, row := range rows {
		sender, err := requireSender(row)
		if err != nil {
			return nil, err
		}
		if !slices.Contains(n.SenderUserIDs, sender) {
			n.SenderUserIDs = append(n.SenderUserIDs, sender)
		}
		if row.ReadStatus == ReadStatusUnread {
			n.ReadStatus = ReadStatusUnread
		}
	}
	for _, sender := range n.SenderUserIDs {
		n.Header = append(n.Header, UserNode(sender))
	}
	n.Header = append(n.Header, TextNode(fmt.Sprintf("reacted %s to your message", reaction.Unicode)))
	n.Attachment = MessageAttachment{MessageID: msg.ID, ThreadID: msg.ThreadID}
	return n, nil
}

// actorToken marks where the sender's name goes in an external template.
const actorToken = "{{actor}}"

type externalBuilder struct{}

func (externalBuilder) Build(_ context.Context, rows []Row) (*Notification, error) {
	r := rows[0]
	if r.ExternalTemplate == nil {
		return nil, fmt.Errorf("external notification %s has no template", r.ID)
	}

	n := base(r)
	parts := strings.Split(*r.ExternalTemplate, actorToken)
	if len(parts) > 1 || r.SenderID != nil {
		sender, err := requireSender(r)
		if err != nil {
			return nil, err
		}
		n.SenderUserIDs = []string{sender}
	}
	for i, part := range parts {
		if i > 0 {
			n.Header = append(n.Header, UserNode(n.SenderUserIDs[0]))
		}
		if part = strings.TrimSpace(part); part != "" {
			n.Header = append(n.Header, TextNode(part))
		}
	}
	if r.ExternalURL != nil && *r.ExternalURL != "" {
		n.Attachment = URLAttachment{URL: *r.ExternalURL}
	}
	return n, nil
}

type threadActionBuilder struct {
	content ContentSource
}

func (b *threadActionBuilder) Build(ctx context.Context, rows []Row) (*Notification, error) {
	r := rows[0]
	sender, err := requireSender(r)
	if err != nil {
		return nil, err
	}
	if r.ThreadActionType == nil {
		return nil, fmt.Errorf("thread_action notification %s has no action", r.ID)
	}
	var verb string
	switch *r.ThreadActionType {
	case "resolve":
		verb = "resolved"
	case "unresolve":
		verb = "reopened"
	default:
		return nil, fmt.Errorf("thread_action notification %s: unknown action %q", r.ID, *r.ThreadActionType)
	}
	if r.MessageID == nil {
		return nil, fmt.Errorf("thread_action notification %s has no message", r.ID)
	}
	msg, err := b.content.Message(ctx, *r.MessageID)
	if err != nil {
		return nil, err
	}
	thread, err := b.content.Thread(ctx, msg.ThreadID)
	if err != nil {
		return nil, err
	}

	n := base(r)
	n.SenderUserIDs = []string{sender}
	n.Header = []HeaderNode{UserNode(sender), TextNode(verb)}
	if thread.Name != "" {
		n.Header = append(n.Header, TextNode(thread.Name))
	}
	n.Attachment = ThreadAttachment{ThreadID: thread.ID}
	return n, nil
}
