package notifications

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/darkden-lab/relay/internal/directory"
)

type fakeDirectory struct {
	orgs    map[string][]string
	groups  map[string]*directory.Org
	members map[string]bool
	err     error
}

func (d *fakeDirectory) OrgIDsForUser(_ context.Context, userID string) ([]string, error) {
	return d.orgs[userID], d.err
}

func (d *fakeDirectory) IsMember(_ context.Context, userID, orgID string) (bool, error) {
	return d.members[userID+"/"+orgID], d.err
}

func (d *fakeDirectory) FindOrgByExternalID(_ context.Context, externalID, platformApplicationID string) (*directory.Org, error) {
	return d.groups[platformApplicationID+"/"+externalID], d.err
}

type fakeContent struct {
	messages  map[string]*MessageInfo
	reactions map[string]*ReactionInfo
	threads   map[string]*ThreadInfo
}

func (c *fakeContent) Message(_ context.Context, id string) (*MessageInfo, error) {
	if m, ok := c.messages[id]; ok {
		return m, nil
	}
	return nil, fmt.Errorf("message %s: %w", id, ErrContentNotFound)
}

func (c *fakeContent) Reaction(_ context.Context, id string) (*ReactionInfo, error) {
	if r, ok := c.reactions[id]; ok {
		return r, nil
	}
	return nil, fmt.Errorf("reaction %s: %w", id, ErrContentNotFound)
}

func (c *fakeContent) Thread(_ context.Context, id string) (*ThreadInfo, error) {
	if t, ok := c.threads[id]; ok {
		return t, nil
	}
	return nil, fmt.Errorf("thread %s: %w", id, ErrContentNotFound)
}

// fakeLoader serves rows from memory, honouring the cursor and limit of the
// expressions it is given.
type fakeLoader struct {
	mu    sync.Mutex
	rows  []Row
	err   error
	count int
	seen  []*Expressions
}

func (l *fakeLoader) Load(_ context.Context, _ string, e *Expressions) ([]Row, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.seen = append(l.seen, e)
	if l.err != nil {
		return nil, l.err
	}

	var out []Row
	for _, r := range l.rows {
		if e.before != nil && !r.CreatedTimestamp.Before(*e.before) {
			continue
		}
		out = append(out, r)
		if e.limit > 0 && uint64(len(out)) == e.limit {
			break
		}
	}
	return out, nil
}

func (l *fakeLoader) Count(_ context.Context, _ string, e *Expressions) (int, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.seen = append(l.seen, e)
	return l.count, l.err
}

func ptr[T any](v T) *T { return &v }

var baseTime = time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

// at returns baseTime minus n minutes, so lower n is newer.
func at(n int) time.Time {
	return baseTime.Add(-time.Duration(n) * time.Minute)
}

func replyRow(id string, minutesAgo int) Row {
	return Row{
		ID:               id,
		RecipientID:      "u1",
		SenderID:         ptr("u2"),
		Type:             TypeReply,
		ReadStatus:       ReadStatusUnread,
		CreatedTimestamp: at(minutesAgo),
		MessageID:        ptr("m1"),
	}
}

func reactionRow(id, key, sender string, status ReadStatus, minutesAgo int) Row {
	return Row{
		ID:               id,
		RecipientID:      "u1",
		SenderID:         ptr(sender),
		Type:             TypeReaction,
		AggregationKey:   ptr(key),
		ReadStatus:       status,
		CreatedTimestamp: at(minutesAgo),
		ReactionID:       ptr("r-" + id),
	}
}

func newFakeContent() *fakeContent {
	c := &fakeContent{
		messages: map[string]*MessageInfo{
			"m1": {ID: "m1", ThreadID: "t1", OrgID: "o1", SourceID: "u1"},
		},
		reactions: map[string]*ReactionInfo{},
		threads: map[string]*ThreadInfo{
			"t1": {ID: "t1", OrgID: "o1", Name: "Launch plan"},
		},
	}
	return c
}

func (c *fakeContent) addReaction(id, userID, unicode string) {
	c.reactions[id] = &ReactionInfo{ID: id, UserID: userID, MessageID: "m1", Unicode: unicode}
}
