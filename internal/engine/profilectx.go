package engine

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/zhouzirui/finpilot/backend/internal/model/chat"
	"github.com/zhouzirui/finpilot/backend/internal/model/profile"
)

// Profile context texts used when no summary can be built.
const (
	ContextNotFound   = "No profile exists for this user yet. Nothing is known about their situation."
	ContextIncomplete = "The user's profile is incomplete. Give general guidance and avoid assumptions about their situation."
	ContextFallback   = "Profile information is temporarily unavailable. Give general guidance."
)

// ProfileContext owns the cached profile summary on a session. It is the
// only writer of ProfileContext and ProfileContextBuiltAt.
type ProfileContext struct {
	profiles profile.Store
	now      func() time.Time
}

// NewProfileContext creates the cache component.
func NewProfileContext(profiles profile.Store, now func() time.Time) *ProfileContext {
	if now == nil {
		now = func() time.Time { return time.Now().UTC() }
	}
	return &ProfileContext{profiles: profiles, now: now}
}

// GetProfileContext returns the cached summary, building it when unset. The
// result is never empty and errors never propagate.
func (c *ProfileContext) GetProfileContext(ctx context.Context, session *chat.Session) string {
	if session.ProfileContext != "" && session.ProfileContextBuiltAt != nil {
		return session.ProfileContext
	}

	p, err := c.profiles.Get(ctx, session.UserID)
	if err != nil {
		log.Warn().Str("component", "profilectx").Str("user_id", session.UserID).Err(err).Msg("profile read failed, use fallback context")
		c.stamp(session, ContextFallback)
		return session.ProfileContext
	}
	c.build(ctx, session, p)
	return session.ProfileContext
}

// RefreshIfStale rebuilds the summary when nothing was built yet or the
// persisted profile changed after the last build. It also syncs the
// completion flag and the account cache.
func (c *ProfileContext) RefreshIfStale(ctx context.Context, session *chat.Session) {
	p, err := c.profiles.Get(ctx, session.UserID)
	if err != nil {
		log.Warn().Str("component", "profilectx").Str("user_id", session.UserID).Err(err).Msg("profile read failed during refresh")
		if session.ProfileContextBuiltAt == nil {
			c.stamp(session, ContextFallback)
		}
		return
	}

	if p != nil {
		session.ProfileComplete = p.Complete
	}

	builtAt := session.ProfileContextBuiltAt
	stale := builtAt == nil || session.ProfileContext == "" || (p != nil && p.UpdatedAt.After(*builtAt))
	if !stale {
		return
	}
	c.build(ctx, session, p)
}

// Propagate writes the summary of a freshly completed profile straight into
// the session so the next routing decision sees it.
func (c *ProfileContext) Propagate(session *chat.Session, p *profile.Profile, accounts []profile.Account) {
	if p == nil {
		return
	}
	session.ProfileComplete = p.Complete
	if accounts != nil {
		session.AccountIDs = accountIDs(accounts)
	}
	c.stamp(session, summarize(p))
}

func (c *ProfileContext) build(ctx context.Context, session *chat.Session, p *profile.Profile) {
	if p == nil {
		session.ProfileComplete = false
		c.stamp(session, ContextNotFound)
		return
	}

	accounts, err := c.profiles.Accounts(ctx, session.UserID)
	if err != nil {
		log.Warn().Str("component", "profilectx").Str("user_id", session.UserID).Err(err).Msg("account read failed, keep cached ids")
	} else {
		session.AccountIDs = accountIDs(accounts)
	}
	c.stamp(session, summarize(p))
}

func (c *ProfileContext) stamp(session *chat.Session, text string) {
	now := c.now()
	session.ProfileContext = text
	session.ProfileContextBuiltAt = &now
}

func summarize(p *profile.Profile) string {
	if !p.Complete {
		return ContextIncomplete
	}
	if summary := p.Summary(); summary != "" {
		return summary
	}
	return ContextIncomplete
}

func accountIDs(accounts []profile.Account) []string {
	ids := make([]string, 0, len(accounts))
	for _, a := range accounts {
		ids = append(ids, a.ID)
	}
	return ids
}
