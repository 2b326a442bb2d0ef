package push

import (
	"errors"
	"fmt"
	"log/slog"

	"github.com/nestlinghq/nestling/internal/model"
	"github.com/nestlinghq/nestling/internal/store"
)

// Notifier fans badge workflow events out to push subscribers, honoring
// per-user notification preferences. Expired subscriptions are pruned as they
// are discovered.
type Notifier struct {
	service *Service
	push    *store.PushStore
	badges  *store.BadgeStore
	logger  *slog.Logger
}

func NewNotifier(svc *Service, pushStore *store.PushStore, badgeStore *store.BadgeStore, logger *slog.Logger) *Notifier {
	return &Notifier{
		service: svc,
		push:    pushStore,
		badges:  badgeStore,
		logger:  logger,
	}
}

// NotifyVerified tells the submitter their submission was decided.
func (n *Notifier) NotifyVerified(c *model.BadgeCollection) {
	title := "Badge Approved"
	body := "Your badge submission was approved."
	if c.Status == model.StatusRejected {
		title = "Badge Rejected"
		body = "Your badge submission was not approved."
		if c.VerificationNote != "" {
			body = fmt.Sprintf("Not approved: %s", c.VerificationNote)
		}
	}
	if badge, err := n.badges.GetByID(c.BadgeID); err == nil && badge != nil {
		body = fmt.Sprintf("%q: %s", badge.Title, body)
	}

	n.sendToUser(c.SubmittedBy, model.NotifTypeBadgeVerified, Payload{
		Title: title,
		Body:  body,
		URL:   fmt.Sprintf("/babies/%d/badges", c.BabyID),
		Tag:   fmt.Sprintf("badge-%d", c.ID),
	})
}

// NotifyFamilyChanged tells a user their membership for a baby changed.
func (n *Notifier) NotifyFamilyChanged(userID, babyID int64, summary string) {
	n.sendToUser(userID, model.NotifTypeFamilyChanged, Payload{
		Title: "Family Updated",
		Body:  summary,
		URL:   fmt.Sprintf("/babies/%d/family", babyID),
		Tag:   fmt.Sprintf("family-%d", babyID),
	})
}

// NotifyInviteAccepted tells the inviter their invitation was redeemed.
func (n *Notifier) NotifyInviteAccepted(inviterUserID, babyID int64, name string) {
	n.sendToUser(inviterUserID, model.NotifTypeInviteAccepted, Payload{
		Title: "Invitation Accepted",
		Body:  fmt.Sprintf("%s joined the family", name),
		URL:   fmt.Sprintf("/babies/%d/family", babyID),
		Tag:   fmt.Sprintf("invite-%d", babyID),
	})
}

func (n *Notifier) sendToUser(userID int64, notifType string, payload Payload) {
	if n.service == nil {
		return
	}
	enabled, err := n.push.IsEnabled(userID, notifType)
	if err != nil {
		n.logger.Error("check notification preference", "error", err)
		return
	}
	if !enabled {
		return
	}

	subs, err := n.push.ListByUser(userID)
	if err != nil {
		n.logger.Error("list push subscriptions", "error", err)
		return
	}
	for _, sub := range subs {
		if err := n.service.Send(&sub, payload); err != nil {
			if errors.Is(err, ErrExpired) {
				n.push.DeleteByEndpoint(sub.Endpoint)
			} else {
				n.logger.Error("send push", "error", err, "user_id", userID)
			}
		}
	}
}
