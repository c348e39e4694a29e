package models

import (
	"errors"
	"time"

	"github.com/google/uuid"
)

// Deal statuses
const (
	DealStatusDraft                    = "draft"
	DealStatusNegotiation              = "negotiation"
	DealStatusRejected                 = "rejected"
	DealStatusAccepted                 = "accepted"
	DealStatusCreativeSubmitted        = "creative_submitted"
	DealStatusCreativeChangesRequested = "creative_changes_requested"
	DealStatusCreativeApproved         = "creative_approved"
	DealStatusFunded                   = "funded"
	DealStatusScheduled                = "scheduled"
	DealStatusPosted                   = "posted"
	DealStatusVerified                 = "verified"
	DealStatusReleased                 = "released"
	DealStatusRefunded                 = "refunded"
)

// Deal sources
const (
	DealSourceListing  = "listing"
	DealSourceCampaign = "campaign"
)

type DealAction string

const (
	DealActionPropose         DealAction = "propose"
	DealActionAdvance         DealAction = "advance"
	DealActionAccept          DealAction = "accept"
	DealActionReject          DealAction = "reject"
	DealActionSubmitCreative  DealAction = "submit_creative"
	DealActionRequestChanges  DealAction = "request_changes"
	DealActionApproveCreative DealAction = "approve_creative"
	DealActionFund            DealAction = "fund"
	DealActionSchedule        DealAction = "schedule"
	DealActionPost            DealAction = "post"
	DealActionVerify          DealAction = "verify"
	DealActionRelease         DealAction = "release"
	DealActionRefund          DealAction = "refund"
)

// Transition rejection reasons. Callers branch with errors.Is.
var (
	ErrNoSuchTransition = errors.New("no transition for this action and status")
	ErrRoleNotAllowed   = errors.New("actor role not allowed for this transition")
	ErrActorRequired    = errors.New("transition requires a valid actor")
	ErrAlreadyTerminal  = errors.New("deal is in a terminal status")
)

type dealTransitionKey struct {
	Action DealAction
	From   string
}

type dealTransition struct {
	To    string
	Roles []Role
}

var (
	counterparties = []Role{RoleAdvertiser, RoleChannelOwner}
	systemOnly     = []Role{RoleSystem}
)

// Transition table: (action, current status) -> (next status, allowed roles).
// Accept short-circuits the creative review cycle: the accepting action
// carries the final creative, so the deal lands in creative_approved.
// Campaign-accepted deals are created directly in `accepted`, which is why
// no edge leads into it.
var dealTransitions = map[dealTransitionKey]dealTransition{
	{DealActionPropose, DealStatusDraft}:       {DealStatusNegotiation, counterparties},
	{DealActionPropose, DealStatusNegotiation}: {DealStatusNegotiation, counterparties},
	{DealActionAdvance, DealStatusDraft}:       {DealStatusNegotiation, systemOnly},

	{DealActionAccept, DealStatusDraft}:       {DealStatusCreativeApproved, counterparties},
	{DealActionAccept, DealStatusNegotiation}: {DealStatusCreativeApproved, counterparties},
	{DealActionReject, DealStatusDraft}:       {DealStatusRejected, counterparties},
	{DealActionReject, DealStatusNegotiation}: {DealStatusRejected, counterparties},

	{DealActionSubmitCreative, DealStatusAccepted}:                 {DealStatusCreativeSubmitted, []Role{RoleChannelOwner}},
	{DealActionSubmitCreative, DealStatusCreativeChangesRequested}: {DealStatusCreativeSubmitted, []Role{RoleChannelOwner}},
	{DealActionRequestChanges, DealStatusCreativeSubmitted}:        {DealStatusCreativeChangesRequested, []Role{RoleAdvertiser}},
	{DealActionApproveCreative, DealStatusCreativeSubmitted}:       {DealStatusCreativeApproved, []Role{RoleAdvertiser}},

	{DealActionFund, DealStatusCreativeApproved}: {DealStatusFunded, systemOnly},
	{DealActionSchedule, DealStatusFunded}:       {DealStatusScheduled, systemOnly},
	{DealActionPost, DealStatusScheduled}:        {DealStatusPosted, systemOnly},
	{DealActionVerify, DealStatusPosted}:         {DealStatusVerified, systemOnly},
	{DealActionRelease, DealStatusVerified}:      {DealStatusReleased, systemOnly},
	{DealActionRefund, DealStatusPosted}:         {DealStatusRefunded, systemOnly},
}

func IsTerminalDealStatus(status string) bool {
	switch status {
	case DealStatusRejected, DealStatusReleased, DealStatusRefunded:
		return true
	}
	return false
}

// ApplyDealAction validates the requested action against the transition
// table and the actor, mutates the deal status on success and returns the
// transition event to append. The deal is left untouched on any rejection.
func ApplyDealAction(d *Deal, action DealAction, actor Actor, payload map[string]any) (*DealEvent, error) {
	entry, ok := dealTransitions[dealTransitionKey{Action: action, From: d.Status}]
	if !ok {
		if IsTerminalDealStatus(d.Status) {
			return nil, ErrAlreadyTerminal
		}
		return nil, ErrNoSuchTransition
	}

	allowed := false
	for _, r := range entry.Roles {
		if r == actor.Role() {
			allowed = true
			break
		}
	}
	if !allowed {
		return nil, ErrRoleNotAllowed
	}

	// User roles must carry an id; SystemActor carries none by construction.
	if !actor.IsSystem() {
		if _, ok := actor.UserID(); !ok {
			return nil, ErrActorRequired
		}
	}

	from := d.Status
	d.Status = entry.To
	d.UpdatedAt = time.Now()

	if payload == nil {
		payload = map[string]any{}
	}
	payload["action"] = string(action)

	fromCopy, toCopy := from, entry.To
	return &DealEvent{
		DealID:      d.ID,
		ActorUserID: actor.UserIDPtr(),
		Kind:        DealEventKindTransition,
		FromStatus:  &fromCopy,
		ToStatus:    &toCopy,
		Payload:     payload,
	}, nil
}

type Deal struct {
	ID                 uuid.UUID  `json:"id"`
	Source             string     `json:"source"` // listing / campaign
	ListingID          *uuid.UUID `json:"listing_id,omitempty"`
	CampaignID         *uuid.UUID `json:"campaign_id,omitempty"`
	AdvertiserUserID   uuid.UUID  `json:"advertiser_user_id"`
	ChannelOwnerUserID uuid.UUID  `json:"channel_owner_user_id"`
	Status             string     `json:"status"`
	PriceTON           string     `json:"price_ton"` // numeric as string

	// Creative payload
	CreativeText      *string `json:"creative_text,omitempty"`
	CreativeMediaRef  *string `json:"creative_media_ref,omitempty"`
	CreativeMediaKind *string `json:"creative_media_kind,omitempty"`

	// Placement parameters (listing-sourced or campaign-accepted deals only)
	PlacementKind  *string `json:"placement_kind,omitempty"` // post / repost / story
	ExclusiveHours *int    `json:"exclusive_hours,omitempty"`
	RetentionHours *int    `json:"retention_hours,omitempty"`

	ScheduledAt        *time.Time `json:"scheduled_at,omitempty"`
	PostedMessageID    *int64     `json:"posted_message_id,omitempty"`
	PostedURL          *string    `json:"posted_url,omitempty"`
	ContentFingerprint *string    `json:"content_fingerprint,omitempty"`
	VerifyDeadline     *time.Time `json:"verify_deadline,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// RoleOf maps a user id onto its role in this deal.
func (d *Deal) RoleOf(userID uuid.UUID) (Role, bool) {
	switch userID {
	case d.AdvertiserUserID:
		return RoleAdvertiser, true
	case d.ChannelOwnerUserID:
		return RoleChannelOwner, true
	}
	return "", false
}

// Counterparty returns the opposite side's user id.
func (d *Deal) Counterparty(role Role) uuid.UUID {
	if role == RoleAdvertiser {
		return d.ChannelOwnerUserID
	}
	return d.AdvertiserUserID
}
