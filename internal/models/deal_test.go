package models

import (
	"errors"
	"testing"

	"github.com/google/uuid"
)

func newTestDeal(status string) *Deal {
	return &Deal{
		ID:                 uuid.New(),
		Source:             DealSourceListing,
		AdvertiserUserID:   uuid.New(),
		ChannelOwnerUserID: uuid.New(),
		Status:             status,
		PriceTON:           "10",
	}
}

func TestApplyDealAction_Table(t *testing.T) {
	tests := []struct {
		name    string
		from    string
		action  DealAction
		role    Role
		system  bool
		wantTo  string
		wantErr error
	}{
		// Happy path
		{"propose from draft", DealStatusDraft, DealActionPropose, RoleAdvertiser, false, DealStatusNegotiation, nil},
		{"counter-propose", DealStatusNegotiation, DealActionPropose, RoleChannelOwner, false, DealStatusNegotiation, nil},
		{"advance by system", DealStatusDraft, DealActionAdvance, "", true, DealStatusNegotiation, nil},
		{"accept from draft", DealStatusDraft, DealActionAccept, RoleChannelOwner, false, DealStatusCreativeApproved, nil},
		{"accept from negotiation", DealStatusNegotiation, DealActionAccept, RoleAdvertiser, false, DealStatusCreativeApproved, nil},
		{"reject from negotiation", DealStatusNegotiation, DealActionReject, RoleAdvertiser, false, DealStatusRejected, nil},
		{"submit creative", DealStatusAccepted, DealActionSubmitCreative, RoleChannelOwner, false, DealStatusCreativeSubmitted, nil},
		{"resubmit creative", DealStatusCreativeChangesRequested, DealActionSubmitCreative, RoleChannelOwner, false, DealStatusCreativeSubmitted, nil},
		{"request changes", DealStatusCreativeSubmitted, DealActionRequestChanges, RoleAdvertiser, false, DealStatusCreativeChangesRequested, nil},
		{"approve creative", DealStatusCreativeSubmitted, DealActionApproveCreative, RoleAdvertiser, false, DealStatusCreativeApproved, nil},
		{"fund", DealStatusCreativeApproved, DealActionFund, "", true, DealStatusFunded, nil},
		{"schedule", DealStatusFunded, DealActionSchedule, "", true, DealStatusScheduled, nil},
		{"post", DealStatusScheduled, DealActionPost, "", true, DealStatusPosted, nil},
		{"verify", DealStatusPosted, DealActionVerify, "", true, DealStatusVerified, nil},
		{"release", DealStatusVerified, DealActionRelease, "", true, DealStatusReleased, nil},
		{"refund", DealStatusPosted, DealActionRefund, "", true, DealStatusRefunded, nil},

		// No entry for the pair
		{"fund from draft", DealStatusDraft, DealActionFund, "", true, "", ErrNoSuchTransition},
		{"release from posted", DealStatusPosted, DealActionRelease, "", true, "", ErrNoSuchTransition},
		{"refund from verified", DealStatusVerified, DealActionRefund, "", true, "", ErrNoSuchTransition},
		{"accept from accepted", DealStatusAccepted, DealActionAccept, RoleAdvertiser, false, "", ErrNoSuchTransition},

		// Role checks
		{"fund by user", DealStatusCreativeApproved, DealActionFund, RoleAdvertiser, false, "", ErrRoleNotAllowed},
		{"advance by user", DealStatusDraft, DealActionAdvance, RoleChannelOwner, false, "", ErrRoleNotAllowed},
		{"propose by system", DealStatusDraft, DealActionPropose, "", true, "", ErrRoleNotAllowed},
		{"submit creative by advertiser", DealStatusAccepted, DealActionSubmitCreative, RoleAdvertiser, false, "", ErrRoleNotAllowed},
		{"approve creative by owner", DealStatusCreativeSubmitted, DealActionApproveCreative, RoleChannelOwner, false, "", ErrRoleNotAllowed},

		// Terminal
		{"accept rejected", DealStatusRejected, DealActionAccept, RoleAdvertiser, false, "", ErrAlreadyTerminal},
		{"release released", DealStatusReleased, DealActionRelease, "", true, "", ErrAlreadyTerminal},
		{"refund refunded", DealStatusRefunded, DealActionRefund, "", true, "", ErrAlreadyTerminal},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := newTestDeal(tt.from)
			var actor Actor
			if tt.system {
				actor = SystemActor()
			} else {
				actor = UserActor(uuid.New(), tt.role)
			}

			ev, err := ApplyDealAction(d, tt.action, actor, nil)

			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Fatalf("ApplyDealAction() err = %v, want %v", err, tt.wantErr)
				}
				if d.Status != tt.from {
					t.Errorf("deal mutated on rejection: %s -> %s", tt.from, d.Status)
				}
				return
			}

			if err != nil {
				t.Fatalf("ApplyDealAction() unexpected error: %v", err)
			}
			if d.Status != tt.wantTo {
				t.Errorf("status = %s, want %s", d.Status, tt.wantTo)
			}
			if ev.Kind != DealEventKindTransition {
				t.Errorf("event kind = %s, want transition", ev.Kind)
			}
			if *ev.FromStatus != tt.from || *ev.ToStatus != tt.wantTo {
				t.Errorf("event statuses = %s->%s, want %s->%s", *ev.FromStatus, *ev.ToStatus, tt.from, tt.wantTo)
			}
			if ev.Payload["action"] != string(tt.action) {
				t.Errorf("event payload action = %v, want %s", ev.Payload["action"], tt.action)
			}
		})
	}
}

func TestApplyDealAction_ActorIdentity(t *testing.T) {
	t.Run("user action carries actor id", func(t *testing.T) {
		d := newTestDeal(DealStatusDraft)
		userID := uuid.New()
		ev, err := ApplyDealAction(d, DealActionPropose, UserActor(userID, RoleAdvertiser), nil)
		if err != nil {
			t.Fatal(err)
		}
		if ev.ActorUserID == nil || *ev.ActorUserID != userID {
			t.Errorf("event actor = %v, want %s", ev.ActorUserID, userID)
		}
	})

	t.Run("system action carries no actor id", func(t *testing.T) {
		d := newTestDeal(DealStatusCreativeApproved)
		ev, err := ApplyDealAction(d, DealActionFund, SystemActor(), nil)
		if err != nil {
			t.Fatal(err)
		}
		if ev.ActorUserID != nil {
			t.Errorf("system event actor = %v, want nil", ev.ActorUserID)
		}
	})

	t.Run("user actor without id is rejected", func(t *testing.T) {
		d := newTestDeal(DealStatusDraft)
		_, err := ApplyDealAction(d, DealActionPropose, UserActor(uuid.Nil, RoleAdvertiser), nil)
		if !errors.Is(err, ErrActorRequired) {
			t.Fatalf("err = %v, want ErrActorRequired", err)
		}
		if d.Status != DealStatusDraft {
			t.Errorf("deal mutated on rejection")
		}
	})
}

func TestTerminalDealStatusesHaveNoOutgoingEdges(t *testing.T) {
	for key := range dealTransitions {
		if IsTerminalDealStatus(key.From) {
			t.Errorf("terminal status %q has outgoing transition %q", key.From, key.Action)
		}
	}
}

func TestRoleOf(t *testing.T) {
	d := newTestDeal(DealStatusDraft)

	if r, ok := d.RoleOf(d.AdvertiserUserID); !ok || r != RoleAdvertiser {
		t.Errorf("RoleOf(advertiser) = %v, %v", r, ok)
	}
	if r, ok := d.RoleOf(d.ChannelOwnerUserID); !ok || r != RoleChannelOwner {
		t.Errorf("RoleOf(owner) = %v, %v", r, ok)
	}
	if _, ok := d.RoleOf(uuid.New()); ok {
		t.Error("RoleOf(stranger) should not resolve")
	}

	if d.Counterparty(RoleAdvertiser) != d.ChannelOwnerUserID {
		t.Error("Counterparty(advertiser) should be channel owner")
	}
	if d.Counterparty(RoleChannelOwner) != d.AdvertiserUserID {
		t.Error("Counterparty(owner) should be advertiser")
	}
}
