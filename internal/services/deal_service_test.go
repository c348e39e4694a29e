package services

import (
	"context"
	"testing"

	"github.com/google/uuid"
)

// Input validation runs before any storage access, so a bare service is
// enough to exercise the rejections.
func TestCreateDeal_SourceReferenceValidation(t *testing.T) {
	s := &DealService{}
	listingID, campaignID := uuid.New(), uuid.New()
	adv, owner := uuid.New(), uuid.New()

	base := CreateDealInput{
		AdvertiserUserID:   adv,
		ChannelOwnerUserID: owner,
		PriceTON:           "10.00",
	}

	t.Run("listing deal without listing", func(t *testing.T) {
		in := base
		in.CampaignID = &campaignID
		if _, err := s.CreateListingDeal(context.Background(), in); err == nil {
			t.Fatal("listing deal accepted a campaign reference")
		}
	})

	t.Run("campaign deal without campaign", func(t *testing.T) {
		in := base
		in.ListingID = &listingID
		if _, err := s.CreateCampaignDeal(context.Background(), in); err == nil {
			t.Fatal("campaign deal accepted a listing reference")
		}
	})

	t.Run("both references", func(t *testing.T) {
		in := base
		in.ListingID = &listingID
		in.CampaignID = &campaignID
		if _, err := s.CreateListingDeal(context.Background(), in); err == nil {
			t.Fatal("deal accepted both a listing and a campaign")
		}
	})

	t.Run("same advertiser and owner", func(t *testing.T) {
		in := base
		in.ListingID = &listingID
		in.ChannelOwnerUserID = adv
		if _, err := s.CreateListingDeal(context.Background(), in); err == nil {
			t.Fatal("deal accepted identical counterparties")
		}
	})
}
