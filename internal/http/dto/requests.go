package dto

import "github.com/Cuttlas90/ads-project-sub000/internal/ton"

type AuthTelegramRequest struct {
	InitData string `json:"init_data"`
}

type CreateDealRequest struct {
	Source             string  `json:"source"` // listing / campaign
	ListingID          *string `json:"listing_id,omitempty"`
	CampaignID         *string `json:"campaign_id,omitempty"`
	CounterpartyUserID string  `json:"counterparty_user_id"`
	PriceTON           string  `json:"price_ton"`
	PlacementKind      *string `json:"placement_kind,omitempty"` // post / repost / story
	ExclusiveHours     *int    `json:"exclusive_hours,omitempty"`
	RetentionHours     *int    `json:"retention_hours,omitempty"`
}

type ProposeRequest struct {
	PriceTON *string `json:"price_ton,omitempty"` // контроффер по цене
	Note     *string `json:"note,omitempty"`
}

type SubmitCreativeRequest struct {
	Text      *string `json:"text,omitempty"`
	MediaRef  *string `json:"media_ref,omitempty"`
	MediaKind *string `json:"media_kind,omitempty"` // photo / video / document
}

type RequestChangesRequest struct {
	Feedback *string `json:"feedback,omitempty"`
}

type ConnectWalletRequest struct {
	Address   string    `json:"address"` // raw или friendly
	Network   string    `json:"network"`
	PublicKey string    `json:"public_key"` // hex
	Proof     ton.Proof `json:"proof"`
}
