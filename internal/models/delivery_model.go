package models

import "time"

const (
	DeliveryStatusPending         = "pending"
	DeliveryStatusInProgress      = "in_progress"
	DeliveryStatusSucceeded       = "succeeded"
	DeliveryStatusFailedPermanent = "failed_permanent"
)

// Delivery is the obligation to publish one ContentItem to one account.
// (source_key, account_label) is unique in the ledger, which is what makes
// re-planning the same item a no-op. Status moves monotonically:
// pending -> in_progress -> succeeded | failed_permanent.
type Delivery struct {
	ID             int64     `db:"id" json:"id"`
	ContentItemID  int64     `db:"content_item_id" json:"content_item_id"`
	SourceKey      string    `db:"source_key" json:"source_key"`
	AccountLabel   string    `db:"account_label" json:"account_label"`
	Status         string    `db:"status" json:"status"`
	AttemptedModes []string  `db:"attempted_modes" json:"attempted_modes"`
	LastError      string    `db:"last_error" json:"last_error"`
	TiktokPostID   string    `db:"tiktok_post_id" json:"tiktok_post_id"`
	AttemptCount   int       `db:"attempt_count" json:"attempt_count"`
	CreatedAt      time.Time `db:"created_at" json:"created_at"`
	UpdatedAt      time.Time `db:"updated_at" json:"updated_at"`
}

// Terminal reports whether the delivery already reached a final state.
func (d *Delivery) Terminal() bool {
	return d.Status == DeliveryStatusSucceeded || d.Status == DeliveryStatusFailedPermanent
}
