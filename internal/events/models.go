package events

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

const pageViewEventsTable = "page_view_events"

// Status codes recorded with a page view.
const (
	StatusOK       = 200
	StatusNotFound = 404
)

// PageViewEvent is one observed page view. Rows are append-only; the only
// deletion path is bulk retention pruning.
type PageViewEvent struct {
	ID             string    `gorm:"primaryKey;size:36" json:"id"`
	SessionID      string    `gorm:"index;size:64;not null" json:"sessionId"`
	PagePath       string    `gorm:"index;size:500;not null" json:"pagePath"`
	PageTitle      *string   `gorm:"size:300" json:"pageTitle,omitempty"`
	ReferrerURL    *string   `gorm:"size:1000" json:"referrerUrl,omitempty"`
	ReferrerDomain *string   `gorm:"index;size:255" json:"referrerDomain,omitempty"`
	UTMSource      *string   `gorm:"size:100" json:"utmSource,omitempty"`
	UTMMedium      *string   `gorm:"size:100" json:"utmMedium,omitempty"`
	UTMCampaign    *string   `gorm:"size:100" json:"utmCampaign,omitempty"`
	UTMTerm        *string   `gorm:"size:100" json:"utmTerm,omitempty"`
	UTMContent     *string   `gorm:"size:100" json:"utmContent,omitempty"`
	DeviceType     *string   `gorm:"size:50" json:"deviceType,omitempty"`
	Browser        *string   `gorm:"size:50" json:"browser,omitempty"`
	OS             *string   `gorm:"column:os;size:50" json:"os,omitempty"`
	Country        *string   `gorm:"size:2" json:"country,omitempty"`
	IsBot          bool      `gorm:"index;not null" json:"isBot"`
	StatusCode     int       `gorm:"index;not null" json:"statusCode"`
	CreatedAt      time.Time `gorm:"index;not null" json:"createdAt"`
}

func (PageViewEvent) TableName() string {
	return pageViewEventsTable
}

// BeforeCreate assigns a random id when the caller did not provide one.
func (e *PageViewEvent) BeforeCreate(tx *gorm.DB) error {
	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	return nil
}
