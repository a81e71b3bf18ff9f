package domain

import "time"

// Visit is the durable per-IP record. A visitor keeps the same row across
// reconnects; only SocketID and the descriptive fields move with the session.
type Visit struct {
	ID uint64 `gorm:"primaryKey;autoIncrement" json:"-"`
	IP string `gorm:"uniqueIndex;not null;size:45" json:"ip"`

	SocketID string `gorm:"index;size:64" json:"socketId"`
	SiteID   string `gorm:"index;size:255" json:"siteId"`
	PageID   string `gorm:"index;size:255" json:"pageId,omitempty"`

	UserAgent      string `gorm:"size:512" json:"userAgent,omitempty"`
	Lang           string `gorm:"size:64" json:"lang,omitempty"`
	Timezone       string `gorm:"size:64" json:"timezone,omitempty"`
	Screen         string `gorm:"size:64" json:"screen,omitempty"`
	Platform       string `gorm:"size:128" json:"platform,omitempty"`
	Referrer       string `gorm:"size:1024" json:"referrer,omitempty"`
	ConnectionType string `gorm:"size:32" json:"connectionType,omitempty"`

	Memory         float64 `json:"memory,omitempty"`
	Cores          uint16  `json:"cores,omitempty"`
	MaxTouchPoints uint16  `json:"maxTouchPoints,omitempty"`
	Online         *bool   `json:"online,omitempty"`
	Secure         *bool   `json:"secure,omitempty"`
	CookieEnabled  *bool   `json:"cookieEnabled,omitempty"`

	Cookies string `gorm:"type:text" json:"-"`

	Country string `gorm:"size:64" json:"country,omitempty"`
	City    string `gorm:"size:128" json:"city,omitempty"`

	VisitsCount uint32 `gorm:"not null;default:1" json:"visitsCount"`
	IsBlocked   bool   `gorm:"not null;default:false;index" json:"isBlocked"`

	LastVisit time.Time `gorm:"index;autoCreateTime" json:"lastVisit"`
	CreatedAt time.Time `gorm:"autoCreateTime" json:"createdAt"`
	UpdatedAt time.Time `gorm:"autoUpdateTime" json:"updatedAt"`
}
