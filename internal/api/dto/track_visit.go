package dto

// TrackVisitRequest carries the fingerprint a visitor self-reports when a
// page loads. Everything is optional; the server derives the IP itself.
type TrackVisitRequest struct {
	SiteID string `json:"siteId"`
	PageID string `json:"pageId"`

	UserAgent      string `json:"userAgent"`
	Lang           string `json:"lang"`
	Timezone       string `json:"timezone"`
	Screen         string `json:"screen"`
	Platform       string `json:"platform"`
	Referrer       string `json:"referrer"`
	ConnectionType string `json:"connectionType"`
	SocketID       string `json:"socketId"`

	Memory         float64 `json:"memory"`
	Cores          uint16  `json:"cores"`
	MaxTouchPoints uint16  `json:"maxTouchPoints"`

	Online        *bool `json:"online"`
	Secure        *bool `json:"secure"`
	CookieEnabled *bool `json:"cookieEnabled"`
}
