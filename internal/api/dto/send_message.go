package dto

type SendMessageBySocketRequest struct {
	SocketID string `json:"socketId"`
	Message  string `json:"message"`
	Type     string `json:"type"`
}

type SendMessageByIPRequest struct {
	IP      string `json:"ip"`
	SiteID  string `json:"siteId"`
	Message string `json:"message"`
	Type    string `json:"type"`
}

type StopAutoBlockRequest struct {
	SocketID string `json:"socketId"`
	IP       string `json:"ip"`
}

type SaveCookiesRequest struct {
	SocketID string `json:"socketId"`
	Cookies  string `json:"cookies"`
}
