package ws

import "shopwatch/internal/ledger"

// AlertMessage is the JSON frame pushed for each new alert
type AlertMessage struct {
	Type  string       `json:"type"` // "alert"
	Alert ledger.Entry `json:"alert"`
}

func NewAlertMessage(entry ledger.Entry) *AlertMessage {
	return &AlertMessage{Type: "alert", Alert: entry}
}
