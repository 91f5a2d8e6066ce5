package alert

import (
	"fmt"

	"shopwatch/internal/ledger"
	"shopwatch/internal/notify"
)

const (
	timestampLayout = "2006-01-02 15:04:05"
	emailSubject    = "🚨 SHOP SECURITY ALERT: Person Detected!"
)

// ShortText is the one-line alert sent to chat channels
func ShortText(e ledger.Entry) string {
	headline := "🚨 INTRUDER ALERT!"
	if e.Origin == ledger.OriginUpload {
		headline = "🚨 SECURITY ALERT!"
	}
	return fmt.Sprintf("%s Person detected at %s. Confidence: %.1f%%",
		headline, e.Timestamp.Format(timestampLayout), e.Confidence*100)
}

func emailBody(e ledger.Entry, hasImage bool) string {
	attachment := "A snapshot has been attached for your review."
	if !hasImage {
		attachment = "No snapshot could be saved for this alert."
	}
	return fmt.Sprintf(`🚨 SHOP SECURITY ALERT 🚨
================================

⚠️ Someone detected in your shop!

⏰ Time: %s
📍 Location: Shop Camera

%s

Detection Confidence: %.0f%%

⚡ Actions:
1. Review the attached image
2. Check your shop immediately
3. Contact authorities if needed

Stay Safe!
`, e.Timestamp.Format(timestampLayout), attachment, e.Confidence*100)
}

// BuildNotification renders an entry for every channel
func BuildNotification(e ledger.Entry, image []byte, imageName string) notify.Notification {
	return notify.Notification{
		Subject:   emailSubject,
		Text:      ShortText(e),
		Body:      emailBody(e, len(image) > 0),
		Image:     image,
		ImageName: imageName,
	}
}
