package services

import (
	"fmt"
	"html"
	"strconv"
)

type AlertLevel string

const (
	AlertLevelEvacuate  AlertLevel = "evacuate"
	AlertLevelVentilate AlertLevel = "ventilate"
	AlertLevelNormal    AlertLevel = "normal"
)

// CO2 tiers in ppm.
const (
	EvacuateThreshold  = 1200.0
	VentilateThreshold = 800.0
)

type AlertMessage struct {
	Level   AlertLevel
	Subject string
	Text    string
	HTML    string
}

func AlertLevelFor(state float64) AlertLevel {
	switch {
	case state >= EvacuateThreshold:
		return AlertLevelEvacuate
	case state >= VentilateThreshold:
		return AlertLevelVentilate
	default:
		return AlertLevelNormal
	}
}

// BuildAlertMessage renders the air-quality email for a reading in roomName.
func BuildAlertMessage(state float64, roomName string) AlertMessage {
	ppm := strconv.FormatFloat(state, 'f', -1, 64)
	room := html.EscapeString(roomName)
	level := AlertLevelFor(state)

	body := fmt.Sprintf(`<div style="font-family: Arial, sans-serif; text-align: center; font-size: 18px; padding: 20px;">`+
		`<p><strong>Air quality alert for room %s</strong></p>`+
		`<p>The CO2 level in room %s is <strong>%s ppm</strong>.</p>`, room, room, ppm)

	msg := AlertMessage{Level: level}

	switch level {
	case AlertLevelEvacuate:
		msg.Subject = fmt.Sprintf("Urgent alert: evacuate room %s immediately", roomName)
		msg.Text = fmt.Sprintf("The CO2 level has reached %s ppm in room %s. Evacuate immediately for your safety.", ppm, roomName)
		body += fmt.Sprintf(`<p style="color: red;"><strong>CO2 has reached %s ppm in room %s. You must <u>evacuate immediately</u>.</strong></p>`, ppm, room)
	case AlertLevelVentilate:
		msg.Subject = fmt.Sprintf("Alert: open the windows in room %s", roomName)
		msg.Text = fmt.Sprintf("The CO2 level is %s ppm in room %s. Open the windows now to improve the air quality.", ppm, roomName)
		body += fmt.Sprintf(`<p style="color: orange;"><strong>CO2 is at %s ppm in room %s. <u>Open the windows</u> without delay.</strong></p>`, ppm, room)
	default:
		msg.Subject = fmt.Sprintf("Normal air quality in room %s", roomName)
		msg.Text = fmt.Sprintf("The CO2 level in room %s is within the normal range. No action is required.", roomName)
		body += fmt.Sprintf(`<p style="color: green;"><strong>CO2 is normal in room %s. No action is required.</strong></p>`, room)
	}

	msg.HTML = body + `<p style="margin-top: 30px;">Regards,<br />The air quality monitoring team</p></div>`

	return msg
}
