package attendance

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
	"time"

	"github.com/skip2/go-qrcode"
)

const qrSize = 256

// QRPayload is the JSON encoded into a check-in QR code.
type QRPayload struct {
	Type          string `json:"type"`
	TrainingID    string `json:"training_id"`
	TrainingTitle string `json:"training_title"`
	AttendanceID  string `json:"attendance_id"`
	Timestamp     int64  `json:"timestamp"`
	Expires       int64  `json:"expires"`
	Message       string `json:"message"`
}

func newPayload(trainingID, title, attendanceID string, issued, expires time.Time) QRPayload {
	return QRPayload{
		Type:          "attendance_checkin",
		TrainingID:    trainingID,
		TrainingTitle: title,
		AttendanceID:  attendanceID,
		Timestamp:     issued.Unix(),
		Expires:       expires.Unix(),
		Message:       "Scan to check in for: " + title,
	}
}

// renderQR encodes the payload and returns it with a PNG data URL.
func renderQR(p QRPayload) (string, string, error) {
	raw, err := json.Marshal(p)
	if err != nil {
		return "", "", fmt.Errorf("encode qr payload: %w", err)
	}
	png, err := qrcode.Encode(string(raw), qrcode.Low, qrSize)
	if err != nil {
		return "", "", fmt.Errorf("render qr: %w", err)
	}
	return string(raw), "data:image/png;base64," + base64.StdEncoding.EncodeToString(png), nil
}
