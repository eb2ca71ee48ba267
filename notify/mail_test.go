package notify

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/pawsaarthi/rescue-api/models"
	templates "github.com/pawsaarthi/rescue-api/templates/html"
)

func TestSendGridRescueEmail(t *testing.T) {
	c := &models.RescueCase{ID: "case-1", Status: models.StatusCarrierAssigned}

	tests := []struct {
		name   string
		appURL string
		msg    Message
		want   templates.RescueEmail
	}{
		{
			name: "account email",
			msg:  Message{Subject: "Account approved", Body: "welcome"},
			want: templates.RescueEmail{Subject: "Account approved", Body: "welcome"},
		},
		{
			name: "case email without app url",
			msg:  Message{Subject: "Ambulance assigned", Body: "on the way", Case: c},
			want: templates.RescueEmail{Subject: "Ambulance assigned", Body: "on the way", CaseID: "case-1", Status: "ambulance assigned"},
		},
		{
			name:   "case email links to the case",
			appURL: "https://app.pawsaarthi.org/",
			msg:    Message{Subject: "Ambulance assigned", Body: "on the way", Case: c},
			want: templates.RescueEmail{
				Subject: "Ambulance assigned",
				Body:    "on the way",
				CaseID:  "case-1",
				Status:  "ambulance assigned",
				Link:    "https://app.pawsaarthi.org/rescue/case-1",
			},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := NewSendGrid("SG.test", "no-reply@pawsaarthi.org", tt.appURL)
			assert.Equal(t, tt.want, s.rescueEmail(tt.msg))
		})
	}
}
