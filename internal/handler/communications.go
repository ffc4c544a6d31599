package handler

import (
	"net/http"

	"github.com/steeplehq/steeple/internal/notify"
	"github.com/steeplehq/steeple/internal/resource"
)

// CommunicationsHandler sends announcement broadcasts to the congregation
// through the notification channel.
type CommunicationsHandler struct {
	resSvc *resource.Service
	sender notify.Sender
}

// NewCommunicationsHandler creates a new CommunicationsHandler.
func NewCommunicationsHandler(resSvc *resource.Service, sender notify.Sender) *CommunicationsHandler {
	return &CommunicationsHandler{resSvc: resSvc, sender: sender}
}

// sendEmailRequest is the payload for SendEmail. When Recipients is empty the
// broadcast goes to every member with an email address on file.
type sendEmailRequest struct {
	Subject    string   `json:"subject"`
	Message    string   `json:"message"`
	Recipients []string `json:"recipients"`
}

// SendEmail delivers an announcement to the recipients.
// POST /api/v1/communications/send-email
func (h *CommunicationsHandler) SendEmail(w http.ResponseWriter, r *http.Request) {
	var req sendEmailRequest
	if err := readJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body: "+err.Error())
		return
	}
	if req.Subject == "" || req.Message == "" {
		writeError(w, http.StatusBadRequest, "Subject and message are required")
		return
	}

	recipients := req.Recipients
	if len(recipients) == 0 {
		var err error
		recipients, err = h.memberEmails(r)
		if err != nil {
			writeServiceError(w, err)
			return
		}
	}
	if len(recipients) == 0 {
		writeError(w, http.StatusBadRequest, "No recipients with an email address")
		return
	}

	if err := h.sender.SendAnnouncement(r.Context(), recipients, req.Subject, req.Message); err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to send announcement")
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"success":    true,
		"recipients": len(recipients),
	})
}

func (h *CommunicationsHandler) memberEmails(r *http.Request) ([]string, error) {
	members, err := resource.Lookup("member")
	if err != nil {
		return nil, err
	}
	docs, err := h.resSvc.List(r.Context(), members)
	if err != nil {
		return nil, err
	}

	var emails []string
	for _, doc := range docs {
		if email, ok := doc["email"].(string); ok && email != "" {
			emails = append(emails, email)
		}
	}
	return emails, nil
}
