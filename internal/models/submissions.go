package models

import "time"

// -------------------- LEAD MODEL --------------------
// Row written to public.leads by the request-access form.
type Lead struct {
	FullName       string    `json:"full_name" db:"full_name"`
	Email          string    `json:"email" db:"email"`
	Company        string    `json:"company" db:"company"`
	Role           string    `json:"role" db:"role"`
	Message        string    `json:"message" db:"message"`
	AgreeToTerms   bool      `json:"agree_to_terms" db:"agree_to_terms"`
	MarketingOptIn bool      `json:"marketing_opt_in" db:"marketing_opt_in"`
	IP             string    `json:"ip" db:"ip"`
	UserAgent      string    `json:"user_agent" db:"user_agent"`
	Source         string    `json:"source" db:"source"`
	CreatedAt      time.Time `json:"created_at" db:"created_at"`
}

// -------------------- WAITLIST MODEL --------------------
// Row written to public.waitlist_requests on signup.
type WaitlistRequest struct {
	Email         string    `json:"email" db:"email"`
	FullName      string    `json:"full_name" db:"full_name"`
	Company       *string   `json:"company" db:"company"` // null when not provided
	Source        string    `json:"source" db:"source"`
	AcceptedTerms bool      `json:"accepted_terms" db:"accepted_terms"`
	CreatedAt     time.Time `json:"created_at" db:"created_at"`
}

// -------------------- RESEND ATTEMPT MODEL --------------------
// Row written to marketing.verification_email_resends.
type ResendAttempt struct {
	Email        string  `json:"email" db:"email"`
	IP           string  `json:"ip" db:"ip"`
	Success      bool    `json:"success" db:"success"`
	ErrorMessage *string `json:"error_message" db:"error_message"`
}

// -------------------- CONTACT MODELS --------------------
// ContactPayload is what the support endpoint receives.
type ContactPayload struct {
	Name                string `json:"name"`
	Email               string `json:"email"`
	Phone               string `json:"phone,omitempty"`
	Subject             string `json:"subject"`
	Message             string `json:"message"`
	Source              string `json:"source"`
	VerificationPending bool   `json:"verification_pending"`
}

// ContactNotification is the internal copy, with request metadata.
type ContactNotification struct {
	ContactPayload
	IP         string    `json:"ip,omitempty"`
	UserAgent  string    `json:"user_agent,omitempty"`
	ReceivedAt time.Time `json:"received_at"`
}

// -------------------- EMAIL MODEL --------------------
// Email is a rendered transactional message ready for the provider.
type Email struct {
	To      []string
	ReplyTo []string
	Subject string
	HTML    string
	Text    string
}
