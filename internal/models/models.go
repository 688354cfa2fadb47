package models

import "time"

// User represents an account in the system
type User struct {
	ID                 string     `json:"id"`
	Email              string     `json:"email"`
	ExternalID         string     `json:"-"`
	Name               string     `json:"name"`
	PhotoURL           *string    `json:"photo_url,omitempty"`
	Gender             *string    `json:"gender,omitempty"`
	DateOfBirth        *time.Time `json:"date_of_birth,omitempty"`
	RelationshipStatus *string    `json:"relationship_status,omitempty"`
	LivingStyle        *string    `json:"living_style,omitempty"`
	AnniversaryDate    *time.Time `json:"anniversary_date,omitempty"`
	PartnerName        *string    `json:"partner_name,omitempty"`
	OnboardingComplete bool       `json:"onboarding_complete"`
	CoupleID           *string    `json:"couple_id,omitempty"`
	PushToken          *string    `json:"-"`
	LastActive         *time.Time `json:"last_active,omitempty"`
	CreatedAt          time.Time  `json:"created_at"`
	UpdatedAt          time.Time  `json:"updated_at"`
}

// IsOnline reports whether the last heartbeat falls inside window
func (u *User) IsOnline(now time.Time, window time.Duration) bool {
	if u.LastActive == nil {
		return false
	}
	return now.Sub(*u.LastActive) <= window
}

// Couple represents two paired users. Partner2ID stays empty until the
// pairing key is redeemed.
type Couple struct {
	ID                string     `json:"id"`
	Partner1ID        string     `json:"partner1_id"`
	Partner2ID        *string    `json:"partner2_id,omitempty"`
	PairingKey        *string    `json:"pairing_key,omitempty"`
	PairingKeyExpires *time.Time `json:"pairing_key_expires,omitempty"`
	PairingAttempts   int        `json:"-"`
	IsPaired          bool       `json:"is_paired"`
	PairedAt          *time.Time `json:"paired_at,omitempty"`
	CoupleTag         *string    `json:"couple_tag,omitempty"`
	AnniversaryDate   *time.Time `json:"anniversary_date,omitempty"`
	LivingStyle       *string    `json:"living_style,omitempty"`
	IsActive          bool       `json:"is_active"`
	CreatedAt         time.Time  `json:"created_at"`
	UpdatedAt         time.Time  `json:"updated_at"`
}

// HasMember reports whether userID occupies either partner slot
func (c *Couple) HasMember(userID string) bool {
	return c.Partner1ID == userID || (c.Partner2ID != nil && *c.Partner2ID == userID)
}

// PartnerOf returns the other member's ID, or "" when unpaired
func (c *Couple) PartnerOf(userID string) string {
	if c.Partner1ID == userID {
		if c.Partner2ID == nil {
			return ""
		}
		return *c.Partner2ID
	}
	return c.Partner1ID
}

// QuestionCategory groups questions
type QuestionCategory struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	Description string    `json:"description,omitempty"`
	IsActive    bool      `json:"is_active"`
	CreatedAt   time.Time `json:"created_at"`
}

// Question is a prompt couples answer
type Question struct {
	ID            string    `json:"id"`
	CategoryID    string    `json:"category_id"`
	Text          string    `json:"text"`
	IsDaily       bool      `json:"is_daily"`
	IsActive      bool      `json:"is_active"`
	IsAIGenerated bool      `json:"is_ai_generated"`
	CreatedAt     time.Time `json:"created_at"`
}

// DailyCoupleQuestion assigns one question to a couple for one calendar day
type DailyCoupleQuestion struct {
	ID         string    `json:"id"`
	CoupleID   string    `json:"couple_id"`
	QuestionID string    `json:"question_id"`
	Date       time.Time `json:"date"`
	CreatedAt  time.Time `json:"created_at"`
}

// Answer is one user's response to one question
type Answer struct {
	ID         string    `json:"id"`
	UserID     string    `json:"user_id"`
	CoupleID   string    `json:"couple_id"`
	QuestionID string    `json:"question_id"`
	Text       string    `json:"text"`
	Date       time.Time `json:"date"`
	CreatedAt  time.Time `json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"`
}

// Message types
const (
	MessageTypeText  = "text"
	MessageTypeImage = "image"
	MessageTypeVoice = "voice"
	MessageTypeGIF   = "gif"
)

// MessageMetadata carries optional media details
type MessageMetadata struct {
	Duration *float64 `json:"duration,omitempty" validate:"omitempty,gte=0"`
	MimeType *string  `json:"mime_type,omitempty" validate:"omitempty,max=100"`
}

// Message is a chat message inside a couple's room
type Message struct {
	ID        string           `json:"id"`
	CoupleID  string           `json:"couple_id"`
	SenderID  string           `json:"sender_id"`
	Type      string           `json:"type"`
	Content   string           `json:"content"`
	Metadata  *MessageMetadata `json:"metadata,omitempty"`
	IsRead    bool             `json:"is_read"`
	CreatedAt time.Time        `json:"created_at"`
}

// FeatureFlag is a percentage rollout switch
type FeatureFlag struct {
	Key               string    `json:"key"`
	Enabled           bool      `json:"enabled"`
	RolloutPercentage int       `json:"rollout_percentage"`
	Description       string    `json:"description,omitempty"`
	UpdatedAt         time.Time `json:"updated_at"`
}
