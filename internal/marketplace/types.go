package marketplace

import (
	"math"
	"time"
)

// AgentType identifies the implementation behind a catalog entry. It is set
// once at catalog-entry creation and is the only key used to dispatch to an
// Invoker; display names are presentation data.
type AgentType string

const (
	AgentTypeResumeReviewer    AgentType = "resume_reviewer"
	AgentTypeCodeReviewer      AgentType = "code_reviewer"
	AgentTypeInterviewPrep     AgentType = "interview_prep"
	AgentTypeWritingAssistant  AgentType = "writing_assistant"
	AgentTypeTroubleshooter    AgentType = "technical_troubleshooter"
)

// InvocationStatus tracks the lifecycle of a single invocation attempt.
// An invocation is created as processing and transitions exactly once to a
// terminal status.
type InvocationStatus string

const (
	StatusProcessing InvocationStatus = "processing"
	StatusCompleted  InvocationStatus = "completed"
	StatusFailed     InvocationStatus = "failed"
)

// User is a marketplace account. TokenBalance is the general-purpose
// pre-funded balance; it is credited by top-ups and debited by entitlement
// purchases, never by invocations.
type User struct {
	ID           int64     `json:"id"`
	Username     string    `json:"username"`
	Email        string    `json:"email"`
	PasswordHash string    `json:"-"`
	Developer    bool      `json:"developer"`
	TokenBalance int64     `json:"token_balance"`
	Active       bool      `json:"active"`
	CreatedAt    time.Time `json:"created_at"`
}

// Agent is a catalog entry. Immutable after creation except for deactivation.
type Agent struct {
	ID            int64     `json:"id"`
	Name          string    `json:"name"`
	Description   string    `json:"description"`
	Type          AgentType `json:"type"`
	DeveloperID   int64     `json:"developer_id"`
	PricePerToken float64   `json:"price_per_token"`
	Active        bool      `json:"active"`
	CreatedAt     time.Time `json:"created_at"`
}

// Cost converts a raw token count into the amount debited from a purchase.
// Rounded up so fractional per-token prices never yield free usage.
func (a Agent) Cost(tokensUsed int64) int64 {
	if tokensUsed <= 0 {
		return 0
	}
	return int64(math.Ceil(float64(tokensUsed) * a.PricePerToken))
}

// Purchase grants a user the right to consume an agent, tracked as a token
// quantity. TokensPurchased is fixed at creation; TokensRemaining only ever
// decreases, and the store guarantees 0 <= TokensRemaining <= TokensPurchased.
type Purchase struct {
	ID              int64     `json:"id"`
	UserID          int64     `json:"user_id"`
	AgentID         int64     `json:"agent_id"`
	TokensPurchased int64     `json:"tokens_purchased"`
	TokensRemaining int64     `json:"tokens_remaining"`
	CreatedAt       time.Time `json:"created_at"`
}

// Payload is the structured input handed to an agent. Field shapes are
// agent-specific (code, resume text, topic, issue, optional context) and are
// validated by the request layer, not the billing core.
type Payload map[string]string

// Invocation is the audit record for one attempted agent call. Output, token
// usage and cost stay zero until settlement; failed attempts keep the record
// with TokensUsed == 0 and no ledger effect.
type Invocation struct {
	ID          int64            `json:"id"`
	UUID        string           `json:"uuid"`
	UserID      int64            `json:"user_id"`
	AgentID     int64            `json:"agent_id"`
	PurchaseID  int64            `json:"purchase_id"`
	Input       string           `json:"input"`
	Output      string           `json:"output,omitempty"`
	TokensUsed  int64            `json:"tokens_used"`
	Cost        int64            `json:"cost"`
	Status      InvocationStatus `json:"status"`
	Error       string           `json:"error,omitempty"`
	CreatedAt   time.Time        `json:"created_at"`
	CompletedAt *time.Time       `json:"completed_at,omitempty"`
}

// Terminal reports whether the invocation has reached a final status.
func (i Invocation) Terminal() bool {
	return i.Status == StatusCompleted || i.Status == StatusFailed
}

// AgentEarnings aggregates settled usage for a single agent.
type AgentEarnings struct {
	AgentID     int64  `json:"agent_id"`
	AgentName   string `json:"agent_name"`
	Invocations int64  `json:"invocations"`
	TokensUsed  int64  `json:"tokens_used"`
	Earned      int64  `json:"earned"`
}

// Earnings aggregates settled usage across all of a developer's agents.
type Earnings struct {
	DeveloperID int64           `json:"developer_id"`
	TotalEarned int64           `json:"total_earned"`
	Agents      []AgentEarnings `json:"agents"`
}
