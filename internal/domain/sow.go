package domain

// ScopeItem is one deliverable in the SOW scope section.
type ScopeItem struct {
	Title       string `json:"title"`
	Description string `json:"description"`
}

// Milestone is one row of the SOW milestone obligations table.
type Milestone struct {
	Name        string `json:"name"`
	Description string `json:"description"`
	Date        string `json:"date"`
	Amount      string `json:"amount"`
}

// SOWDraft is the structured statement-of-work content produced by the
// drafting agent. It feeds the document renderer; free text never drives
// control flow.
type SOWDraft struct {
	ProjectName    string      `json:"project_name"`
	ClientName     string      `json:"client_name"`
	StartDate      string      `json:"start_date"`
	EndDate        string      `json:"end_date"`
	BackgroundText string      `json:"background_text"`
	ObjectivesText string      `json:"objectives_text"`
	ScopeItems     []ScopeItem `json:"scope_items"`
	Milestones     []Milestone `json:"milestones"`
}

// DecisionKind tags what the conversational front-end should do with a
// user message.
type DecisionKind string

const (
	DecisionFetch   DecisionKind = "fetch"
	DecisionExecute DecisionKind = "execute"
	DecisionChat    DecisionKind = "chat"
)

// Decision is the classified intent of one chat message. For
// DecisionExecute, DealIDs carries the opportunity ids to dispatch.
type Decision struct {
	Kind    DecisionKind `json:"kind"`
	DealIDs []string     `json:"deal_ids,omitempty"`
	Reply   string       `json:"reply,omitempty"`
}
