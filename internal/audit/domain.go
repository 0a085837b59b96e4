package audit

import (
	"time"

	"github.com/google/uuid"

	"github.com/shepherd-cms/shepherd/internal/rbac"
)

// TimelineFilters holds the query filters for the role change timeline.
type TimelineFilters struct {
	From     time.Time
	To       time.Time
	Target   string
	Actor    string
	Page     int
	PageSize int
}

// TimelineRow is one recorded role change, joined with the actor and
// target emails for display.
type TimelineRow struct {
	At          time.Time       `json:"at"`
	ActorID     uuid.UUID       `json:"actorId"`
	ActorEmail  string          `json:"actorEmail"`
	TargetID    uuid.UUID       `json:"targetId"`
	TargetEmail string          `json:"targetEmail"`
	OldLevel    rbac.RoleLevel  `json:"oldLevel"`
	NewLevel    rbac.RoleLevel  `json:"newLevel"`
	OldContext  rbac.ContextMap `json:"oldContext,omitempty"`
	NewContext  rbac.ContextMap `json:"newContext,omitempty"`
}

// PagingInfo carries pagination metadata for timeline responses.
type PagingInfo struct {
	Page     int  `json:"page"`
	PageSize int  `json:"pageSize"`
	HasNext  bool `json:"hasNext"`
	PrevPage int  `json:"prevPage,omitempty"`
	NextPage int  `json:"nextPage,omitempty"`
}

// Result bundles timeline rows with paging information.
type Result struct {
	Rows   []TimelineRow `json:"rows"`
	Paging PagingInfo    `json:"paging"`
}
