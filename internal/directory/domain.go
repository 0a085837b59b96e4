package directory

import (
	"errors"
	"time"
)

// CellGroup is a small gathering led by a cell leader.
type CellGroup struct {
	ID         string    `json:"id"`
	Name       string    `json:"name"`
	DistrictID string    `json:"districtId,omitempty"`
	CreatedAt  time.Time `json:"createdAt"`
}

// Ministry is a serving department such as worship or ushering.
type Ministry struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	CreatedAt time.Time `json:"createdAt"`
}

// District groups cell groups under a geographic area.
type District struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	CreatedAt time.Time `json:"createdAt"`
}

// ErrNotFound indicates the requested directory resource does not exist.
var ErrNotFound = errors.New("directory: resource not found")
