package models

import "time"

// DocumentMeta describes one Strata file in the workspace.
type DocumentMeta struct {
	Path      string    `json:"path"`
	Title     string    `json:"title"`
	Checksum  string    `json:"checksum"`
	UpdatedAt time.Time `json:"updatedAt"`
}
