package policy

import (
	"encoding/json"
	"fmt"
	"io"
	"time"

	"github.com/clearpolicy/clearpolicy/backend/go-services/internal/isotime"
)

// Status is the indexing state of an uploaded policy.
type Status string

const (
	StatusProcessing Status = "Processing"
	StatusIndexed    Status = "Indexed"
)

// Policy is the metadata of one uploaded policy document version.
// Versions are scoped per filename and start at 1.
type Policy struct {
	ID         string    `json:"id"`
	Filename   string    `json:"filename"`
	Version    int       `json:"version"`
	Status     Status    `json:"status"`
	UploadedAt time.Time `json:"uploadedAt"`
}

// UnmarshalJSON accepts any ISO-8601 uploadedAt, including zone-less values.
func (p *Policy) UnmarshalJSON(b []byte) error {
	type plain Policy
	aux := struct {
		*plain
		UploadedAt string `json:"uploadedAt"`
	}{plain: (*plain)(p)}
	if err := json.Unmarshal(b, &aux); err != nil {
		return err
	}
	t, err := isotime.Parse(aux.UploadedAt)
	if err != nil {
		return fmt.Errorf("uploadedAt: %w", err)
	}
	p.UploadedAt = t
	return nil
}

// File is an uploaded document as received from the client.
type File struct {
	Name        string
	ContentType string
	Size        int64
	Content     io.Reader
}
