package cache

import (
	"time"

	"riskai/internal/artifact"
)

// Record is one memoized analysis artifact plus its usage metadata.
type Record struct {
	ItemID      string           `json:"item_id"`
	ContentHash string           `json:"content_hash"`
	CreatedAt   time.Time        `json:"created_at"`
	LastUsed    time.Time        `json:"last_used"`
	UseCount    int              `json:"use_count"`
	Tags        []string         `json:"tags,omitempty"`
	Payload     artifact.Payload `json:"payload"`
}

// Kind returns the artifact kind of the record's payload.
func (r *Record) Kind() artifact.Kind {
	return r.Payload.Kind
}

// HasTag reports whether the record carries the given tag.
func (r *Record) HasTag(tag string) bool {
	for _, t := range r.Tags {
		if t == tag {
			return true
		}
	}
	return false
}

// Clone returns a copy the caller may mutate freely. The store only ever
// hands out clones; records inside the store are owned by it.
func (r *Record) Clone() *Record {
	if r == nil {
		return nil
	}
	c := *r
	c.Tags = append([]string(nil), r.Tags...)
	c.Payload = clonePayload(r.Payload)
	return &c
}

func clonePayload(p artifact.Payload) artifact.Payload {
	out := artifact.Payload{Kind: p.Kind}
	switch {
	case p.Bug != nil:
		b := *p.Bug
		out.Bug = &b
	case p.Vulnerability != nil:
		v := *p.Vulnerability
		v.AttackVectors = append([]string(nil), p.Vulnerability.AttackVectors...)
		out.Vulnerability = &v
	case p.Recommendation != nil:
		rec := *p.Recommendation
		out.Recommendation = &rec
	case p.Requirement != nil:
		req := *p.Requirement
		out.Requirement = &req
	case p.Document != nil:
		d := *p.Document
		d.MissingInformation = append([]string(nil), p.Document.MissingInformation...)
		out.Document = &d
	}
	return out
}
