package models

import (
	"fmt"
	"sort"
	"time"
)

// Kind is the media kind of an asset
type Kind int

const (
	KindPhoto Kind = iota
	KindVideo
)

func (k Kind) String() string {
	if k == KindVideo {
		return "video"
	}
	return "photo"
}

// Subtype flags carried by the media store
type Subtype uint8

const (
	SubtypeScreenshot Subtype = 1 << iota
	SubtypeScreenRecording
)

// Has reports whether all bits of flag are set
func (s Subtype) Has(flag Subtype) bool {
	return s&flag == flag
}

// AssetClass selects one independent scan pipeline
type AssetClass string

const (
	ClassPhoto           AssetClass = "photo"
	ClassVideo           AssetClass = "video"
	ClassScreenshot      AssetClass = "screenshot"
	ClassScreenRecording AssetClass = "screen-recording"
)

// AllClasses lists every asset class in display order
var AllClasses = []AssetClass{ClassPhoto, ClassVideo, ClassScreenshot, ClassScreenRecording}

// ParseAssetClass converts a user supplied name to an AssetClass
func ParseAssetClass(s string) (AssetClass, error) {
	switch AssetClass(s) {
	case ClassPhoto, ClassVideo, ClassScreenshot, ClassScreenRecording:
		return AssetClass(s), nil
	case "photos":
		return ClassPhoto, nil
	case "videos":
		return ClassVideo, nil
	case "screenshots":
		return ClassScreenshot, nil
	case "screen-recordings", "recording", "recordings":
		return ClassScreenRecording, nil
	}
	return "", fmt.Errorf("unknown asset class %q", s)
}

// Kind returns the media kind the class is listed from
func (c AssetClass) Kind() Kind {
	if c == ClassVideo || c == ClassScreenRecording {
		return KindVideo
	}
	return KindPhoto
}

// UsesSimilarity reports whether the class runs the similarity pipeline
// rather than month-bucket grouping
func (c AssetClass) UsesSimilarity() bool {
	return c == ClassPhoto || c == ClassVideo
}

// Contains reports whether an asset belongs to the class
func (c AssetClass) Contains(a AssetRef) bool {
	switch c {
	case ClassPhoto:
		return a.Kind == KindPhoto && !a.Subtype.Has(SubtypeScreenshot)
	case ClassScreenshot:
		return a.Kind == KindPhoto && a.Subtype.Has(SubtypeScreenshot)
	case ClassVideo:
		return a.Kind == KindVideo && !a.Subtype.Has(SubtypeScreenRecording)
	case ClassScreenRecording:
		return a.Kind == KindVideo && a.Subtype.Has(SubtypeScreenRecording)
	}
	return false
}

// AssetRef is a read-only handle to an item owned by the media store
type AssetRef struct {
	ID              string    `json:"id"`
	Kind            Kind      `json:"kind"`
	Subtype         Subtype   `json:"subtype,omitempty"`
	CreationDate    time.Time `json:"creation_date"`
	DurationSeconds float64   `json:"duration_seconds,omitempty"` // video only
	Path            string    `json:"path,omitempty"`
	FileSize        int64     `json:"file_size,omitempty"`
}

// Older reports whether a sorts before b in keep order
// (earliest creation date first, ID as tiebreaker)
func Older(a, b AssetRef) bool {
	if !a.CreationDate.Equal(b.CreationDate) {
		return a.CreationDate.Before(b.CreationDate)
	}
	return a.ID < b.ID
}

// SortOldestFirst orders assets in keep order
func SortOldestFirst(assets []AssetRef) {
	sort.SliceStable(assets, func(i, j int) bool {
		return Older(assets[i], assets[j])
	})
}

// Signature holds the per-scan summaries of one asset
type Signature struct {
	CoarseHash  uint64    `json:"coarse_hash"`
	ContentHash string    `json:"content_hash,omitempty"` // SHA256 of the canonical re-encoding
	Embedding   []float32 `json:"embedding,omitempty"`
}

// Member is one asset of a duplicate group
type Member struct {
	Asset    AssetRef `json:"asset"`
	Selected bool     `json:"selected"` // selected for deletion
}

// DuplicateGroup represents a group of duplicate assets.
// Members[0] is the anchor that is kept by default.
type DuplicateGroup struct {
	ID      string   `json:"id"`
	Members []Member `json:"members"`
}

// NewDuplicateGroup builds a group with the default selection:
// anchor unselected, every other member selected
func NewDuplicateGroup(id string, anchor AssetRef, others []AssetRef) DuplicateGroup {
	g := DuplicateGroup{ID: id, Members: make([]Member, 0, len(others)+1)}
	g.Members = append(g.Members, Member{Asset: anchor})
	for _, o := range others {
		g.Members = append(g.Members, Member{Asset: o, Selected: true})
	}
	return g
}

// Anchor returns the retained member
func (g DuplicateGroup) Anchor() AssetRef {
	return g.Members[0].Asset
}

// Selected returns the members currently selected for deletion
func (g DuplicateGroup) Selected() []AssetRef {
	var out []AssetRef
	for _, m := range g.Members {
		if m.Selected {
			out = append(out, m.Asset)
		}
	}
	return out
}

// IDs returns the member IDs in member order
func (g DuplicateGroup) IDs() []string {
	ids := make([]string, len(g.Members))
	for i, m := range g.Members {
		ids[i] = m.Asset.ID
	}
	return ids
}

// Clone returns a deep copy
func (g DuplicateGroup) Clone() DuplicateGroup {
	c := DuplicateGroup{ID: g.ID, Members: make([]Member, len(g.Members))}
	copy(c.Members, g.Members)
	return c
}

// CloneGroups deep-copies a group list
func CloneGroups(groups []DuplicateGroup) []DuplicateGroup {
	out := make([]DuplicateGroup, len(groups))
	for i, g := range groups {
		out[i] = g.Clone()
	}
	return out
}

// ScanState is the lifecycle state of a scan session
type ScanState string

const (
	StateIdle      ScanState = "idle"
	StateScanning  ScanState = "scanning"
	StateComplete  ScanState = "complete"
	StateCancelled ScanState = "cancelled"
)

// Terminal reports whether consumers should treat the state as finished
func (s ScanState) Terminal() bool {
	return s == StateComplete || s == StateCancelled
}

// Status is an immutable snapshot of a scan session
type Status struct {
	Class      AssetClass       `json:"class"`
	State      ScanState        `json:"state"`
	IsScanning bool             `json:"is_scanning"`
	Processed  int              `json:"processed"`
	Total      int              `json:"total"`
	Progress   float64          `json:"progress"`
	Groups     []DuplicateGroup `json:"groups"`
}

// MonthBucket is a (month, year) partition of screenshots or screen recordings
type MonthBucket struct {
	Title   string     `json:"title"`
	Year    int        `json:"year"`
	Month   time.Month `json:"month"`
	Members []AssetRef `json:"members"`
}

// CloneBuckets deep-copies a bucket list
func CloneBuckets(buckets []MonthBucket) []MonthBucket {
	out := make([]MonthBucket, len(buckets))
	for i, b := range buckets {
		out[i] = b
		out[i].Members = append([]AssetRef(nil), b.Members...)
	}
	return out
}

// ReclaimableBytes sums the file sizes of the selected members
func ReclaimableBytes(groups []DuplicateGroup) int64 {
	var total int64
	for _, g := range groups {
		for _, a := range g.Selected() {
			total += a.FileSize
		}
	}
	return total
}
