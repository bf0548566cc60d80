package store

import "time"

type User struct {
	ID           string
	DisplayName  string
	Email        string
	PasswordHash string
	Role         string
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// StatusChange moves a workflow record from From to To. By is recorded as
// updated_by where the table has one.
type StatusChange struct {
	ID   string
	From string
	To   string
	Note string
	By   string
}

type Entity struct {
	ID          string
	Code        string
	Name        string
	Category    string
	Summary     string
	Description string
	Attributes  map[string]string
	Status      string
	StatusNote  string
	Tags        []string
	CreatedBy   string
	UpdatedBy   string
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// EntityFilter narrows ListEntities. Empty fields match everything.
type EntityFilter struct {
	Category string
	Status   string
	Tag      string
	Query    string
	Limit    int
	Offset   int
}

type EntityLink struct {
	ID         string
	SourceID   string
	SourceName string
	TargetID   string
	TargetName string
	Relation   string
	Note       string
	CreatedBy  string
	CreatedAt  time.Time
}

type ConceptArt struct {
	ID          string
	Title       string
	Description string
	EntityID    *string
	ImageKey    string
	ContentType string
	SizeBytes   int64
	Status      string
	StatusNote  string
	Tags        []string
	UploadedBy  string
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

type ArtFilter struct {
	EntityID string
	Status   string
	Tag      string
	Limit    int
	Offset   int
}

type LoreEntry struct {
	ID             string
	Title          string
	EntityID       *string
	Content        string
	Summary        string
	Status         string
	StatusNote     string
	CurrentVersion int
	Tags           []string
	CreatedBy      string
	UpdatedBy      string
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

type LoreFilter struct {
	EntityID string
	Status   string
	Tag      string
	Query    string
	Limit    int
	Offset   int
}

// LoreVersion is an immutable snapshot of a lore entry's title and content.
type LoreVersion struct {
	ID        string
	LoreID    string
	Version   int
	Title     string
	Content   string
	Author    string
	Note      string
	CreatedAt time.Time
}

type Thought struct {
	ID        string
	Title     string
	Body      string
	Status    string
	Priority  string
	EntityID  *string
	Assignee  string
	DueAt     *time.Time
	Tags      []string
	CreatedBy string
	CreatedAt time.Time
	UpdatedAt time.Time
}

type ThoughtFilter struct {
	Status   string
	Priority string
	Assignee string
	Tag      string
	EntityID string
	Limit    int
	Offset   int
}

type OnboardingCard struct {
	ID        string
	ParentID  *string
	Title     string
	Body      string
	Category  string
	LinkURL   string
	SortOrder int
	CreatedAt time.Time
	UpdatedAt time.Time
}

// OnboardingNode represents a card in the onboarding tree
type OnboardingNode struct {
	OnboardingCard
	Children []OnboardingNode
	Depth    int
}

type Comment struct {
	ID         string
	TargetType string
	TargetID   string
	Author     string
	Body       string
	CreatedAt  time.Time
	EditedAt   *time.Time
}

type TagCount struct {
	Name  string
	Count int
}

type StatusCount struct {
	Status string
	Count  int
}

// RecentItem is a lightweight row for dashboard listings.
type RecentItem struct {
	ID        string
	Title     string
	Status    string
	UpdatedAt time.Time
}

type MigrationStatus struct {
	Version   string
	Applied   bool
	AppliedAt *time.Time
}
