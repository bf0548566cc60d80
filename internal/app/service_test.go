package app

import (
	"context"
	"database/sql"
	"errors"
	"net/http"
	"testing"
	"time"

	"forgeboard/internal/authpw"
	"forgeboard/internal/config"
	"forgeboard/internal/search"
	"forgeboard/internal/store"
	"forgeboard/internal/workflow"

	"go.uber.org/zap"
)

// fakeStore overrides the store calls a test needs. Anything else panics
// through the nil embedded interface.
type fakeStore struct {
	dataStore

	getUserByIDFn            func(context.Context, string) (store.User, error)
	isAccessTokenRevokedFn   func(context.Context, string) (bool, error)
	existsFn                 func(context.Context, string, string) (bool, error)
	createEntityFn           func(context.Context, store.Entity) (store.Entity, error)
	getEntityFn              func(context.Context, string) (store.Entity, error)
	setEntityStatusFn        func(context.Context, store.StatusChange) error
	deleteEntityFn           func(context.Context, string) error
	ensureUserByNameFn       func(context.Context, string) (store.User, error)
	createArtFn              func(context.Context, store.ConceptArt) (store.ConceptArt, error)
	getArtFn                 func(context.Context, string) (store.ConceptArt, error)
	listArtFn                func(context.Context, store.ArtFilter) ([]store.ConceptArt, int, error)
	updateArtFn              func(context.Context, store.ConceptArt) (store.ConceptArt, error)
	deleteArtFn              func(context.Context, string) error
	listLoreFn               func(context.Context, store.LoreFilter) ([]store.LoreEntry, int, error)
	createThoughtFn          func(context.Context, store.Thought) (store.Thought, error)
	getThoughtFn             func(context.Context, string) (store.Thought, error)
	listThoughtsFn           func(context.Context, store.ThoughtFilter) ([]store.Thought, int, error)
	updateThoughtFn          func(context.Context, store.Thought) (store.Thought, error)
	setThoughtStatusFn       func(context.Context, string, string) error
	createEntityLinkFn       func(context.Context, store.EntityLink) (store.EntityLink, error)
	getLoreFn                func(context.Context, string) (store.LoreEntry, error)
	updateLoreFn             func(context.Context, store.LoreEntry, *store.LoreVersion) (store.LoreEntry, error)
	getLoreVersionFn         func(context.Context, string, int) (store.LoreVersion, error)
	getOnboardingCardFn      func(context.Context, string) (store.OnboardingCard, error)
	moveOnboardingCardFn     func(context.Context, string, *string, int) error
	getCommentFn             func(context.Context, string) (store.Comment, error)
	updateCommentFn          func(context.Context, string, string) (store.Comment, error)
	deleteCommentFn          func(context.Context, string) error
	countByStatusFn          func(context.Context, string) ([]store.StatusCount, error)
	recentItemsFn            func(context.Context, string, int) ([]store.RecentItem, error)
	openThoughtsByPriorityFn func(context.Context) (map[string]int, error)
	updateUserRoleFn         func(context.Context, string, string) error
}

func (f *fakeStore) Ping(context.Context) error { return nil }
func (f *fakeStore) GetUserByID(ctx context.Context, userID string) (store.User, error) {
	if f.getUserByIDFn != nil {
		return f.getUserByIDFn(ctx, userID)
	}
	return store.User{}, sql.ErrNoRows
}
func (f *fakeStore) IsAccessTokenRevoked(ctx context.Context, jti string) (bool, error) {
	if f.isAccessTokenRevokedFn != nil {
		return f.isAccessTokenRevokedFn(ctx, jti)
	}
	return false, nil
}
func (f *fakeStore) SaveRefreshSession(context.Context, string, string, time.Time) error {
	return nil
}
func (f *fakeStore) RevokeAccessToken(context.Context, string, time.Time) error { return nil }
func (f *fakeStore) RevokeRefreshSession(context.Context, string) error         { return nil }
func (f *fakeStore) Exists(ctx context.Context, kind, id string) (bool, error) {
	if f.existsFn != nil {
		return f.existsFn(ctx, kind, id)
	}
	return true, nil
}
func (f *fakeStore) CreateEntity(ctx context.Context, item store.Entity) (store.Entity, error) {
	if f.createEntityFn != nil {
		return f.createEntityFn(ctx, item)
	}
	return item, nil
}
func (f *fakeStore) GetEntity(ctx context.Context, entityID string) (store.Entity, error) {
	if f.getEntityFn != nil {
		return f.getEntityFn(ctx, entityID)
	}
	return store.Entity{}, sql.ErrNoRows
}
func (f *fakeStore) SetEntityStatus(ctx context.Context, change store.StatusChange) error {
	if f.setEntityStatusFn != nil {
		return f.setEntityStatusFn(ctx, change)
	}
	return nil
}
func (f *fakeStore) DeleteEntity(ctx context.Context, entityID string) error {
	if f.deleteEntityFn != nil {
		return f.deleteEntityFn(ctx, entityID)
	}
	return nil
}
func (f *fakeStore) EnsureUserByName(ctx context.Context, name string) (store.User, error) {
	if f.ensureUserByNameFn != nil {
		return f.ensureUserByNameFn(ctx, name)
	}
	return store.User{ID: "usr_" + name, DisplayName: name, Role: "editor"}, nil
}
func (f *fakeStore) CreateArt(ctx context.Context, item store.ConceptArt) (store.ConceptArt, error) {
	if f.createArtFn != nil {
		return f.createArtFn(ctx, item)
	}
	return item, nil
}
func (f *fakeStore) GetArt(ctx context.Context, artID string) (store.ConceptArt, error) {
	if f.getArtFn != nil {
		return f.getArtFn(ctx, artID)
	}
	return store.ConceptArt{}, sql.ErrNoRows
}
func (f *fakeStore) ListArt(ctx context.Context, filter store.ArtFilter) ([]store.ConceptArt, int, error) {
	if f.listArtFn != nil {
		return f.listArtFn(ctx, filter)
	}
	return nil, 0, nil
}
func (f *fakeStore) UpdateArt(ctx context.Context, item store.ConceptArt) (store.ConceptArt, error) {
	if f.updateArtFn != nil {
		return f.updateArtFn(ctx, item)
	}
	return item, nil
}
func (f *fakeStore) DeleteArt(ctx context.Context, artID string) error {
	if f.deleteArtFn != nil {
		return f.deleteArtFn(ctx, artID)
	}
	return nil
}
func (f *fakeStore) ListLore(ctx context.Context, filter store.LoreFilter) ([]store.LoreEntry, int, error) {
	if f.listLoreFn != nil {
		return f.listLoreFn(ctx, filter)
	}
	return nil, 0, nil
}
func (f *fakeStore) CreateThought(ctx context.Context, item store.Thought) (store.Thought, error) {
	if f.createThoughtFn != nil {
		return f.createThoughtFn(ctx, item)
	}
	return item, nil
}
func (f *fakeStore) GetThought(ctx context.Context, thoughtID string) (store.Thought, error) {
	if f.getThoughtFn != nil {
		return f.getThoughtFn(ctx, thoughtID)
	}
	return store.Thought{}, sql.ErrNoRows
}
func (f *fakeStore) ListThoughts(ctx context.Context, filter store.ThoughtFilter) ([]store.Thought, int, error) {
	if f.listThoughtsFn != nil {
		return f.listThoughtsFn(ctx, filter)
	}
	return nil, 0, nil
}
func (f *fakeStore) UpdateThought(ctx context.Context, item store.Thought) (store.Thought, error) {
	if f.updateThoughtFn != nil {
		return f.updateThoughtFn(ctx, item)
	}
	return item, nil
}
func (f *fakeStore) SetThoughtStatus(ctx context.Context, thoughtID, status string) error {
	if f.setThoughtStatusFn != nil {
		return f.setThoughtStatusFn(ctx, thoughtID, status)
	}
	return nil
}
func (f *fakeStore) CreateEntityLink(ctx context.Context, link store.EntityLink) (store.EntityLink, error) {
	if f.createEntityLinkFn != nil {
		return f.createEntityLinkFn(ctx, link)
	}
	return link, nil
}
func (f *fakeStore) GetLore(ctx context.Context, loreID string) (store.LoreEntry, error) {
	if f.getLoreFn != nil {
		return f.getLoreFn(ctx, loreID)
	}
	return store.LoreEntry{}, sql.ErrNoRows
}
func (f *fakeStore) UpdateLore(ctx context.Context, item store.LoreEntry, version *store.LoreVersion) (store.LoreEntry, error) {
	if f.updateLoreFn != nil {
		return f.updateLoreFn(ctx, item, version)
	}
	return item, nil
}
func (f *fakeStore) GetLoreVersion(ctx context.Context, loreID string, version int) (store.LoreVersion, error) {
	if f.getLoreVersionFn != nil {
		return f.getLoreVersionFn(ctx, loreID, version)
	}
	return store.LoreVersion{}, sql.ErrNoRows
}
func (f *fakeStore) GetOnboardingCard(ctx context.Context, cardID string) (store.OnboardingCard, error) {
	if f.getOnboardingCardFn != nil {
		return f.getOnboardingCardFn(ctx, cardID)
	}
	return store.OnboardingCard{}, sql.ErrNoRows
}
func (f *fakeStore) MoveOnboardingCard(ctx context.Context, cardID string, parentID *string, sortOrder int) error {
	if f.moveOnboardingCardFn != nil {
		return f.moveOnboardingCardFn(ctx, cardID, parentID, sortOrder)
	}
	return nil
}
func (f *fakeStore) GetComment(ctx context.Context, commentID string) (store.Comment, error) {
	if f.getCommentFn != nil {
		return f.getCommentFn(ctx, commentID)
	}
	return store.Comment{}, sql.ErrNoRows
}
func (f *fakeStore) UpdateComment(ctx context.Context, commentID, body string) (store.Comment, error) {
	if f.updateCommentFn != nil {
		return f.updateCommentFn(ctx, commentID, body)
	}
	return store.Comment{ID: commentID, Body: body}, nil
}
func (f *fakeStore) DeleteComment(ctx context.Context, commentID string) error {
	if f.deleteCommentFn != nil {
		return f.deleteCommentFn(ctx, commentID)
	}
	return nil
}
func (f *fakeStore) CountByStatus(ctx context.Context, kind string) ([]store.StatusCount, error) {
	if f.countByStatusFn != nil {
		return f.countByStatusFn(ctx, kind)
	}
	return nil, nil
}
func (f *fakeStore) RecentItems(ctx context.Context, kind string, limit int) ([]store.RecentItem, error) {
	if f.recentItemsFn != nil {
		return f.recentItemsFn(ctx, kind, limit)
	}
	return nil, nil
}
func (f *fakeStore) OpenThoughtsByPriority(ctx context.Context) (map[string]int, error) {
	if f.openThoughtsByPriorityFn != nil {
		return f.openThoughtsByPriorityFn(ctx)
	}
	return map[string]int{}, nil
}
func (f *fakeStore) UpdateUserRole(ctx context.Context, userID, role string) error {
	if f.updateUserRoleFn != nil {
		return f.updateUserRoleFn(ctx, userID, role)
	}
	return nil
}

func newTestService(fs *fakeStore) *Service {
	return &Service{
		cfg: config.Config{
			JWTSecret:      "test-secret",
			AccessTTL:      time.Hour,
			RefreshTTL:     24 * time.Hour,
			MaxUploadBytes: 1 << 20,
		},
		logger:  zap.NewNop(),
		store:   fs,
		refresh: fs,
	}
}

var (
	editor    = Session{UserID: "usr_editor", UserName: "Avery", Role: "editor"}
	commenter = Session{UserID: "usr_commenter", UserName: "Blake", Role: "commenter"}
	admin     = Session{UserID: "usr_admin", UserName: "Casey", Role: "admin"}
)

func strPtr(value string) *string { return &value }

func requireDomainError(t *testing.T, err error, status int, code string) *DomainError {
	t.Helper()
	var domainErr *DomainError
	if !errors.As(err, &domainErr) {
		t.Fatalf("expected DomainError %s, got %v", code, err)
	}
	if domainErr.Status != status || domainErr.Code != code {
		t.Fatalf("expected %d %s, got %d %s", status, code, domainErr.Status, domainErr.Code)
	}
	return domainErr
}

func TestCreateEntityNormalizesInput(t *testing.T) {
	var saved store.Entity
	fs := &fakeStore{
		createEntityFn: func(_ context.Context, item store.Entity) (store.Entity, error) {
			saved = item
			return item, nil
		},
	}
	svc := newTestService(fs)
	tagsInput := TagsInput{"Boss", "boss", " Fire "}

	payload, err := svc.CreateEntity(context.Background(), editor, EntityInput{
		Code:     strPtr(" hero_ember "),
		Name:     strPtr("  Ember Knight "),
		Category: strPtr("Hero"),
		Tags:     &tagsInput,
	})
	if err != nil {
		t.Fatalf("CreateEntity() error = %v", err)
	}
	if saved.Code != "HERO_EMBER" || saved.Name != "Ember Knight" || saved.Category != "hero" {
		t.Fatalf("unexpected saved entity %+v", saved)
	}
	if saved.Status != string(workflow.StatusDraft) || saved.CreatedBy != "Avery" {
		t.Fatalf("expected draft by Avery, got %s by %s", saved.Status, saved.CreatedBy)
	}
	if got := payload["tags"].([]string); len(got) != 2 || got[0] != "boss" || got[1] != "fire" {
		t.Fatalf("expected deduplicated tags, got %v", got)
	}
}

func TestCreateEntityRequiresCodeNameCategory(t *testing.T) {
	svc := newTestService(&fakeStore{})

	_, err := svc.CreateEntity(context.Background(), editor, EntityInput{Code: strPtr("HERO"), Category: strPtr("hero")})
	domainErr := requireDomainError(t, err, http.StatusUnprocessableEntity, "VALIDATION_ERROR")
	if domainErr.Details.(map[string]any)["field"] != "name" {
		t.Fatalf("expected field name, got %v", domainErr.Details)
	}
}

func TestCreateEntityRejectsUnknownCategory(t *testing.T) {
	svc := newTestService(&fakeStore{})

	_, err := svc.CreateEntity(context.Background(), editor, EntityInput{
		Code:     strPtr("DRAGON"),
		Name:     strPtr("Dragon"),
		Category: strPtr("monster"),
	})
	requireDomainError(t, err, http.StatusUnprocessableEntity, "VALIDATION_ERROR")
}

func TestSetEntityStatusRejectsInvalidTransition(t *testing.T) {
	fs := &fakeStore{
		getEntityFn: func(context.Context, string) (store.Entity, error) {
			return store.Entity{ID: "ent_1", Status: "draft"}, nil
		},
		setEntityStatusFn: func(context.Context, store.StatusChange) error {
			t.Fatal("status must not be stored for an invalid transition")
			return nil
		},
	}
	svc := newTestService(fs)

	_, err := svc.SetEntityStatus(context.Background(), editor, "ent_1", StatusInput{Status: "approved"})
	var transitionErr *workflow.TransitionError
	if !errors.As(err, &transitionErr) {
		t.Fatalf("expected TransitionError, got %v", err)
	}
	if transitionErr.From != workflow.StatusDraft || transitionErr.To != workflow.StatusApproved {
		t.Fatalf("unexpected transition error %+v", transitionErr)
	}
}

func TestSetEntityStatusApprovalNeedsApprover(t *testing.T) {
	fs := &fakeStore{
		getEntityFn: func(context.Context, string) (store.Entity, error) {
			return store.Entity{ID: "ent_1", Status: "review"}, nil
		},
	}
	svc := newTestService(fs)

	_, err := svc.SetEntityStatus(context.Background(), commenter, "ent_1", StatusInput{Status: "approved"})
	requireDomainError(t, err, http.StatusForbidden, "FORBIDDEN")
}

func TestSetEntityStatusKeepsNoteOnlyForRejected(t *testing.T) {
	status := "review"
	var storedNote string
	fs := &fakeStore{
		getEntityFn: func(context.Context, string) (store.Entity, error) {
			return store.Entity{ID: "ent_1", Status: status}, nil
		},
		setEntityStatusFn: func(_ context.Context, change store.StatusChange) error {
			if change.From != status {
				t.Errorf("expected transition from %s, got %s", status, change.From)
			}
			status = change.To
			storedNote = change.Note
			return nil
		},
	}
	svc := newTestService(fs)

	if _, err := svc.SetEntityStatus(context.Background(), editor, "ent_1", StatusInput{Status: "rejected", Note: " needs lore "}); err != nil {
		t.Fatalf("reject error = %v", err)
	}
	if status != "rejected" || storedNote != "needs lore" {
		t.Fatalf("expected rejected with note, got %s %q", status, storedNote)
	}

	if _, err := svc.SetEntityStatus(context.Background(), editor, "ent_1", StatusInput{Status: "draft", Note: "ignored"}); err != nil {
		t.Fatalf("back to draft error = %v", err)
	}
	if storedNote != "" {
		t.Fatalf("expected note cleared for draft, got %q", storedNote)
	}
}

func TestSetEntityStatusSurfacesConcurrentChange(t *testing.T) {
	fs := &fakeStore{
		getEntityFn: func(context.Context, string) (store.Entity, error) {
			return store.Entity{ID: "ent_1", Status: "review"}, nil
		},
		setEntityStatusFn: func(_ context.Context, change store.StatusChange) error {
			if change.From != "review" || change.To != "approved" || change.By != "Casey" {
				t.Errorf("unexpected change %+v", change)
			}
			return store.ErrStatusChanged
		},
	}
	svc := newTestService(fs)

	_, err := svc.SetEntityStatus(context.Background(), admin, "ent_1", StatusInput{Status: "approved"})
	if !errors.Is(err, store.ErrStatusChanged) {
		t.Fatalf("expected ErrStatusChanged, got %v", err)
	}
}

func TestCreateEntityLinkRejectsSelfLink(t *testing.T) {
	svc := newTestService(&fakeStore{})

	_, err := svc.CreateEntityLink(context.Background(), editor, "ent_1", LinkInput{TargetID: "ent_1"})
	requireDomainError(t, err, http.StatusUnprocessableEntity, "SELF_LINK")
}

func TestCreateEntityLinkMapsDuplicate(t *testing.T) {
	fs := &fakeStore{
		createEntityLinkFn: func(context.Context, store.EntityLink) (store.EntityLink, error) {
			return store.EntityLink{}, store.ErrLinkExists
		},
	}
	svc := newTestService(fs)

	_, err := svc.CreateEntityLink(context.Background(), editor, "ent_1", LinkInput{TargetID: "ent_2", Relation: "Ally"})
	requireDomainError(t, err, http.StatusConflict, "LINK_EXISTS")
}

func loreFixture() store.LoreEntry {
	return store.LoreEntry{
		ID:             "lor_1",
		Title:          "The Ember War",
		Content:        "The war began.\nThe keep fell.",
		Status:         "draft",
		CurrentVersion: 2,
	}
}

func TestUpdateLoreVersionsOnlyWhenTextChanges(t *testing.T) {
	var versions []*store.LoreVersion
	fs := &fakeStore{
		getLoreFn: func(context.Context, string) (store.LoreEntry, error) {
			return loreFixture(), nil
		},
		updateLoreFn: func(_ context.Context, item store.LoreEntry, version *store.LoreVersion) (store.LoreEntry, error) {
			versions = append(versions, version)
			return item, nil
		},
	}
	svc := newTestService(fs)

	if _, err := svc.UpdateLore(context.Background(), editor, "lor_1", LoreInput{Summary: strPtr("A short war")}); err != nil {
		t.Fatalf("summary update error = %v", err)
	}
	if _, err := svc.UpdateLore(context.Background(), editor, "lor_1", LoreInput{Content: strPtr("The war began.\r\nThe keep fell.")}); err != nil {
		t.Fatalf("CRLF update error = %v", err)
	}
	if _, err := svc.UpdateLore(context.Background(), editor, "lor_1", LoreInput{Content: strPtr("The war began.\nThe keep held."), Note: "fix ending"}); err != nil {
		t.Fatalf("content update error = %v", err)
	}

	if len(versions) != 3 {
		t.Fatalf("expected 3 store updates, got %d", len(versions))
	}
	if versions[0] != nil || versions[1] != nil {
		t.Fatal("expected no version for summary-only or line-ending-only updates")
	}
	if versions[2] == nil || versions[2].Note != "fix ending" || versions[2].Author != "Avery" {
		t.Fatalf("expected version with note and author, got %+v", versions[2])
	}
}

func TestRestoreLoreVersionIsNoopWhenUnchanged(t *testing.T) {
	current := loreFixture()
	fs := &fakeStore{
		getLoreFn: func(context.Context, string) (store.LoreEntry, error) {
			return current, nil
		},
		getLoreVersionFn: func(_ context.Context, _ string, number int) (store.LoreVersion, error) {
			return store.LoreVersion{Version: number, Title: current.Title, Content: current.Content}, nil
		},
		updateLoreFn: func(context.Context, store.LoreEntry, *store.LoreVersion) (store.LoreEntry, error) {
			t.Fatal("restore of identical text must not write")
			return store.LoreEntry{}, nil
		},
	}
	svc := newTestService(fs)

	payload, err := svc.RestoreLoreVersion(context.Background(), editor, "lor_1", 2)
	if err != nil {
		t.Fatalf("RestoreLoreVersion() error = %v", err)
	}
	if payload["restored"] != false {
		t.Fatalf("expected restored=false, got %v", payload["restored"])
	}
}

func TestRestoreLoreVersionWritesNewVersion(t *testing.T) {
	var written *store.LoreVersion
	fs := &fakeStore{
		getLoreFn: func(context.Context, string) (store.LoreEntry, error) {
			return loreFixture(), nil
		},
		getLoreVersionFn: func(_ context.Context, _ string, number int) (store.LoreVersion, error) {
			return store.LoreVersion{Version: number, Title: "The Ember War", Content: "The war began."}, nil
		},
		updateLoreFn: func(_ context.Context, item store.LoreEntry, version *store.LoreVersion) (store.LoreEntry, error) {
			version.Version = item.CurrentVersion + 1
			written = version
			item.CurrentVersion = version.Version
			return item, nil
		},
	}
	svc := newTestService(fs)

	payload, err := svc.RestoreLoreVersion(context.Background(), editor, "lor_1", 1)
	if err != nil {
		t.Fatalf("RestoreLoreVersion() error = %v", err)
	}
	if written == nil || written.Content != "The war began." || written.Note != "Restored from version 1" {
		t.Fatalf("unexpected restored version %+v", written)
	}
	if payload["restored"] != true || payload["currentVersion"] != 3 || payload["content"] != "The war began." {
		t.Fatalf("unexpected payload %v", payload)
	}
}

func TestDiffLoreVersionsDefaultsToPrevious(t *testing.T) {
	texts := map[int]string{1: "alpha\nbeta", 2: "alpha\ngamma\nbeta"}
	fs := &fakeStore{
		getLoreVersionFn: func(_ context.Context, _ string, number int) (store.LoreVersion, error) {
			text, ok := texts[number]
			if !ok {
				return store.LoreVersion{}, sql.ErrNoRows
			}
			return store.LoreVersion{Version: number, Content: text}, nil
		},
	}
	svc := newTestService(fs)

	payload, err := svc.DiffLoreVersions(context.Background(), "lor_1", 2, nil)
	if err != nil {
		t.Fatalf("DiffLoreVersions() error = %v", err)
	}
	if payload["from"] != 1 || payload["added"] != 1 || payload["removed"] != 0 {
		t.Fatalf("unexpected diff summary %v", payload)
	}

	first, err := svc.DiffLoreVersions(context.Background(), "lor_1", 1, nil)
	if err != nil {
		t.Fatalf("first version diff error = %v", err)
	}
	if first["from"] != 0 || first["added"] != 2 {
		t.Fatalf("expected version 1 diffed against empty text, got %v", first)
	}

	zero := 0
	_, err = svc.DiffLoreVersions(context.Background(), "lor_1", 2, &zero)
	requireDomainError(t, err, http.StatusUnprocessableEntity, "VALIDATION_ERROR")
}

func TestMoveOnboardingCardRejectsCycle(t *testing.T) {
	fs := &fakeStore{
		getOnboardingCardFn: func(_ context.Context, cardID string) (store.OnboardingCard, error) {
			return store.OnboardingCard{ID: cardID, Title: "Card"}, nil
		},
		moveOnboardingCardFn: func(context.Context, string, *string, int) error {
			return store.ErrCycle
		},
	}
	svc := newTestService(fs)

	_, err := svc.MoveOnboardingCard(context.Background(), "obc_root", MoveInput{ParentID: strPtr("obc_child")})
	requireDomainError(t, err, http.StatusUnprocessableEntity, "CYCLE")
}

func TestMoveOnboardingCardToRootClearsParent(t *testing.T) {
	var gotParent *string
	fs := &fakeStore{
		getOnboardingCardFn: func(_ context.Context, cardID string) (store.OnboardingCard, error) {
			return store.OnboardingCard{ID: cardID}, nil
		},
		moveOnboardingCardFn: func(_ context.Context, _ string, parentID *string, _ int) error {
			gotParent = parentID
			return nil
		},
	}
	svc := newTestService(fs)

	if _, err := svc.MoveOnboardingCard(context.Background(), "obc_1", MoveInput{ParentID: strPtr("  "), SortOrder: 3}); err != nil {
		t.Fatalf("MoveOnboardingCard() error = %v", err)
	}
	if gotParent != nil {
		t.Fatalf("expected nil parent for blank parentId, got %q", *gotParent)
	}
}

func TestCommentEditRequiresAuthorOrAdmin(t *testing.T) {
	deleted := false
	fs := &fakeStore{
		getCommentFn: func(_ context.Context, commentID string) (store.Comment, error) {
			return store.Comment{ID: commentID, Author: "Avery", Body: "first"}, nil
		},
		deleteCommentFn: func(context.Context, string) error {
			deleted = true
			return nil
		},
	}
	svc := newTestService(fs)

	_, err := svc.UpdateComment(context.Background(), commenter, "cmt_1", "edited")
	requireDomainError(t, err, http.StatusForbidden, "FORBIDDEN")

	payload, err := svc.UpdateComment(context.Background(), editor, "cmt_1", " edited ")
	if err != nil {
		t.Fatalf("author update error = %v", err)
	}
	if payload["body"] != "edited" {
		t.Fatalf("expected trimmed body, got %v", payload["body"])
	}

	if err := svc.DeleteComment(context.Background(), admin, "cmt_1"); err != nil {
		t.Fatalf("admin delete error = %v", err)
	}
	if !deleted {
		t.Fatal("expected admin delete to reach the store")
	}
}

func TestCreateCommentRejectsMissingTarget(t *testing.T) {
	fs := &fakeStore{
		existsFn: func(context.Context, string, string) (bool, error) { return false, nil },
	}
	svc := newTestService(fs)

	_, err := svc.CreateComment(context.Background(), commenter, CommentInput{TargetType: "lore", TargetID: "lor_missing", Body: "hi"})
	requireDomainError(t, err, http.StatusNotFound, "NOT_FOUND")

	_, err = svc.CreateComment(context.Background(), commenter, CommentInput{TargetType: "planet", TargetID: "x", Body: "hi"})
	requireDomainError(t, err, http.StatusUnprocessableEntity, "VALIDATION_ERROR")
}

func TestDashboardAggregatesKinds(t *testing.T) {
	fs := &fakeStore{
		countByStatusFn: func(_ context.Context, kind string) ([]store.StatusCount, error) {
			if kind == store.KindThought {
				return []store.StatusCount{{Status: "open", Count: 2}, {Status: "done", Count: 1}}, nil
			}
			return []store.StatusCount{{Status: "draft", Count: 1}}, nil
		},
		recentItemsFn: func(_ context.Context, kind string, limit int) ([]store.RecentItem, error) {
			if limit != dashboardRecentLimit {
				t.Errorf("expected recent limit %d, got %d", dashboardRecentLimit, limit)
			}
			return []store.RecentItem{{ID: kind + "_1", Title: kind, Status: "draft", UpdatedAt: time.Now()}}, nil
		},
		openThoughtsByPriorityFn: func(context.Context) (map[string]int, error) {
			return map[string]int{"high": 2}, nil
		},
	}
	svc := newTestService(fs)

	payload, err := svc.Dashboard(context.Background())
	if err != nil {
		t.Fatalf("Dashboard() error = %v", err)
	}
	counts := payload["counts"].(map[string]map[string]any)
	if counts[store.KindThought]["total"] != 3 || counts[store.KindEntity]["total"] != 1 {
		t.Fatalf("unexpected counts %v", counts)
	}
	recent := payload["recent"].(map[string][]map[string]any)
	if len(recent[store.KindLore]) != 1 {
		t.Fatalf("expected one recent lore item, got %v", recent[store.KindLore])
	}
	open := payload["openThoughts"].(map[string]int)
	if open["high"] != 2 || open["critical"] != 0 || len(open) != 4 {
		t.Fatalf("unexpected open thoughts %v", open)
	}
}

func TestDashboardFailsWhenAnyQueryFails(t *testing.T) {
	fs := &fakeStore{
		recentItemsFn: func(_ context.Context, kind string, _ int) ([]store.RecentItem, error) {
			if kind == store.KindArt {
				return nil, errors.New("boom")
			}
			return nil, nil
		},
	}
	svc := newTestService(fs)

	if _, err := svc.Dashboard(context.Background()); err == nil {
		t.Fatal("expected dashboard error")
	}
}

func TestUpdateUserRoleBlocksSelfDemotion(t *testing.T) {
	fs := &fakeStore{
		updateUserRoleFn: func(context.Context, string, string) error {
			t.Fatal("self demotion must not reach the store")
			return nil
		},
	}
	svc := newTestService(fs)

	_, err := svc.UpdateUserRole(context.Background(), admin, admin.UserID, "editor")
	requireDomainError(t, err, http.StatusUnprocessableEntity, "SELF_DEMOTION")

	_, err = svc.UpdateUserRole(context.Background(), admin, "usr_other", "owner")
	requireDomainError(t, err, http.StatusUnprocessableEntity, "VALIDATION_ERROR")
}

func TestSearchWithoutIndexIsUnavailable(t *testing.T) {
	svc := newTestService(&fakeStore{})

	_, err := svc.Search(context.Background(), search.Query{Text: "ember"})
	requireDomainError(t, err, http.StatusServiceUnavailable, "SEARCH_UNAVAILABLE")

	empty, err := svc.Search(context.Background(), search.Query{Text: "   "})
	if err != nil {
		t.Fatalf("blank search error = %v", err)
	}
	if empty.Backend != "none" || len(empty.Results) != 0 {
		t.Fatalf("expected empty response, got %+v", empty)
	}
}

type fakePassword struct {
	user store.User
	err  error
}

func (f *fakePassword) SignUp(context.Context, authpw.SignUpRequest) (store.User, error) {
	return f.user, f.err
}
func (f *fakePassword) SignIn(context.Context, authpw.SignInRequest) (store.User, error) {
	return f.user, f.err
}
func (f *fakePassword) ChangePassword(context.Context, string, string, string) error { return f.err }

type fakeSearch struct {
	indexed []search.Record
	deleted []string
}

func (f *fakeSearch) Search(context.Context, search.Query) search.Response { return search.Response{} }
func (f *fakeSearch) Index(rec search.Record) { f.indexed = append(f.indexed, rec) }
func (f *fakeSearch) Delete(rtyp search.ResultType, id string) {
	f.deleted = append(f.deleted, string(rtyp)+":"+id)
}

func TestLoginRefusesPasswordAndAdminAccounts(t *testing.T) {
	accounts := map[string]store.User{
		"Dana":  {ID: "usr_dana", DisplayName: "Dana", Role: "editor", PasswordHash: "$2a$10$hash"},
		"Casey": {ID: "usr_admin", DisplayName: "Casey", Role: "admin"},
	}
	fs := &fakeStore{
		ensureUserByNameFn: func(_ context.Context, name string) (store.User, error) {
			return accounts[name], nil
		},
	}
	svc := newTestService(fs)
	svc.cfg.DevLogin = true

	for name := range accounts {
		_, err := svc.Login(context.Background(), name)
		requireDomainError(t, err, http.StatusUnauthorized, "PASSWORD_REQUIRED")
	}
}

func TestLoginIssuesSessionForDevAccount(t *testing.T) {
	svc := newTestService(&fakeStore{})
	svc.cfg.DevLogin = true

	sess, err := svc.Login(context.Background(), "  Avery ")
	if err != nil {
		t.Fatalf("Login() error = %v", err)
	}
	if sess.UserName != "Avery" || sess.Role != "editor" || sess.Token == "" || sess.RefreshToken == "" {
		t.Fatalf("unexpected session %+v", sess)
	}
}

func TestLoginDisabledWithoutDevLogin(t *testing.T) {
	fs := &fakeStore{
		ensureUserByNameFn: func(context.Context, string) (store.User, error) {
			t.Fatal("disabled login must not create users")
			return store.User{}, nil
		},
	}
	svc := newTestService(fs)

	_, err := svc.Login(context.Background(), "Avery")
	requireDomainError(t, err, http.StatusForbidden, "DEV_LOGIN_DISABLED")
}

func TestSignInPromotesBootstrapAdmin(t *testing.T) {
	var promoted []string
	fs := &fakeStore{
		updateUserRoleFn: func(_ context.Context, userID, role string) error {
			promoted = append(promoted, userID+"="+role)
			return nil
		},
	}
	svc := newTestService(fs)
	svc.cfg.BootstrapAdmin = " Lead@Studio.test "

	pw := &fakePassword{user: store.User{ID: "usr_lead", DisplayName: "Lead", Email: "lead@studio.test", Role: "editor"}}
	svc.password = pw
	sess, err := svc.SignIn(context.Background(), "lead@studio.test", "secret-pass")
	if err != nil {
		t.Fatalf("SignIn() error = %v", err)
	}
	if sess.Role != "admin" {
		t.Fatalf("expected bootstrap admin session, got role %s", sess.Role)
	}

	pw.user = store.User{ID: "usr_other", DisplayName: "Other", Email: "other@studio.test", Role: "editor"}
	sess, err = svc.SignUp(context.Background(), "other@studio.test", "secret-pass", "Other")
	if err != nil {
		t.Fatalf("SignUp() error = %v", err)
	}
	if sess.Role != "editor" {
		t.Fatalf("expected other accounts untouched, got role %s", sess.Role)
	}

	pw.user = store.User{ID: "usr_lead", DisplayName: "Lead", Email: "lead@studio.test", Role: "admin"}
	if _, err := svc.SignIn(context.Background(), "lead@studio.test", "secret-pass"); err != nil {
		t.Fatalf("second SignIn() error = %v", err)
	}
	if len(promoted) != 1 || promoted[0] != "usr_lead=admin" {
		t.Fatalf("expected a single promotion, got %v", promoted)
	}
}

func TestCreateThoughtDefaultsToOpenMedium(t *testing.T) {
	var saved store.Thought
	fs := &fakeStore{
		createThoughtFn: func(_ context.Context, item store.Thought) (store.Thought, error) {
			saved = item
			return item, nil
		},
	}
	svc := newTestService(fs)

	payload, err := svc.CreateThought(context.Background(), editor, ThoughtInput{Title: strPtr(" Balance frost towers ")})
	if err != nil {
		t.Fatalf("CreateThought() error = %v", err)
	}
	if saved.Priority != "medium" || saved.Status != "open" || saved.CreatedBy != "Avery" || saved.Title != "Balance frost towers" {
		t.Fatalf("unexpected saved thought %+v", saved)
	}
	if payload["priority"] != "medium" || payload["dueAt"] != (*time.Time)(nil) {
		t.Fatalf("unexpected payload %v", payload)
	}

	_, err = svc.CreateThought(context.Background(), editor, ThoughtInput{})
	requireDomainError(t, err, http.StatusUnprocessableEntity, "VALIDATION_ERROR")

	_, err = svc.CreateThought(context.Background(), editor, ThoughtInput{Title: strPtr("Urgent"), Priority: strPtr("urgent")})
	domainErr := requireDomainError(t, err, http.StatusUnprocessableEntity, "VALIDATION_ERROR")
	if domainErr.Details.(map[string]any)["field"] != "priority" {
		t.Fatalf("expected field priority, got %v", domainErr.Details)
	}
}

func thoughtFixture() store.Thought {
	return store.Thought{ID: "tht_1", Title: "Frost towers", Status: "open", Priority: "high"}
}

func TestUpdateThoughtDueAt(t *testing.T) {
	var saved store.Thought
	fs := &fakeStore{
		getThoughtFn: func(context.Context, string) (store.Thought, error) {
			item := thoughtFixture()
			due := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
			item.DueAt = &due
			return item, nil
		},
		updateThoughtFn: func(_ context.Context, item store.Thought) (store.Thought, error) {
			saved = item
			return item, nil
		},
	}
	svc := newTestService(fs)

	set := ThoughtInput{DueAt: OptionalString{Set: true, Value: strPtr("2026-03-12T18:10:00.000+02:00")}}
	if _, err := svc.UpdateThought(context.Background(), "tht_1", set); err != nil {
		t.Fatalf("UpdateThought() error = %v", err)
	}
	want := time.Date(2026, 3, 12, 16, 10, 0, 0, time.UTC)
	if saved.DueAt == nil || !saved.DueAt.Equal(want) || saved.DueAt.Location() != time.UTC {
		t.Fatalf("expected due %s in UTC, got %v", want, saved.DueAt)
	}

	if _, err := svc.UpdateThought(context.Background(), "tht_1", ThoughtInput{DueAt: OptionalString{Set: true}}); err != nil {
		t.Fatalf("clear dueAt error = %v", err)
	}
	if saved.DueAt != nil {
		t.Fatalf("expected dueAt cleared, got %v", saved.DueAt)
	}

	_, err := svc.UpdateThought(context.Background(), "tht_1", ThoughtInput{DueAt: OptionalString{Set: true, Value: strPtr("next friday")}})
	domainErr := requireDomainError(t, err, http.StatusUnprocessableEntity, "VALIDATION_ERROR")
	if domainErr.Details.(map[string]any)["field"] != "dueAt" {
		t.Fatalf("expected field dueAt, got %v", domainErr.Details)
	}
}

func TestUpdateThoughtRejectsUnknownStatus(t *testing.T) {
	fs := &fakeStore{
		getThoughtFn: func(context.Context, string) (store.Thought, error) { return thoughtFixture(), nil },
		updateThoughtFn: func(context.Context, store.Thought) (store.Thought, error) {
			t.Fatal("invalid input must not be stored")
			return store.Thought{}, nil
		},
	}
	svc := newTestService(fs)

	_, err := svc.UpdateThought(context.Background(), "tht_1", ThoughtInput{Status: strPtr("archived")})
	requireDomainError(t, err, http.StatusUnprocessableEntity, "VALIDATION_ERROR")
}

func TestSetThoughtStatusAcceptsAnyValidStatus(t *testing.T) {
	current := thoughtFixture()
	current.Status = "done"
	fs := &fakeStore{
		getThoughtFn: func(context.Context, string) (store.Thought, error) { return current, nil },
		setThoughtStatusFn: func(_ context.Context, _ string, status string) error {
			current.Status = status
			return nil
		},
	}
	svc := newTestService(fs)

	for _, status := range []string{"open", "blocked", " DONE ", "in_progress"} {
		payload, err := svc.SetThoughtStatus(context.Background(), "tht_1", status)
		if err != nil {
			t.Fatalf("SetThoughtStatus(%q) error = %v", status, err)
		}
		if payload["status"] != current.Status {
			t.Fatalf("expected payload status %s, got %v", current.Status, payload["status"])
		}
	}
	if current.Status != "in_progress" {
		t.Fatalf("expected in_progress, got %s", current.Status)
	}

	_, err := svc.SetThoughtStatus(context.Background(), "tht_1", "approved")
	requireDomainError(t, err, http.StatusUnprocessableEntity, "VALIDATION_ERROR")
}

func TestListThoughtsValidatesFilter(t *testing.T) {
	svc := newTestService(&fakeStore{})

	_, err := svc.ListThoughts(context.Background(), store.ThoughtFilter{Priority: "urgent"})
	requireDomainError(t, err, http.StatusUnprocessableEntity, "VALIDATION_ERROR")
	_, err = svc.ListThoughts(context.Background(), store.ThoughtFilter{Status: "approved"})
	requireDomainError(t, err, http.StatusUnprocessableEntity, "VALIDATION_ERROR")

	payload, err := svc.ListThoughts(context.Background(), store.ThoughtFilter{Status: "open", Priority: "critical"})
	if err != nil {
		t.Fatalf("ListThoughts() error = %v", err)
	}
	if payload["total"] != 0 {
		t.Fatalf("unexpected payload %v", payload)
	}
}

func TestCreateArtStartsAsDraft(t *testing.T) {
	var saved store.ConceptArt
	fs := &fakeStore{
		createArtFn: func(_ context.Context, item store.ConceptArt) (store.ConceptArt, error) {
			saved = item
			return item, nil
		},
	}
	svc := newTestService(fs)
	tagsInput := TagsInput{"Ember", "ember"}

	payload, err := svc.CreateArt(context.Background(), editor, ArtInput{
		Title:    strPtr(" Ember Knight sketch "),
		EntityID: OptionalString{Set: true, Value: strPtr(" ent_1 ")},
		Tags:     &tagsInput,
	})
	if err != nil {
		t.Fatalf("CreateArt() error = %v", err)
	}
	if saved.Status != string(workflow.StatusDraft) || saved.UploadedBy != "Avery" || saved.Title != "Ember Knight sketch" {
		t.Fatalf("unexpected saved art %+v", saved)
	}
	if saved.EntityID == nil || *saved.EntityID != "ent_1" {
		t.Fatalf("expected trimmed entity id, got %v", saved.EntityID)
	}
	if payload["hasImage"] != false || len(payload["tags"].([]string)) != 1 {
		t.Fatalf("unexpected payload %v", payload)
	}

	_, err = svc.CreateArt(context.Background(), editor, ArtInput{Title: strPtr("   ")})
	requireDomainError(t, err, http.StatusUnprocessableEntity, "VALIDATION_ERROR")
}

func TestUpdateArtRejectsMissingEntity(t *testing.T) {
	fs := &fakeStore{
		getArtFn: func(_ context.Context, artID string) (store.ConceptArt, error) {
			return store.ConceptArt{ID: artID, Title: "Sketch", Status: "draft"}, nil
		},
		existsFn: func(context.Context, string, string) (bool, error) { return false, nil },
		updateArtFn: func(context.Context, store.ConceptArt) (store.ConceptArt, error) {
			t.Fatal("art with a dangling entity must not be stored")
			return store.ConceptArt{}, nil
		},
	}
	svc := newTestService(fs)

	_, err := svc.UpdateArt(context.Background(), "art_1", ArtInput{EntityID: OptionalString{Set: true, Value: strPtr("ent_gone")}})
	domainErr := requireDomainError(t, err, http.StatusUnprocessableEntity, "VALIDATION_ERROR")
	if domainErr.Details.(map[string]any)["field"] != "entityId" {
		t.Fatalf("expected field entityId, got %v", domainErr.Details)
	}
}

func TestUpdateArtClearsEntity(t *testing.T) {
	var saved store.ConceptArt
	fs := &fakeStore{
		getArtFn: func(_ context.Context, artID string) (store.ConceptArt, error) {
			return store.ConceptArt{ID: artID, Title: "Sketch", EntityID: strPtr("ent_1")}, nil
		},
		updateArtFn: func(_ context.Context, item store.ConceptArt) (store.ConceptArt, error) {
			saved = item
			return item, nil
		},
	}
	svc := newTestService(fs)

	if _, err := svc.UpdateArt(context.Background(), "art_1", ArtInput{Description: strPtr("final pass"), EntityID: OptionalString{Set: true}}); err != nil {
		t.Fatalf("UpdateArt() error = %v", err)
	}
	if saved.EntityID != nil || saved.Description != "final pass" || saved.Title != "Sketch" {
		t.Fatalf("unexpected saved art %+v", saved)
	}
}

func TestDeleteArtUnindexes(t *testing.T) {
	var deleted string
	fs := &fakeStore{
		getArtFn: func(_ context.Context, artID string) (store.ConceptArt, error) {
			if artID != "art_1" {
				return store.ConceptArt{}, sql.ErrNoRows
			}
			return store.ConceptArt{ID: artID}, nil
		},
		deleteArtFn: func(_ context.Context, artID string) error {
			deleted = artID
			return nil
		},
	}
	svc := newTestService(fs)
	index := &fakeSearch{}
	svc.search = index

	if err := svc.DeleteArt(context.Background(), "art_1"); err != nil {
		t.Fatalf("DeleteArt() error = %v", err)
	}
	if deleted != "art_1" || len(index.deleted) != 1 || index.deleted[0] != "art:art_1" {
		t.Fatalf("expected store delete and unindex, got %q %v", deleted, index.deleted)
	}

	if err := svc.DeleteArt(context.Background(), "art_missing"); !errors.Is(err, sql.ErrNoRows) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestUpdateLoreVersionsFinalNewlineChange(t *testing.T) {
	var version *store.LoreVersion
	fs := &fakeStore{
		getLoreFn: func(context.Context, string) (store.LoreEntry, error) {
			return loreFixture(), nil
		},
		updateLoreFn: func(_ context.Context, item store.LoreEntry, v *store.LoreVersion) (store.LoreEntry, error) {
			version = v
			return item, nil
		},
	}
	svc := newTestService(fs)

	if _, err := svc.UpdateLore(context.Background(), editor, "lor_1", LoreInput{Content: strPtr("The war began.\nThe keep fell.\n")}); err != nil {
		t.Fatalf("UpdateLore() error = %v", err)
	}
	if version == nil {
		t.Fatal("expected a version for an added final newline")
	}

	texts := map[int]string{2: loreFixture().Content, 3: version.Content}
	fs.getLoreVersionFn = func(_ context.Context, _ string, number int) (store.LoreVersion, error) {
		return store.LoreVersion{Version: number, Content: texts[number]}, nil
	}
	payload, err := svc.DiffLoreVersions(context.Background(), "lor_1", 3, nil)
	if err != nil {
		t.Fatalf("DiffLoreVersions() error = %v", err)
	}
	if payload["endNewline"] != true || payload["added"] != 0 || payload["removed"] != 0 {
		t.Fatalf("expected the newline change to be reported, got %v", payload)
	}
}

func TestDeleteEntityReindexesDetachedRecords(t *testing.T) {
	entityID := strPtr("ent_1")
	fs := &fakeStore{
		listArtFn: func(_ context.Context, filter store.ArtFilter) ([]store.ConceptArt, int, error) {
			if filter.EntityID != "ent_1" {
				t.Errorf("unexpected art filter %+v", filter)
			}
			return []store.ConceptArt{{ID: "art_1", EntityID: entityID}}, 1, nil
		},
		listLoreFn: func(context.Context, store.LoreFilter) ([]store.LoreEntry, int, error) {
			return []store.LoreEntry{{ID: "lor_1", EntityID: entityID}}, 1, nil
		},
		listThoughtsFn: func(_ context.Context, filter store.ThoughtFilter) ([]store.Thought, int, error) {
			// Two pages of one thought each.
			if filter.Offset == 0 {
				return []store.Thought{{ID: "tht_1", EntityID: entityID}}, 201, nil
			}
			if filter.Offset == 200 {
				return []store.Thought{{ID: "tht_2", EntityID: entityID}}, 201, nil
			}
			return nil, 201, nil
		},
	}
	svc := newTestService(fs)
	index := &fakeSearch{}
	svc.search = index

	if err := svc.DeleteEntity(context.Background(), "ent_1"); err != nil {
		t.Fatalf("DeleteEntity() error = %v", err)
	}
	if len(index.deleted) != 1 || index.deleted[0] != "entity:ent_1" {
		t.Fatalf("expected entity unindexed, got %v", index.deleted)
	}
	var ids []string
	for _, rec := range index.indexed {
		if rec.EntityID != "" {
			t.Fatalf("expected %s detached, got entity %q", rec.ID, rec.EntityID)
		}
		ids = append(ids, rec.ID)
	}
	if len(ids) != 4 || ids[0] != "art_1" || ids[1] != "lor_1" || ids[2] != "tht_1" || ids[3] != "tht_2" {
		t.Fatalf("unexpected reindexed records %v", ids)
	}
}

func TestDeleteEntityKeepsIndexWhenDeleteFails(t *testing.T) {
	fs := &fakeStore{
		deleteEntityFn: func(context.Context, string) error { return sql.ErrNoRows },
	}
	svc := newTestService(fs)
	index := &fakeSearch{}
	svc.search = index

	if err := svc.DeleteEntity(context.Background(), "ent_missing"); !errors.Is(err, sql.ErrNoRows) {
		t.Fatalf("expected not found, got %v", err)
	}
	if len(index.deleted) != 0 || len(index.indexed) != 0 {
		t.Fatalf("expected no index writes, got %v %v", index.deleted, index.indexed)
	}
}
