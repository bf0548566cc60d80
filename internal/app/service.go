package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"forgeboard/internal/auth"
	"forgeboard/internal/authpw"
	"forgeboard/internal/config"
	"forgeboard/internal/export"
	"forgeboard/internal/lorearchive"
	"forgeboard/internal/media"
	"forgeboard/internal/rbac"
	"forgeboard/internal/search"
	"forgeboard/internal/session"
	"forgeboard/internal/store"
	"forgeboard/internal/util"

	"go.uber.org/zap"
)

type Session struct {
	Token        string
	RefreshToken string
	UserID       string
	UserName     string
	Role         string
	JTI          string
	ExpiresAt    time.Time
}

type dataStore interface {
	Ping(context.Context) error
	EnsureUserByName(context.Context, string) (store.User, error)
	GetUserByID(context.Context, string) (store.User, error)
	GetUserByEmail(context.Context, string) (store.User, error)
	CreateUser(context.Context, store.User) error
	UpdateUserPassword(context.Context, string, string) error
	ListUsers(context.Context, string, int, int) ([]store.User, int, error)
	UpdateUserRole(context.Context, string, string) error
	SaveRefreshSession(context.Context, string, string, time.Time) error
	LookupRefreshSession(context.Context, string) (store.User, error)
	RevokeRefreshSession(context.Context, string) error
	RevokeAccessToken(context.Context, string, time.Time) error
	IsAccessTokenRevoked(context.Context, string) (bool, error)
	Exists(context.Context, string, string) (bool, error)

	CreateEntity(context.Context, store.Entity) (store.Entity, error)
	GetEntity(context.Context, string) (store.Entity, error)
	ListEntities(context.Context, store.EntityFilter) ([]store.Entity, int, error)
	UpdateEntity(context.Context, store.Entity) (store.Entity, error)
	SetEntityStatus(context.Context, store.StatusChange) error
	DeleteEntity(context.Context, string) error
	CreateEntityLink(context.Context, store.EntityLink) (store.EntityLink, error)
	ListEntityLinks(context.Context, string) ([]store.EntityLink, error)
	DeleteEntityLink(context.Context, string, string) error

	CreateArt(context.Context, store.ConceptArt) (store.ConceptArt, error)
	GetArt(context.Context, string) (store.ConceptArt, error)
	ListArt(context.Context, store.ArtFilter) ([]store.ConceptArt, int, error)
	UpdateArt(context.Context, store.ConceptArt) (store.ConceptArt, error)
	SetArtImage(context.Context, string, string, string, int64) (string, error)
	SetArtStatus(context.Context, store.StatusChange) error
	DeleteArt(context.Context, string) error

	CreateLore(context.Context, store.LoreEntry, store.LoreVersion) (store.LoreEntry, store.LoreVersion, error)
	GetLore(context.Context, string) (store.LoreEntry, error)
	ListLore(context.Context, store.LoreFilter) ([]store.LoreEntry, int, error)
	UpdateLore(context.Context, store.LoreEntry, *store.LoreVersion) (store.LoreEntry, error)
	ListLoreVersions(context.Context, string) ([]store.LoreVersion, error)
	GetLoreVersion(context.Context, string, int) (store.LoreVersion, error)
	SetLoreStatus(context.Context, store.StatusChange) error
	DeleteLore(context.Context, string) error

	CreateThought(context.Context, store.Thought) (store.Thought, error)
	GetThought(context.Context, string) (store.Thought, error)
	ListThoughts(context.Context, store.ThoughtFilter) ([]store.Thought, int, error)
	UpdateThought(context.Context, store.Thought) (store.Thought, error)
	SetThoughtStatus(context.Context, string, string) error
	DeleteThought(context.Context, string) error

	CreateOnboardingCard(context.Context, store.OnboardingCard) (store.OnboardingCard, error)
	GetOnboardingCard(context.Context, string) (store.OnboardingCard, error)
	ListOnboardingCards(context.Context) ([]store.OnboardingCard, error)
	UpdateOnboardingCard(context.Context, store.OnboardingCard) (store.OnboardingCard, error)
	MoveOnboardingCard(context.Context, string, *string, int) error
	DeleteOnboardingCard(context.Context, string) error

	ListComments(context.Context, string, string) ([]store.Comment, error)
	CountComments(context.Context, string, string) (int, error)
	CreateComment(context.Context, store.Comment) (store.Comment, error)
	GetComment(context.Context, string) (store.Comment, error)
	UpdateComment(context.Context, string, string) (store.Comment, error)
	DeleteComment(context.Context, string) error

	ListTags(context.Context) ([]store.TagCount, error)
	CountByStatus(context.Context, string) ([]store.StatusCount, error)
	RecentItems(context.Context, string, int) ([]store.RecentItem, error)
	OpenThoughtsByPriority(context.Context) (map[string]int, error)
}

// refreshStore holds hashed refresh tokens. Redis when configured, else Postgres.
type refreshStore interface {
	SaveRefreshSession(context.Context, string, string, time.Time) error
	LookupRefreshSession(context.Context, string) (store.User, error)
	RevokeRefreshSession(context.Context, string) error
}

type searchIndex interface {
	Search(context.Context, search.Query) search.Response
	Index(search.Record)
	Delete(search.ResultType, string)
}

type mediaStore interface {
	Put(context.Context, string, io.Reader, int64, string) error
	PresignedURL(context.Context, string) (string, error)
	Remove(context.Context, string) error
	Ping(context.Context) error
}

type loreArchive interface {
	CommitVersion(store.LoreVersion) (lorearchive.Commit, error)
	History(string, int) ([]lorearchive.Commit, error)
	Remove(string) error
}

type exporter interface {
	Export(context.Context, export.Dossier, export.Format) (*export.Result, error)
}

type passwordAuth interface {
	SignUp(context.Context, authpw.SignUpRequest) (store.User, error)
	SignIn(context.Context, authpw.SignInRequest) (store.User, error)
	ChangePassword(context.Context, string, string, string) error
}

// Dependencies are the optional integrations. Nil fields disable the feature.
type Dependencies struct {
	Sessions *session.RedisStore
	Search   *search.Service
	Media    *media.Store
	Archive  *lorearchive.Archive
	Exporter *export.Service
}

type Service struct {
	cfg      config.Config
	logger   *zap.Logger
	store    dataStore
	refresh  refreshStore
	redis    *session.RedisStore
	search   searchIndex
	media    mediaStore
	archive  loreArchive
	exporter exporter
	password passwordAuth
}

func New(cfg config.Config, dataStore *store.PostgresStore, deps Dependencies, logger *zap.Logger) *Service {
	svc := &Service{
		cfg:      cfg,
		logger:   logger.Named("app"),
		store:    dataStore,
		refresh:  dataStore,
		password: authpw.NewService(dataStore, rbac.RoleEditor),
	}
	if deps.Sessions != nil {
		svc.refresh = deps.Sessions
		svc.redis = deps.Sessions
	}
	if deps.Search != nil {
		svc.search = deps.Search
	}
	if deps.Media != nil {
		svc.media = deps.Media
	}
	if deps.Archive != nil {
		svc.archive = deps.Archive
	}
	if deps.Exporter != nil {
		svc.exporter = deps.Exporter
	}
	return svc
}

func (s *Service) Ping(ctx context.Context) error {
	return s.store.Ping(ctx)
}

// ReadinessChecks pings every configured backend. The database is the only
// required one; the rest report their status without failing readiness.
func (s *Service) ReadinessChecks(ctx context.Context) (bool, map[string]any) {
	ready := true
	checks := map[string]any{}
	if err := s.store.Ping(ctx); err != nil {
		ready = false
		checks["database"] = map[string]any{"status": "error", "error": err.Error()}
	} else {
		checks["database"] = map[string]any{"status": "ok"}
	}
	if s.redis != nil {
		checks["redis"] = checkStatus(s.redis.Ping(ctx))
	}
	if s.media != nil {
		checks["objectStorage"] = checkStatus(s.media.Ping(ctx))
	}
	return ready, checks
}

func checkStatus(err error) map[string]any {
	if err != nil {
		return map[string]any{"status": "error", "error": err.Error()}
	}
	return map[string]any{"status": "ok"}
}

// Login is the name-only dev sign-in. Accounts with a password and admins
// must use SignIn.
func (s *Service) Login(ctx context.Context, name string) (Session, error) {
	if !s.cfg.DevLogin {
		return Session{}, domainError(http.StatusForbidden, "DEV_LOGIN_DISABLED", "Name-only login is disabled", nil)
	}
	userName := strings.TrimSpace(name)
	if userName == "" {
		userName = "User"
	}

	user, err := s.store.EnsureUserByName(ctx, userName)
	if err != nil {
		return Session{}, err
	}
	if user.PasswordHash != "" || user.Role == string(rbac.RoleAdmin) {
		return Session{}, domainError(http.StatusUnauthorized, "PASSWORD_REQUIRED", "This account signs in with email and password", nil)
	}

	return s.issueSession(ctx, user)
}

func (s *Service) Refresh(ctx context.Context, refreshToken string) (Session, error) {
	tokenHash := auth.HashToken(refreshToken)
	found, err := s.refresh.LookupRefreshSession(ctx, tokenHash)
	if err != nil {
		return Session{}, err
	}
	if err := s.refresh.RevokeRefreshSession(ctx, tokenHash); err != nil {
		return Session{}, err
	}
	user, err := s.store.GetUserByID(ctx, found.ID)
	if err != nil {
		return Session{}, err
	}
	return s.issueSession(ctx, user)
}

func (s *Service) issueSession(ctx context.Context, user store.User) (Session, error) {
	now := time.Now()
	expiresAt := now.Add(s.cfg.AccessTTL)
	jti := util.NewID("jti")

	token, err := auth.IssueToken([]byte(s.cfg.JWTSecret), auth.Claims{
		Sub:  user.ID,
		Name: user.DisplayName,
		Role: user.Role,
		JTI:  jti,
		Exp:  expiresAt.Unix(),
	})
	if err != nil {
		return Session{}, err
	}

	refresh := util.NewID("rft") + util.NewID("")
	refreshExpires := now.Add(s.cfg.RefreshTTL)
	if err := s.refresh.SaveRefreshSession(ctx, auth.HashToken(refresh), user.ID, refreshExpires); err != nil {
		return Session{}, err
	}

	return Session{
		Token:        token,
		RefreshToken: refresh,
		UserID:       user.ID,
		UserName:     user.DisplayName,
		Role:         user.Role,
		JTI:          jti,
		ExpiresAt:    expiresAt,
	}, nil
}

func (s *Service) SessionFromToken(ctx context.Context, token string) (Session, error) {
	claims, err := auth.ParseToken([]byte(s.cfg.JWTSecret), token)
	if err != nil {
		return Session{}, err
	}
	revoked, err := s.store.IsAccessTokenRevoked(ctx, claims.JTI)
	if err != nil {
		return Session{}, err
	}
	if revoked {
		return Session{}, auth.ErrInvalidToken
	}

	user, err := s.store.GetUserByID(ctx, claims.Sub)
	if err != nil {
		return Session{}, err
	}

	return Session{
		Token:     token,
		UserID:    user.ID,
		UserName:  user.DisplayName,
		Role:      user.Role,
		JTI:       claims.JTI,
		ExpiresAt: time.Unix(claims.Exp, 0),
	}, nil
}

func (s *Service) Logout(ctx context.Context, sess Session, refreshToken string) error {
	if sess.JTI != "" {
		if err := s.store.RevokeAccessToken(ctx, sess.JTI, sess.ExpiresAt); err != nil {
			s.logger.Warn("revoke access token", zap.Error(err))
		}
	}
	if refreshToken != "" {
		err := s.refresh.RevokeRefreshSession(ctx, auth.HashToken(refreshToken))
		if err != nil && !errors.Is(err, session.ErrSessionNotFound) {
			s.logger.Warn("revoke refresh session", zap.Error(err))
		}
	}
	return nil
}

func (s *Service) Can(role string, action rbac.Action) bool {
	return rbac.Can(rbac.Normalize(role), action)
}

func (s *Service) require(sess Session, action rbac.Action) error {
	if !s.Can(sess.Role, action) {
		return forbidden()
	}
	return nil
}

func (s *Service) SignUp(ctx context.Context, email, password, displayName string) (Session, error) {
	user, err := s.password.SignUp(ctx, authpw.SignUpRequest{Email: email, Password: password, DisplayName: displayName})
	if err != nil {
		return Session{}, err
	}
	if user, err = s.promoteBootstrapAdmin(ctx, user); err != nil {
		return Session{}, err
	}
	return s.issueSession(ctx, user)
}

func (s *Service) SignIn(ctx context.Context, email, password string) (Session, error) {
	user, err := s.password.SignIn(ctx, authpw.SignInRequest{Email: email, Password: password})
	if err != nil {
		return Session{}, err
	}
	if user, err = s.promoteBootstrapAdmin(ctx, user); err != nil {
		return Session{}, err
	}
	return s.issueSession(ctx, user)
}

// promoteBootstrapAdmin grants admin to the configured bootstrap email.
func (s *Service) promoteBootstrapAdmin(ctx context.Context, user store.User) (store.User, error) {
	bootstrap := strings.TrimSpace(s.cfg.BootstrapAdmin)
	if bootstrap == "" || user.Role == string(rbac.RoleAdmin) || !strings.EqualFold(bootstrap, user.Email) {
		return user, nil
	}
	if err := s.store.UpdateUserRole(ctx, user.ID, string(rbac.RoleAdmin)); err != nil {
		return store.User{}, fmt.Errorf("promote bootstrap admin: %w", err)
	}
	s.logger.Info("bootstrap admin promoted", zap.String("user_id", user.ID))
	user.Role = string(rbac.RoleAdmin)
	return user, nil
}

// ChangePassword updates the password. With Redis sessions every refresh
// token of the user is revoked as well.
func (s *Service) ChangePassword(ctx context.Context, sess Session, current, next string) (map[string]any, error) {
	if err := s.password.ChangePassword(ctx, sess.UserID, current, next); err != nil {
		return nil, err
	}
	revoked := 0
	if s.redis != nil {
		count, err := s.redis.RevokeAllForUser(ctx, sess.UserID)
		if err != nil {
			s.logger.Warn("revoke refresh sessions after password change", zap.String("user_id", sess.UserID), zap.Error(err))
		}
		revoked = count
	}
	return map[string]any{"ok": true, "revokedSessions": revoked}, nil
}

func (s *Service) ListUsers(ctx context.Context, search string, limit, offset int) (map[string]any, error) {
	users, total, err := s.store.ListUsers(ctx, strings.TrimSpace(search), limit, offset)
	if err != nil {
		return nil, fmt.Errorf("list users: %w", err)
	}
	items := make([]map[string]any, 0, len(users))
	for _, user := range users {
		items = append(items, userPayload(user))
	}
	return map[string]any{"users": items, "total": total}, nil
}

func (s *Service) UpdateUserRole(ctx context.Context, sess Session, userID, role string) (map[string]any, error) {
	role = strings.ToLower(strings.TrimSpace(role))
	if !rbac.Valid(role) {
		names := make([]string, 0, 4)
		for _, known := range rbac.Roles() {
			names = append(names, string(known))
		}
		return nil, validationError("role", "role must be one of "+strings.Join(names, ", "))
	}
	if userID == sess.UserID && role != string(rbac.RoleAdmin) {
		return nil, domainError(http.StatusUnprocessableEntity, "SELF_DEMOTION", "Admins cannot remove their own admin role", nil)
	}
	if err := s.store.UpdateUserRole(ctx, userID, role); err != nil {
		return nil, err
	}
	user, err := s.store.GetUserByID(ctx, userID)
	if err != nil {
		return nil, err
	}
	return userPayload(user), nil
}

func (s *Service) logArchiveError(loreID string, err error) {
	s.logger.Warn("lore archive", zap.String("lore_id", loreID), zap.Error(err))
}
