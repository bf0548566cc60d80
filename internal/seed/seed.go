// Package seed imports entities and onboarding cards from a YAML file.
// Records that already exist are skipped so a seed file can be applied
// repeatedly.
package seed

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"forgeboard/internal/store"
	"forgeboard/internal/tags"
	"forgeboard/internal/util"

	"go.uber.org/zap"
	"gopkg.in/yaml.v3"
)

type File struct {
	Entities   []Entity `yaml:"entities"`
	Onboarding []Card   `yaml:"onboarding"`
}

type Entity struct {
	Code        string            `yaml:"code"`
	Name        string            `yaml:"name"`
	Category    string            `yaml:"category"`
	Summary     string            `yaml:"summary"`
	Description string            `yaml:"description"`
	Attributes  map[string]string `yaml:"attributes"`
	Tags        []string          `yaml:"tags"`
}

// Card is an onboarding card. ID is optional; when set it makes the card
// idempotent across runs.
type Card struct {
	ID       string `yaml:"id"`
	Title    string `yaml:"title"`
	Body     string `yaml:"body"`
	Category string `yaml:"category"`
	Link     string `yaml:"link"`
	Children []Card `yaml:"children"`
}

type Store interface {
	GetEntityByCode(context.Context, string) (store.Entity, error)
	CreateEntity(context.Context, store.Entity) (store.Entity, error)
	GetOnboardingCard(context.Context, string) (store.OnboardingCard, error)
	CreateOnboardingCard(context.Context, store.OnboardingCard) (store.OnboardingCard, error)
}

type Summary struct {
	EntitiesCreated int
	EntitiesSkipped int
	CardsCreated    int
	CardsSkipped    int
}

func Load(path string) (File, error) {
	f, err := os.Open(path)
	if err != nil {
		return File{}, fmt.Errorf("open seed file: %w", err)
	}
	defer f.Close()
	return Decode(f)
}

// Decode parses a seed document. Unknown keys are rejected.
func Decode(r io.Reader) (File, error) {
	var file File
	decoder := yaml.NewDecoder(r)
	decoder.KnownFields(true)
	if err := decoder.Decode(&file); err != nil {
		if errors.Is(err, io.EOF) {
			return File{}, nil
		}
		return File{}, fmt.Errorf("decode seed file: %w", err)
	}
	return file, nil
}

type Importer struct {
	store  Store
	logger *zap.Logger
	author string
}

func NewImporter(s Store, logger *zap.Logger) *Importer {
	return &Importer{store: s, logger: logger.Named("seed"), author: "seed"}
}

func (i *Importer) Apply(ctx context.Context, file File) (Summary, error) {
	var summary Summary
	for idx, entity := range file.Entities {
		created, err := i.applyEntity(ctx, entity)
		if err != nil {
			return summary, fmt.Errorf("entity %d (%s): %w", idx, entity.Code, err)
		}
		if created {
			summary.EntitiesCreated++
		} else {
			summary.EntitiesSkipped++
		}
	}
	for idx, card := range file.Onboarding {
		if err := i.applyCard(ctx, card, nil, idx, &summary); err != nil {
			return summary, err
		}
	}
	return summary, nil
}

func (i *Importer) applyEntity(ctx context.Context, entity Entity) (bool, error) {
	code := strings.ToUpper(strings.TrimSpace(entity.Code))
	name := strings.TrimSpace(entity.Name)
	if code == "" || name == "" {
		return false, errors.New("code and name are required")
	}
	if _, err := i.store.GetEntityByCode(ctx, code); err == nil {
		i.logger.Debug("entity exists", zap.String("code", code))
		return false, nil
	} else if !errors.Is(err, sql.ErrNoRows) {
		return false, err
	}

	normalized, err := tags.Normalize(entity.Tags)
	if err != nil {
		return false, err
	}
	attributes := entity.Attributes
	if attributes == nil {
		attributes = map[string]string{}
	}
	_, err = i.store.CreateEntity(ctx, store.Entity{
		ID:          util.NewID("ent"),
		Code:        code,
		Name:        name,
		Category:    strings.ToLower(strings.TrimSpace(entity.Category)),
		Summary:     strings.TrimSpace(entity.Summary),
		Description: entity.Description,
		Attributes:  attributes,
		Status:      "draft",
		Tags:        normalized,
		CreatedBy:   i.author,
	})
	if errors.Is(err, store.ErrCodeTaken) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

// applyCard creates card under parentID and recurses into its children. A
// card that already exists is kept, but its children are still applied.
func (i *Importer) applyCard(ctx context.Context, card Card, parentID *string, order int, summary *Summary) error {
	title := strings.TrimSpace(card.Title)
	if title == "" {
		return fmt.Errorf("onboarding card %q: title is required", card.ID)
	}

	id := strings.TrimSpace(card.ID)
	exists := false
	if id != "" {
		_, err := i.store.GetOnboardingCard(ctx, id)
		switch {
		case err == nil:
			exists = true
		case !errors.Is(err, sql.ErrNoRows):
			return fmt.Errorf("onboarding card %s: %w", id, err)
		}
	} else {
		id = util.NewID("onb")
	}

	if exists {
		summary.CardsSkipped++
	} else {
		if _, err := i.store.CreateOnboardingCard(ctx, store.OnboardingCard{
			ID:        id,
			ParentID:  parentID,
			Title:     title,
			Body:      card.Body,
			Category:  strings.TrimSpace(card.Category),
			LinkURL:   strings.TrimSpace(card.Link),
			SortOrder: order,
		}); err != nil {
			return fmt.Errorf("onboarding card %q: %w", title, err)
		}
		summary.CardsCreated++
	}

	for idx, child := range card.Children {
		if err := i.applyCard(ctx, child, &id, idx, summary); err != nil {
			return err
		}
	}
	return nil
}
