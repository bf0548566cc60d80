package seed

import (
	"context"
	"database/sql"
	"strings"
	"testing"

	"forgeboard/internal/store"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type memoryStore struct {
	entities map[string]store.Entity
	cards    map[string]store.OnboardingCard
	order    []string
}

func newMemoryStore() *memoryStore {
	return &memoryStore{entities: map[string]store.Entity{}, cards: map[string]store.OnboardingCard{}}
}

func (m *memoryStore) GetEntityByCode(_ context.Context, code string) (store.Entity, error) {
	item, ok := m.entities[code]
	if !ok {
		return store.Entity{}, sql.ErrNoRows
	}
	return item, nil
}

func (m *memoryStore) CreateEntity(_ context.Context, item store.Entity) (store.Entity, error) {
	if _, ok := m.entities[item.Code]; ok {
		return store.Entity{}, store.ErrCodeTaken
	}
	m.entities[item.Code] = item
	return item, nil
}

func (m *memoryStore) GetOnboardingCard(_ context.Context, id string) (store.OnboardingCard, error) {
	item, ok := m.cards[id]
	if !ok {
		return store.OnboardingCard{}, sql.ErrNoRows
	}
	return item, nil
}

func (m *memoryStore) CreateOnboardingCard(_ context.Context, item store.OnboardingCard) (store.OnboardingCard, error) {
	m.cards[item.ID] = item
	m.order = append(m.order, item.ID)
	return item, nil
}

const sample = `
entities:
  - code: hero_aria
    name: Aria
    category: Hero
    tags: [Support, support, "Light Magic"]
    attributes:
      hp: "120"
onboarding:
  - id: onb_welcome
    title: Welcome
    children:
      - id: onb_tools
        title: Tools
        link: https://wiki.example.com/tools
      - title: Style guide
`

func TestDecodeRejectsUnknownFields(t *testing.T) {
	_, err := Decode(strings.NewReader("entities:\n  - code: A\n    colour: red\n"))
	require.Error(t, err)
}

func TestDecodeEmptyDocument(t *testing.T) {
	file, err := Decode(strings.NewReader(""))
	require.NoError(t, err)
	assert.Empty(t, file.Entities)
}

func TestApplyCreatesNestedCards(t *testing.T) {
	file, err := Decode(strings.NewReader(sample))
	require.NoError(t, err)

	mem := newMemoryStore()
	summary, err := NewImporter(mem, zap.NewNop()).Apply(context.Background(), file)
	require.NoError(t, err)

	assert.Equal(t, Summary{EntitiesCreated: 1, CardsCreated: 3}, summary)
	aria := mem.entities["HERO_ARIA"]
	assert.Equal(t, "hero", aria.Category)
	assert.Equal(t, []string{"support", "light-magic"}, aria.Tags)
	assert.Equal(t, "seed", aria.CreatedBy)

	tools := mem.cards["onb_tools"]
	require.NotNil(t, tools.ParentID)
	assert.Equal(t, "onb_welcome", *tools.ParentID)
	assert.Equal(t, 0, tools.SortOrder)

	style := mem.cards[mem.order[2]]
	assert.Equal(t, "Style guide", style.Title)
	assert.Equal(t, 1, style.SortOrder)
}

func TestApplyIsIdempotentForKeyedRecords(t *testing.T) {
	file, err := Decode(strings.NewReader(sample))
	require.NoError(t, err)

	mem := newMemoryStore()
	importer := NewImporter(mem, zap.NewNop())
	_, err = importer.Apply(context.Background(), file)
	require.NoError(t, err)

	summary, err := importer.Apply(context.Background(), file)
	require.NoError(t, err)
	assert.Equal(t, 0, summary.EntitiesCreated)
	assert.Equal(t, 1, summary.EntitiesSkipped)
	assert.Equal(t, 2, summary.CardsSkipped)
	// The card without an id cannot be matched and is created again.
	assert.Equal(t, 1, summary.CardsCreated)
}

func TestApplyRequiresTitles(t *testing.T) {
	mem := newMemoryStore()
	_, err := NewImporter(mem, zap.NewNop()).Apply(context.Background(), File{Onboarding: []Card{{ID: "onb_x"}}})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "title is required")
}
