package export

import (
	"context"
	"fmt"
	"sort"

	"forgeboard/internal/store"
)

// Service renders dossiers into the requested format.
type Service struct {
	renderPDF func(ctx context.Context, html, title string) (*Result, error)
}

func NewService() *Service {
	return &Service{renderPDF: printPDF}
}

// Export renders d as HTML, then converts it to PDF when requested.
func (s *Service) Export(ctx context.Context, d Dossier, format Format) (*Result, error) {
	html, err := RenderDossierHTML(d)
	if err != nil {
		return nil, fmt.Errorf("render template: %w", err)
	}

	switch format {
	case FormatPDF:
		return s.renderPDF(ctx, html, d.Title)
	case FormatHTML:
		return &Result{
			Data:     []byte(html),
			Filename: sanitizeFilename(d.Title) + ".html",
			MimeType: "text/html; charset=utf-8",
		}, nil
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedFormat, format)
	}
}

// LoreDossier builds the printable view of a lore entry.
func LoreDossier(entry store.LoreEntry, comments []store.Comment) Dossier {
	return Dossier{
		Kind:       "Lore entry",
		Title:      entry.Title,
		Subtitle:   entry.Summary,
		Status:     entry.Status,
		StatusNote: entry.StatusNote,
		Author:     entry.UpdatedBy,
		Version:    entry.CurrentVersion,
		UpdatedAt:  entry.UpdatedAt,
		Tags:       entry.Tags,
		Blocks:     TextBlocks(entry.Content),
		Comments:   toComments(comments),
	}
}

// EntityDossier builds the printable view of a game entity. Attributes are
// sorted by key.
func EntityDossier(entity store.Entity, links []store.EntityLink, comments []store.Comment) Dossier {
	attributes := make([]Attribute, 0, len(entity.Attributes)+2)
	attributes = append(attributes, Attribute{Key: "code", Value: entity.Code}, Attribute{Key: "category", Value: entity.Category})
	keys := make([]string, 0, len(entity.Attributes))
	for key := range entity.Attributes {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	for _, key := range keys {
		attributes = append(attributes, Attribute{Key: key, Value: entity.Attributes[key]})
	}

	dossierLinks := make([]Link, 0, len(links))
	for _, link := range links {
		if link.SourceID == entity.ID {
			dossierLinks = append(dossierLinks, Link{Relation: link.Relation, Name: link.TargetName, Outgoing: true})
			continue
		}
		dossierLinks = append(dossierLinks, Link{Relation: link.Relation, Name: link.SourceName})
	}

	return Dossier{
		Kind:       "Entity",
		Title:      entity.Name,
		Subtitle:   entity.Summary,
		Status:     entity.Status,
		StatusNote: entity.StatusNote,
		Author:     entity.UpdatedBy,
		UpdatedAt:  entity.UpdatedAt,
		Tags:       entity.Tags,
		Attributes: attributes,
		Blocks:     TextBlocks(entity.Description),
		Links:      dossierLinks,
		Comments:   toComments(comments),
	}
}

func toComments(comments []store.Comment) []Comment {
	out := make([]Comment, 0, len(comments))
	for _, c := range comments {
		out = append(out, Comment{Author: c.Author, Body: c.Body, CreatedAt: c.CreatedAt})
	}
	return out
}
