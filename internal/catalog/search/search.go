package search

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/elastic/go-elasticsearch/v9"

	"github.com/Skotchmaster/retro_games/internal/models"
)

const DefaultIndex = "games"

var ErrBadResponse = errors.New("search: malformed response")

// Document is the indexed form of a game.
type Document struct {
	ID          uint   `json:"id"`
	Title       string `json:"title"`
	Slug        string `json:"slug"`
	Description string `json:"description"`
	Console     string `json:"console"`
	IsActive    bool   `json:"is_active"`
}

func NewDocument(g models.Game) Document {
	return Document{
		ID:          g.ID,
		Title:       g.Title,
		Slug:        g.Slug,
		Description: g.Description,
		Console:     g.Console,
		IsActive:    g.IsActive,
	}
}

type Result struct {
	Total int64
	IDs   []uint
}

type Elastic struct {
	Client *elasticsearch.Client
	Index  string
}

func New(client *elasticsearch.Client, index string) *Elastic {
	if index == "" {
		index = DefaultIndex
	}
	return &Elastic{Client: client, Index: index}
}

// Search runs a fuzzy multi_match over active games.
func (e *Elastic) Search(ctx context.Context, query string, from, size int) (Result, error) {
	body := map[string]any{
		"query": map[string]any{
			"bool": map[string]any{
				"must": map[string]any{
					"multi_match": map[string]any{
						"query":     query,
						"fields":    []string{"title^2", "description", "console"},
						"fuzziness": "AUTO",
					},
				},
				"filter": map[string]any{
					"term": map[string]any{"is_active": true},
				},
			},
		},
		"_source": []string{"id"},
		"from":    from,
		"size":    size,
	}

	var buf bytes.Buffer
	if err := json.NewEncoder(&buf).Encode(body); err != nil {
		return Result{}, fmt.Errorf("search: encode query: %w", err)
	}

	res, err := e.Client.Search(
		e.Client.Search.WithContext(ctx),
		e.Client.Search.WithIndex(e.Index),
		e.Client.Search.WithBody(&buf),
	)
	if err != nil {
		return Result{}, fmt.Errorf("search: %w", err)
	}
	defer res.Body.Close()
	if res.IsError() {
		return Result{}, responseError("search", res.Status(), res.Body)
	}

	return decodeResult(res.Body)
}

func decodeResult(r io.Reader) (Result, error) {
	var payload struct {
		Hits *struct {
			Total struct {
				Value int64 `json:"value"`
			} `json:"total"`
			Hits []struct {
				ID     string `json:"_id"`
				Source struct {
					ID uint `json:"id"`
				} `json:"_source"`
			} `json:"hits"`
		} `json:"hits"`
	}
	if err := json.NewDecoder(r).Decode(&payload); err != nil {
		return Result{}, fmt.Errorf("%w: %v", ErrBadResponse, err)
	}
	if payload.Hits == nil {
		return Result{}, fmt.Errorf("%w: no hits", ErrBadResponse)
	}

	out := Result{Total: payload.Hits.Total.Value, IDs: make([]uint, 0, len(payload.Hits.Hits))}
	for _, h := range payload.Hits.Hits {
		id := h.Source.ID
		if id == 0 {
			n, err := strconv.ParseUint(h.ID, 10, 64)
			if err != nil {
				return Result{}, fmt.Errorf("%w: hit id %q", ErrBadResponse, h.ID)
			}
			id = uint(n)
		}
		out.IDs = append(out.IDs, id)
	}
	return out, nil
}

func (e *Elastic) IndexGame(ctx context.Context, g models.Game) error {
	doc, err := json.Marshal(NewDocument(g))
	if err != nil {
		return fmt.Errorf("index: encode: %w", err)
	}

	res, err := e.Client.Index(
		e.Index,
		bytes.NewReader(doc),
		e.Client.Index.WithContext(ctx),
		e.Client.Index.WithDocumentID(strconv.FormatUint(uint64(g.ID), 10)),
		e.Client.Index.WithRefresh("wait_for"),
	)
	if err != nil {
		return fmt.Errorf("index: %w", err)
	}
	defer res.Body.Close()
	if res.IsError() {
		return responseError("index", res.Status(), res.Body)
	}
	return nil
}

// DeleteGame ignores documents that were never indexed.
func (e *Elastic) DeleteGame(ctx context.Context, id uint) error {
	res, err := e.Client.Delete(
		e.Index,
		strconv.FormatUint(uint64(id), 10),
		e.Client.Delete.WithContext(ctx),
	)
	if err != nil {
		return fmt.Errorf("delete: %w", err)
	}
	defer res.Body.Close()
	if res.StatusCode == 404 {
		return nil
	}
	if res.IsError() {
		return responseError("delete", res.Status(), res.Body)
	}
	return nil
}

func responseError(op, status string, body io.Reader) error {
	b, _ := io.ReadAll(io.LimitReader(body, 1024))
	return fmt.Errorf("%s: elasticsearch %s: %s", op, status, strings.TrimSpace(string(b)))
}

const indexMapping = `{
  "mappings": {
    "properties": {
      "id":          {"type": "long"},
      "title":       {"type": "text"},
      "slug":        {"type": "keyword"},
      "description": {"type": "text"},
      "console":     {"type": "text", "fields": {"raw": {"type": "keyword"}}},
      "is_active":   {"type": "boolean"}
    }
  }
}`

// EnsureIndex creates the index with its mapping when it does not exist yet.
func (e *Elastic) EnsureIndex(ctx context.Context) error {
	res, err := e.Client.Indices.Exists([]string{e.Index}, e.Client.Indices.Exists.WithContext(ctx))
	if err != nil {
		return fmt.Errorf("index exists: %w", err)
	}
	res.Body.Close()
	if res.StatusCode == 200 {
		return nil
	}

	res, err = e.Client.Indices.Create(
		e.Index,
		e.Client.Indices.Create.WithContext(ctx),
		e.Client.Indices.Create.WithBody(strings.NewReader(indexMapping)),
	)
	if err != nil {
		return fmt.Errorf("create index: %w", err)
	}
	defer res.Body.Close()
	if res.IsError() {
		return responseError("create index", res.Status(), res.Body)
	}
	return nil
}
