package history

import (
	"fmt"
	"log"
	"os"
	"strconv"

	"github.com/ChamsBouzaiene/autogoal/internal/engine"
	"github.com/blevesearch/bleve/v2"
	"github.com/blevesearch/bleve/v2/analysis/analyzer/keyword"
	"github.com/blevesearch/bleve/v2/analysis/analyzer/standard"
	"github.com/blevesearch/bleve/v2/mapping"
	"github.com/blevesearch/bleve/v2/search/query"
)

// SearchHit is one matching event.
type SearchHit struct {
	RunID string
	Seq   int
	Kind  engine.EventKind
	Value string
	Score float64
}

// Index provides full-text search over task and result text.
type Index struct {
	index bleve.Index
}

// OpenIndex creates or opens the index at path. An empty path keeps the index
// in memory. A corrupted index is deleted and recreated.
func OpenIndex(path string) (*Index, error) {
	if path == "" {
		idx, err := bleve.NewMemOnly(buildIndexMapping())
		if err != nil {
			return nil, fmt.Errorf("failed to create history index: %w", err)
		}
		return &Index{index: idx}, nil
	}

	idx, err := bleve.Open(path)
	if err == bleve.ErrorIndexPathDoesNotExist {
		idx, err = bleve.New(path, buildIndexMapping())
		if err != nil {
			return nil, fmt.Errorf("failed to create history index: %w", err)
		}
	} else if err != nil {
		log.Printf("⚠️  History index appears corrupted (error: %v), recreating...", err)
		if idx != nil {
			idx.Close()
		}
		if err := os.RemoveAll(path); err != nil {
			return nil, fmt.Errorf("failed to remove corrupted index: %w", err)
		}
		idx, err = bleve.New(path, buildIndexMapping())
		if err != nil {
			return nil, fmt.Errorf("failed to recreate history index: %w", err)
		}
		log.Println("✅ History index recreated")
	}
	return &Index{index: idx}, nil
}

func buildIndexMapping() mapping.IndexMapping {
	indexMapping := bleve.NewIndexMapping()
	doc := bleve.NewDocumentMapping()

	for _, name := range []string{"run_id", "kind"} {
		f := bleve.NewTextFieldMapping()
		f.Analyzer = keyword.Name
		f.Store = true
		doc.AddFieldMappingsAt(name, f)
	}

	seq := bleve.NewNumericFieldMapping()
	seq.Store = true
	doc.AddFieldMappingsAt("seq", seq)

	value := bleve.NewTextFieldMapping()
	value.Analyzer = standard.Name
	value.Store = true
	doc.AddFieldMappingsAt("value", value)

	info := bleve.NewTextFieldMapping()
	info.Analyzer = standard.Name
	info.Store = false
	doc.AddFieldMappingsAt("info", info)

	indexMapping.DefaultMapping = doc
	return indexMapping
}

// Searchable reports whether an event carries task or result text worth
// indexing.
func Searchable(ev engine.Event) bool {
	switch ev.Kind {
	case engine.KindGoal, engine.KindTask, engine.KindAction:
		return ev.Value != ""
	}
	return false
}

func docID(runID string, seq int) string {
	return runID + "/" + strconv.Itoa(seq)
}

// Add indexes one event.
func (x *Index) Add(runID string, seq int, ev engine.Event) error {
	doc := map[string]any{
		"run_id": runID,
		"seq":    float64(seq),
		"kind":   string(ev.Kind),
		"value":  ev.Value,
		"info":   ev.Info,
	}
	return x.index.Index(docID(runID, seq), doc)
}

// Search returns the top k events matching text, optionally restricted to one
// run. k <= 0 means 20.
func (x *Index) Search(text, runID string, k int) ([]SearchHit, error) {
	if k <= 0 {
		k = 20
	}
	value := bleve.NewMatchQuery(text)
	value.SetField("value")
	info := bleve.NewMatchQuery(text)
	info.SetField("info")
	var q query.Query = bleve.NewDisjunctionQuery(value, info)

	if runID != "" {
		run := bleve.NewTermQuery(runID)
		run.SetField("run_id")
		q = bleve.NewConjunctionQuery(q, run)
	}

	req := bleve.NewSearchRequest(q)
	req.Size = k
	req.Fields = []string{"run_id", "seq", "kind", "value"}

	res, err := x.index.Search(req)
	if err != nil {
		return nil, fmt.Errorf("history search failed: %w", err)
	}

	hits := make([]SearchHit, 0, len(res.Hits))
	for _, h := range res.Hits {
		hit := SearchHit{Score: h.Score}
		if v, ok := h.Fields["run_id"].(string); ok {
			hit.RunID = v
		}
		if v, ok := h.Fields["seq"].(float64); ok {
			hit.Seq = int(v)
		}
		if v, ok := h.Fields["kind"].(string); ok {
			hit.Kind = engine.EventKind(v)
		}
		if v, ok := h.Fields["value"].(string); ok {
			hit.Value = v
		}
		hits = append(hits, hit)
	}
	return hits, nil
}

// Close closes the index.
func (x *Index) Close() error {
	return x.index.Close()
}
