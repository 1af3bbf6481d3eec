package indexer

import (
	"fmt"

	"github.com/blevesearch/bleve/v2"
	"github.com/blevesearch/bleve/v2/analysis/analyzer/custom"
	"github.com/blevesearch/bleve/v2/analysis/analyzer/keyword"
	"github.com/blevesearch/bleve/v2/analysis/token/lowercase"
	"github.com/blevesearch/bleve/v2/analysis/tokenizer/single"
	"github.com/blevesearch/bleve/v2/analysis/tokenizer/unicode"
	"github.com/blevesearch/bleve/v2/mapping"
)

const (
	textCIAnalyzer    = "text_ci"
	textCSAnalyzer    = "text_cs"
	keywordCIAnalyzer = "keyword_ci"
)

func addAnalyzers(indexMapping *mapping.IndexMappingImpl) error {
	err := indexMapping.AddCustomAnalyzer(textCIAnalyzer, map[string]interface{}{
		"type":          custom.Name,
		"tokenizer":     unicode.Name,
		"token_filters": []string{lowercase.Name},
	})
	if err != nil {
		return err
	}
	err = indexMapping.AddCustomAnalyzer(textCSAnalyzer, map[string]interface{}{
		"type":      custom.Name,
		"tokenizer": unicode.Name,
	})
	if err != nil {
		return err
	}
	return indexMapping.AddCustomAnalyzer(keywordCIAnalyzer, map[string]interface{}{
		"type":          custom.Name,
		"tokenizer":     single.Name,
		"token_filters": []string{lowercase.Name},
	})
}

// identityMapping maps the fields of the composite document key. These are
// always matched exactly, regardless of the index case sensitivity.
func identityMapping() *mapping.DocumentMapping {
	exactStringMapping := bleve.NewTextFieldMapping()
	exactStringMapping.Analyzer = keyword.Name
	exactStringMapping.IncludeInAll = false
	exactStringMapping.IncludeTermVectors = false

	docMapping := bleve.NewDocumentMapping()
	docMapping.AddFieldMappingsAt(FieldClass, exactStringMapping)
	docMapping.AddFieldMappingsAt(FieldPK, exactStringMapping)
	docMapping.AddFieldMappingsAt(FieldLang, exactStringMapping)
	docMapping.AddFieldMappingsAt(FieldURL, bleve.NewTextFieldMapping())
	return docMapping
}

func fieldMapping(ft FieldType, textAnalyzer, keywordAnalyzer string) *mapping.FieldMapping {
	fm := bleve.NewTextFieldMapping()
	switch ft {
	case FieldKeyword:
		fm.Analyzer = keywordAnalyzer
		fm.IncludeTermVectors = false
	case FieldText:
		fm.Analyzer = textAnalyzer
	case FieldUnStored:
		fm.Analyzer = textAnalyzer
		fm.Store = false
	case FieldUnIndexed, FieldBinary:
		fm.Index = false
		fm.IncludeInAll = false
		fm.IncludeTermVectors = false
		fm.DocValues = false
	}
	return fm
}

// CreateMapping creates an index mapping with one document mapping
// per record type. Documents are classified by their `class` field.
func CreateMapping(caseSensitive bool, models []*IndexConfig) (*mapping.IndexMappingImpl, error) {
	indexMapping := bleve.NewIndexMapping()
	if err := addAnalyzers(indexMapping); err != nil {
		return nil, fmt.Errorf("failed to create index mapping: %w", err)
	}
	textAnalyzer, keywordAnalyzer := textCSAnalyzer, keyword.Name
	if !caseSensitive {
		textAnalyzer, keywordAnalyzer = textCIAnalyzer, keywordCIAnalyzer
	}
	indexMapping.DefaultAnalyzer = textAnalyzer
	indexMapping.TypeField = FieldClass
	indexMapping.DefaultMapping = identityMapping()

	for _, model := range models {
		docMapping := identityMapping()
		for _, spec := range model.Attributes {
			docMapping.AddFieldMappingsAt(
				spec.FieldName, fieldMapping(spec.Type(), textAnalyzer, keywordAnalyzer))
		}
		indexMapping.AddDocumentMapping(model.RecordType, docMapping)
	}
	return indexMapping, nil
}
