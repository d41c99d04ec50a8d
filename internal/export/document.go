// Package export writes documents and tax results to local files.
package export

import (
	"bytes"
	_ "embed"
	"encoding/json"
	"fmt"
	"io"
	"regexp"
	"strings"
	"sync"

	"github.com/rotisserie/eris"
	"github.com/santhosh-tekuri/jsonschema/v5"

	"github.com/sells-group/tax-intake/internal/model"
)

//go:embed document.schema.json
var documentSchemaJSON []byte

var (
	schemaOnce sync.Once
	schema     *jsonschema.Schema
	schemaErr  error
)

func documentSchema() (*jsonschema.Schema, error) {
	schemaOnce.Do(func() {
		compiler := jsonschema.NewCompiler()
		if err := compiler.AddResource("document.schema.json", bytes.NewReader(documentSchemaJSON)); err != nil {
			schemaErr = eris.Wrap(err, "export: add schema")
			return
		}
		schema, schemaErr = compiler.Compile("document.schema.json")
		if schemaErr != nil {
			schemaErr = eris.Wrap(schemaErr, "export: compile schema")
		}
	})
	return schema, schemaErr
}

// DocumentPayload returns the document as a JSON object without its
// internal file id.
func DocumentPayload(doc model.Document) (map[string]any, error) {
	b, err := json.Marshal(doc)
	if err != nil {
		return nil, eris.Wrap(err, "export: marshal document")
	}
	var payload map[string]any
	if err := json.Unmarshal(b, &payload); err != nil {
		return nil, eris.Wrap(err, "export: decode document")
	}
	delete(payload, "fileId")
	return payload, nil
}

// ValidateDocument checks a payload against the document schema.
func ValidateDocument(payload map[string]any) error {
	s, err := documentSchema()
	if err != nil {
		return err
	}
	if err := s.Validate(payload); err != nil {
		return eris.Wrap(err, "export: document does not match schema")
	}
	return nil
}

// WriteDocumentJSON validates doc and writes it as indented JSON, minus
// the internal file id.
func WriteDocumentJSON(w io.Writer, doc model.Document) error {
	payload, err := DocumentPayload(doc)
	if err != nil {
		return err
	}
	if err := ValidateDocument(payload); err != nil {
		return err
	}

	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	enc.SetEscapeHTML(false)
	if err := enc.Encode(payload); err != nil {
		return eris.Wrap(err, "export: write document")
	}
	return nil
}

var unsafeFileChars = regexp.MustCompile(`[^A-Za-z0-9._-]+`)

// DocumentFileName suggests a download name such as FORM_106_2023.json.
func DocumentFileName(doc model.Document) string {
	parts := []string{doc.Type}
	if doc.TaxYear != "" {
		parts = append(parts, doc.TaxYear)
	}
	name := unsafeFileChars.ReplaceAllString(strings.Join(parts, "_"), "_")
	if name == "" || name == "_" {
		name = "document"
	}
	return fmt.Sprintf("%s.json", name)
}
