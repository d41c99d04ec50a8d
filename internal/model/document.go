// Package model defines the documents, catalog entries and session
// entities exchanged with the tax backend.
package model

import (
	"sort"
	"strconv"
)

// ErrorFormType is the form type the backend assigns to uploads it could
// not classify. Such records carry a reason instead of editable fields.
const ErrorFormType = "ERROR_RECORD"

// NoYearGroup is the year-group key for documents without a tax year.
const NoYearGroup = "no-year-group"

// PlaceholderZero is the value the backend uses for unfilled amounts.
const PlaceholderZero = "0.00"

// Direct document attribute names, as they appear on the wire.
const (
	AttrDocumentType     = "documentType"
	AttrType             = "type"
	AttrTaxYear          = "taxYear"
	AttrClientName       = "clientName"
	AttrOrganizationName = "organizationName"
	AttrClientID         = "clientIdentificationNumber"
	AttrFileName         = "fileName"
	AttrNoteText         = "noteText"
	AttrReasonText       = "reasonText"
)

// Repeating item group names.
const (
	GroupChildren      = "children"
	GroupGenericFields = "genericFields"
)

// Document is one uploaded or synthetically created tax form.
type Document struct {
	FileID                     string           `json:"fileId"`
	DocumentType               string           `json:"documentType"`
	Type                       string           `json:"type"`
	TaxYear                    string           `json:"taxYear,omitempty"`
	ClientName                 string           `json:"clientName,omitempty"`
	OrganizationName           string           `json:"organizationName,omitempty"`
	ClientIdentificationNumber string           `json:"clientIdentificationNumber,omitempty"`
	FileName                   string           `json:"fileName,omitempty"`
	NoteText                   string           `json:"noteText,omitempty"`
	ReasonText                 string           `json:"reasonText,omitempty"`
	Fields                     map[string]Value `json:"fields,omitempty"`
	Children                   []Child          `json:"children,omitempty"`
	GenericFields              []GenericField   `json:"genericFields,omitempty"`
}

// IsError reports whether the document is an error record.
func (d *Document) IsError() bool {
	return d.Type == ErrorFormType
}

// YearKey returns the year-group key the document belongs to.
func (d *Document) YearKey() string {
	if d.IsError() || d.TaxYear == "" {
		return NoYearGroup
	}
	return d.TaxYear
}

// TaxYearInt parses the tax year; ok is false when absent or malformed.
func (d *Document) TaxYearInt() (int, bool) {
	y, err := strconv.Atoi(d.TaxYear)
	if err != nil {
		return 0, false
	}
	return y, true
}

// Clone returns a deep copy.
func (d Document) Clone() Document {
	out := d
	if d.Fields != nil {
		out.Fields = make(map[string]Value, len(d.Fields))
		for k, v := range d.Fields {
			out.Fields[k] = v
		}
	}
	if d.Children != nil {
		out.Children = append([]Child(nil), d.Children...)
	}
	if d.GenericFields != nil {
		out.GenericFields = append([]GenericField(nil), d.GenericFields...)
	}
	return out
}

// CloneDocuments deep-copies a document list.
func CloneDocuments(docs []Document) []Document {
	if docs == nil {
		return nil
	}
	out := make([]Document, len(docs))
	for i := range docs {
		out[i] = docs[i].Clone()
	}
	return out
}

// IsAttribute reports whether name is a direct document attribute.
func IsAttribute(name string) bool {
	switch name {
	case AttrDocumentType, AttrType, AttrTaxYear, AttrClientName, AttrOrganizationName,
		AttrClientID, AttrFileName, AttrNoteText, AttrReasonText:
		return true
	}
	return false
}

// Attribute returns a direct attribute by wire name.
func (d *Document) Attribute(name string) (string, bool) {
	switch name {
	case AttrDocumentType:
		return d.DocumentType, true
	case AttrType:
		return d.Type, true
	case AttrTaxYear:
		return d.TaxYear, true
	case AttrClientName:
		return d.ClientName, true
	case AttrOrganizationName:
		return d.OrganizationName, true
	case AttrClientID:
		return d.ClientIdentificationNumber, true
	case AttrFileName:
		return d.FileName, true
	case AttrNoteText:
		return d.NoteText, true
	case AttrReasonText:
		return d.ReasonText, true
	}
	return "", false
}

// SetAttribute writes a direct attribute by wire name. It returns false
// when name is not an attribute.
func (d *Document) SetAttribute(name, value string) bool {
	switch name {
	case AttrDocumentType:
		d.DocumentType = value
	case AttrType:
		d.Type = value
	case AttrTaxYear:
		d.TaxYear = value
	case AttrClientName:
		d.ClientName = value
	case AttrOrganizationName:
		d.OrganizationName = value
	case AttrClientID:
		d.ClientIdentificationNumber = value
	case AttrFileName:
		d.FileName = value
	case AttrNoteText:
		d.NoteText = value
	case AttrReasonText:
		d.ReasonText = value
	default:
		return false
	}
	return true
}

// SortedFieldNames returns the keys of Fields in lexical order.
func (d *Document) SortedFieldNames() []string {
	names := make([]string, 0, len(d.Fields))
	for k := range d.Fields {
		names = append(names, k)
	}
	sort.Strings(names)
	return names
}

// FindDocument returns the index of the document with fileID, or -1.
func FindDocument(docs []Document, fileID string) int {
	for i := range docs {
		if docs[i].FileID == fileID {
			return i
		}
	}
	return -1
}
