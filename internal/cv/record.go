// Package cv turns CV documents into indexed records.
package cv

import (
	"path/filepath"
	"time"
)

// Record is everything the store keeps about one CV. Filename is the unique
// key; Embedding is the vector indexed for recall.
type Record struct {
	Filename        string
	RawText         string
	CleanedText     string
	Embedding       []float32
	Contact         *Contact
	Sections        map[string]string
	Chunks          []string
	ChunkEmbeddings []ChunkEmbedding
	ChunkCount      int
	Summary         string
	AddedAt         time.Time
}

// Contact holds the first email and phone number found in a CV. Nil fields
// mean nothing was found.
type Contact struct {
	Email *string
	Phone *string
}

type ChunkEmbedding struct {
	Text      string
	Embedding []float32
}

// Source is a CV document waiting to be ingested.
type Source struct {
	Path     string
	Filename string
}

func NewSource(path string) *Source {
	return &Source{Path: path, Filename: filepath.Base(path)}
}

// WithSummary returns a shallow copy of r carrying summary.
func (r *Record) WithSummary(summary string) *Record {
	cp := *r
	cp.Summary = summary
	return &cp
}

func (c *Contact) EmailOrEmpty() string {
	if c == nil || c.Email == nil {
		return ""
	}
	return *c.Email
}

func (c *Contact) PhoneOrEmpty() string {
	if c == nil || c.Phone == nil {
		return ""
	}
	return *c.Phone
}
