// Copyright 2025 Poiesic Systems
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package storage

import (
	"fmt"
	"slices"
	"time"

	"github.com/mus-format/mus-go/ord"
	"github.com/mus-format/mus-go/raw"
	"github.com/mus-format/mus-go/varint"
	"github.com/poiesic/mimir/core"
)

// Record format versions. Bump when a record layout changes.
const (
	documentFormat     byte = 1
	topicFormat        byte = 1
	relationshipFormat byte = 1
)

// MarshalID serializes an ID to bytes.
func MarshalID(id core.ID) []byte {
	buf := make([]byte, varint.Uint64.Size(uint64(id)))
	varint.Uint64.Marshal(uint64(id), buf)
	return buf
}

// UnmarshalID deserializes an ID from bytes.
func UnmarshalID(data []byte) (core.ID, error) {
	if len(data) == 0 {
		return 0, ErrTruncatedData
	}
	v, _, err := varint.Uint64.Unmarshal(data)
	if err != nil {
		return 0, fmt.Errorf("%w: id: %w", ErrSerializationFailed, err)
	}
	return core.ID(v), nil
}

// MarshalDocument serializes a Document to bytes.
func MarshalDocument(doc *core.Document) []byte {
	w := &writer{bs: make([]byte, 0, 256+len(doc.Title)+len(doc.Body)+len(doc.Summary)+4*len(doc.Vector))}
	w.byte(documentFormat)
	w.id(doc.Id)
	w.string(doc.Title)
	w.string(doc.Body)
	w.string(doc.Summary)
	w.int(len(doc.Tags))
	for _, tag := range doc.Tags {
		w.string(tag)
	}
	w.id(doc.TopicId)
	w.int(len(doc.Vector))
	for _, f := range doc.Vector {
		w.float32(f)
	}
	w.bool(doc.Embedding != nil)
	if doc.Embedding != nil {
		w.string(doc.Embedding.ModelID)
		w.string(doc.Embedding.ModelVersion)
		w.string(doc.Embedding.Fingerprint)
		w.time(doc.Embedding.ComputedAt)
	}
	w.float64(doc.Confidence)
	w.time(doc.InsertedAt)
	w.time(doc.UpdatedAt)
	return w.bs
}

// UnmarshalDocument deserializes a Document from bytes.
func UnmarshalDocument(data []byte) (*core.Document, error) {
	r := &reader{bs: data}
	if err := r.format(documentFormat); err != nil {
		return nil, err
	}
	doc := &core.Document{}
	doc.Id = r.id()
	doc.Title = r.string()
	doc.Body = r.string()
	doc.Summary = r.string()
	if n := r.length(); n > 0 {
		doc.Tags = make([]string, n)
		for i := range doc.Tags {
			doc.Tags[i] = r.string()
		}
	}
	doc.TopicId = r.id()
	if n := r.length(); n > 0 {
		doc.Vector = make([]float32, n)
		for i := range doc.Vector {
			doc.Vector[i] = r.float32()
		}
	}
	if r.bool() {
		doc.Embedding = &core.EmbeddingMeta{
			ModelID:      r.string(),
			ModelVersion: r.string(),
			Fingerprint:  r.string(),
			ComputedAt:   r.time(),
		}
	}
	doc.Confidence = r.float64()
	doc.InsertedAt = r.time()
	doc.UpdatedAt = r.time()
	if r.err != nil {
		return nil, fmt.Errorf("%w: document: %w", ErrSerializationFailed, r.err)
	}
	return doc, nil
}

// MarshalTopic serializes a Topic to bytes.
func MarshalTopic(topic *core.Topic) []byte {
	w := &writer{bs: make([]byte, 0, 64+len(topic.Name)+len(topic.Description))}
	w.byte(topicFormat)
	w.id(topic.Id)
	w.string(topic.Name)
	w.string(topic.Description)
	w.id(topic.ParentId)
	w.time(topic.InsertedAt)
	w.time(topic.UpdatedAt)
	return w.bs
}

// UnmarshalTopic deserializes a Topic from bytes.
func UnmarshalTopic(data []byte) (*core.Topic, error) {
	r := &reader{bs: data}
	if err := r.format(topicFormat); err != nil {
		return nil, err
	}
	topic := &core.Topic{
		Id:          r.id(),
		Name:        r.string(),
		Description: r.string(),
		ParentId:    r.id(),
		InsertedAt:  r.time(),
		UpdatedAt:   r.time(),
	}
	if r.err != nil {
		return nil, fmt.Errorf("%w: topic: %w", ErrSerializationFailed, r.err)
	}
	return topic, nil
}

// MarshalRelationship serializes a Relationship to bytes.
func MarshalRelationship(rel *core.Relationship) []byte {
	w := &writer{bs: make([]byte, 0, 64+len(rel.Kind))}
	w.byte(relationshipFormat)
	w.id(rel.Id)
	w.string(rel.Kind)
	w.int(int(rel.From.Kind))
	w.id(rel.From.Id)
	w.int(int(rel.To.Kind))
	w.id(rel.To.Id)
	w.float64(rel.Weight)
	w.bool(rel.Bidirectional)
	w.time(rel.InsertedAt)
	return w.bs
}

// UnmarshalRelationship deserializes a Relationship from bytes.
func UnmarshalRelationship(data []byte) (*core.Relationship, error) {
	r := &reader{bs: data}
	if err := r.format(relationshipFormat); err != nil {
		return nil, err
	}
	rel := &core.Relationship{}
	rel.Id = r.id()
	rel.Kind = r.string()
	rel.From.Kind = core.EntityKind(r.int())
	rel.From.Id = r.id()
	rel.To.Kind = core.EntityKind(r.int())
	rel.To.Id = r.id()
	rel.Weight = r.float64()
	rel.Bidirectional = r.bool()
	rel.InsertedAt = r.time()
	if r.err != nil {
		return nil, fmt.Errorf("%w: relationship: %w", ErrSerializationFailed, r.err)
	}
	return rel, nil
}

// writer appends mus-encoded fields to a byte slice.
type writer struct {
	bs []byte
}

func (w *writer) extend(n int) []byte {
	w.bs = slices.Grow(w.bs, n)
	start := len(w.bs)
	w.bs = w.bs[:start+n]
	return w.bs[start:]
}

func (w *writer) byte(b byte) {
	w.bs = append(w.bs, b)
}

func (w *writer) id(id core.ID) {
	v := uint64(id)
	varint.Uint64.Marshal(v, w.extend(varint.Uint64.Size(v)))
}

func (w *writer) int(v int) {
	varint.Int.Marshal(v, w.extend(varint.Int.Size(v)))
}

func (w *writer) int64(v int64) {
	varint.Int64.Marshal(v, w.extend(varint.Int64.Size(v)))
}

func (w *writer) string(s string) {
	ord.String.Marshal(s, w.extend(ord.String.Size(s)))
}

func (w *writer) bool(b bool) {
	ord.Bool.Marshal(b, w.extend(ord.Bool.Size(b)))
}

func (w *writer) float32(f float32) {
	raw.Float32.Marshal(f, w.extend(raw.Float32.Size(f)))
}

func (w *writer) float64(f float64) {
	raw.Float64.Marshal(f, w.extend(raw.Float64.Size(f)))
}

// time stores microseconds since the epoch; the zero time is stored as 0.
func (w *writer) time(t time.Time) {
	if t.IsZero() {
		w.int64(0)
		return
	}
	w.int64(t.UnixMicro())
}

// reader consumes mus-encoded fields. The first error sticks and every
// later read returns a zero value.
type reader struct {
	bs  []byte
	err error
}

func (r *reader) format(want byte) error {
	if len(r.bs) == 0 {
		return ErrTruncatedData
	}
	if r.bs[0] != want {
		return fmt.Errorf("%w: unknown record format %d", ErrSerializationFailed, r.bs[0])
	}
	r.bs = r.bs[1:]
	return nil
}

func (r *reader) ok() bool {
	if r.err != nil {
		return false
	}
	if len(r.bs) == 0 {
		r.err = ErrTruncatedData
		return false
	}
	return true
}

func (r *reader) advance(n int, err error) bool {
	if err != nil {
		r.err = err
		return false
	}
	r.bs = r.bs[n:]
	return true
}

func (r *reader) id() core.ID {
	if !r.ok() {
		return 0
	}
	v, n, err := varint.Uint64.Unmarshal(r.bs)
	if !r.advance(n, err) {
		return 0
	}
	return core.ID(v)
}

func (r *reader) int() int {
	if !r.ok() {
		return 0
	}
	v, n, err := varint.Int.Unmarshal(r.bs)
	if !r.advance(n, err) {
		return 0
	}
	return v
}

// length reads a collection length and rejects values the remaining input cannot hold.
func (r *reader) length() int {
	n := r.int()
	if r.err == nil && (n < 0 || n > len(r.bs)) {
		r.err = fmt.Errorf("%w: length %d", ErrTruncatedData, n)
		return 0
	}
	return n
}

func (r *reader) int64() int64 {
	if !r.ok() {
		return 0
	}
	v, n, err := varint.Int64.Unmarshal(r.bs)
	if !r.advance(n, err) {
		return 0
	}
	return v
}

func (r *reader) string() string {
	if !r.ok() {
		return ""
	}
	v, n, err := ord.String.Unmarshal(r.bs)
	if !r.advance(n, err) {
		return ""
	}
	return v
}

func (r *reader) bool() bool {
	if !r.ok() {
		return false
	}
	v, n, err := ord.Bool.Unmarshal(r.bs)
	if !r.advance(n, err) {
		return false
	}
	return v
}

func (r *reader) float32() float32 {
	if !r.ok() {
		return 0
	}
	v, n, err := raw.Float32.Unmarshal(r.bs)
	if !r.advance(n, err) {
		return 0
	}
	return v
}

func (r *reader) float64() float64 {
	if !r.ok() {
		return 0
	}
	v, n, err := raw.Float64.Unmarshal(r.bs)
	if !r.advance(n, err) {
		return 0
	}
	return v
}

func (r *reader) time() time.Time {
	v := r.int64()
	if v == 0 {
		return time.Time{}
	}
	return time.UnixMicro(v).UTC()
}
