package response

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/uran-qa/uran/internal/domain"
)

// Problem represents an RFC7807 problem response with optional custom extensions.
type Problem struct {
	Type     string
	Title    string
	Status   int
	Detail   string
	Instance string
	Ext      map[string]any
}

// Option configures a Problem instance.
type Option func(*Problem)

// WithType sets the problem type URI.
func WithType(t string) Option {
	return func(p *Problem) {
		p.Type = t
	}
}

// WithDetail sets the human-readable detail string.
func WithDetail(detail string) Option {
	return func(p *Problem) {
		p.Detail = detail
	}
}

// WithInstance sets the instance URI for the problem detail.
func WithInstance(instance string) Option {
	return func(p *Problem) {
		p.Instance = instance
	}
}

// WithExtension attaches an arbitrary RFC7807 extension field.
func WithExtension(key string, value any) Option {
	return func(p *Problem) {
		if p.Ext == nil {
			p.Ext = map[string]any{}
		}
		p.Ext[key] = value
	}
}

// New constructs a Problem and applies the provided options.
func New(status int, title string, opts ...Option) Problem {
	p := Problem{
		Status: status,
		Title:  title,
	}
	for _, opt := range opts {
		opt(&p)
	}
	return p
}

// statusForKind maps the domain error taxonomy onto HTTP statuses.
var statusForKind = map[domain.Kind]int{
	domain.KindNotFound:          http.StatusNotFound,
	domain.KindConflict:          http.StatusConflict,
	domain.KindInvalidTransition: http.StatusConflict,
	domain.KindRunLocked:         http.StatusConflict,
	domain.KindInvalidScope:      http.StatusUnprocessableEntity,
	domain.KindForbidden:         http.StatusForbidden,
	domain.KindInvalidReference:  http.StatusUnprocessableEntity,
	domain.KindValidation:        http.StatusBadRequest,
}

// FromError converts an error into a Problem. Domain errors carry their kind
// as an RFC7807 extension; everything else is a 500 with no internals leaked.
func FromError(err error) Problem {
	var de *domain.Error
	if errors.As(err, &de) {
		status, ok := statusForKind[de.Kind]
		if !ok {
			status = http.StatusInternalServerError
		}
		opts := []Option{
			WithDetail(de.Msg),
			WithExtension("kind", string(de.Kind)),
		}
		if de.Entity != "" {
			opts = append(opts, WithExtension("entity", de.Entity))
		}
		return New(status, http.StatusText(status), opts...)
	}
	return New(http.StatusInternalServerError, "internal error")
}

// WriteError maps err to a problem response and writes it.
func WriteError(w http.ResponseWriter, err error) {
	Write(w, FromError(err))
}

// Write serializes and writes the problem response with appropriate headers.
func Write(w http.ResponseWriter, p Problem) {
	if p.Status == 0 {
		p.Status = http.StatusInternalServerError
	}
	body := map[string]any{
		"title":  p.Title,
		"status": p.Status,
	}
	if p.Type != "" {
		body["type"] = p.Type
	}
	if p.Detail != "" {
		body["detail"] = p.Detail
	}
	if p.Instance != "" {
		body["instance"] = p.Instance
	}
	for k, v := range p.Ext {
		if _, exists := body[k]; exists {
			panic(fmt.Sprintf("problem extension %q collides with base field", k))
		}
		body[k] = v
	}
	w.Header().Set("Content-Type", "application/problem+json")
	w.WriteHeader(p.Status)
	_ = json.NewEncoder(w).Encode(body)
}
