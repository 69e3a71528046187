// Package forms defines the target form templates that document analyses map onto.
package forms

import (
	"fmt"
	"os"
	"sort"
	"strings"
	"sync"

	"gopkg.in/yaml.v3"
)

// Field describes a single entry on a form template.
type Field struct {
	Key      string `json:"key" yaml:"key"`
	Label    string `json:"label" yaml:"label"`
	Required bool   `json:"required,omitempty" yaml:"required,omitempty"`
	Hint     string `json:"hint,omitempty" yaml:"hint,omitempty"`
}

// Form is a template that extracted fields are filled into.
type Form struct {
	ID            string   `json:"id" yaml:"id"`
	Title         string   `json:"title" yaml:"title"`
	Description   string   `json:"description,omitempty" yaml:"description,omitempty"`
	DocumentTypes []string `json:"document_types,omitempty" yaml:"document_types,omitempty"`
	Fields        []Field  `json:"fields" yaml:"fields"`
}

// Validate ensures the form is structurally sound.
func (f Form) Validate() error {
	if strings.TrimSpace(f.ID) == "" {
		return fmt.Errorf("form id is required")
	}
	if strings.TrimSpace(f.Title) == "" {
		return fmt.Errorf("form %q: title is required", f.ID)
	}
	if len(f.Fields) == 0 {
		return fmt.Errorf("form %q: at least one field is required", f.ID)
	}
	seen := map[string]struct{}{}
	for i, field := range f.Fields {
		if strings.TrimSpace(field.Key) == "" {
			return fmt.Errorf("form %q: field %d: key is required", f.ID, i)
		}
		if _, ok := seen[field.Key]; ok {
			return fmt.Errorf("form %q: field %q defined multiple times", f.ID, field.Key)
		}
		seen[field.Key] = struct{}{}
	}
	return nil
}

// FieldKeys returns the form's field keys in declaration order.
func (f Form) FieldKeys() []string {
	keys := make([]string, len(f.Fields))
	for i, field := range f.Fields {
		keys[i] = field.Key
	}
	return keys
}

// Registry holds the known form templates. Built-in templates are always
// present; an optional registry file can replace them or add new ones.
type Registry struct {
	mu    sync.RWMutex
	forms map[string]Form
	order []string
}

// registryFile is the on-disk shape of a form registry override.
type registryFile struct {
	Forms []Form `yaml:"forms"`
}

// NewRegistry returns a registry seeded with the built-in templates.
func NewRegistry() *Registry {
	r := &Registry{forms: make(map[string]Form)}
	for _, f := range builtinForms() {
		r.forms[f.ID] = f
		r.order = append(r.order, f.ID)
	}
	return r
}

// LoadFile merges templates from a YAML registry file. A missing file is not
// an error; the built-ins stay in effect.
func (r *Registry) LoadFile(path string) error {
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("read form registry: %w", err)
	}

	var file registryFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return fmt.Errorf("decode form registry: %w", err)
	}
	for _, f := range file.Forms {
		if err := f.Validate(); err != nil {
			return err
		}
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	for _, f := range file.Forms {
		if _, exists := r.forms[f.ID]; !exists {
			r.order = append(r.order, f.ID)
		}
		r.forms[f.ID] = f
	}
	return nil
}

// Get returns the form with the given id.
func (r *Registry) Get(id string) (Form, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	f, ok := r.forms[id]
	return f, ok
}

// List returns all forms, built-ins first in their canonical order, then
// registry-file additions in load order.
func (r *Registry) List() []Form {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Form, 0, len(r.order))
	for _, id := range r.order {
		out = append(out, r.forms[id])
	}
	return out
}

// ForDocumentType returns the first form that lists the given document type.
func (r *Registry) ForDocumentType(docType string) (Form, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, id := range r.order {
		f := r.forms[id]
		for _, dt := range f.DocumentTypes {
			if dt == docType {
				return f, true
			}
		}
	}
	return Form{}, false
}

// OrderedColumns returns the column order for exporting extracted fields
// against a form: the form's own keys first, then any extra extracted keys
// alphabetically. An unknown form id yields all keys alphabetically.
func (r *Registry) OrderedColumns(formID string, fields map[string]string) []string {
	form, ok := r.Get(formID)
	if !ok {
		extras := make([]string, 0, len(fields))
		for k := range fields {
			extras = append(extras, k)
		}
		sort.Strings(extras)
		return extras
	}

	columns := form.FieldKeys()
	known := make(map[string]struct{}, len(columns))
	for _, k := range columns {
		known[k] = struct{}{}
	}

	var extras []string
	for k := range fields {
		if _, ok := known[k]; !ok {
			extras = append(extras, k)
		}
	}
	sort.Strings(extras)
	return append(columns, extras...)
}

func builtinForms() []Form {
	return []Form{
		{
			ID:            "visa_application",
			Title:         "Visa Application",
			Description:   "Entry visa application details",
			DocumentTypes: []string{"passport", "visa"},
			Fields: []Field{
				{Key: "full_name", Label: "Full Name", Required: true},
				{Key: "passport_number", Label: "Passport Number", Required: true},
				{Key: "nationality", Label: "Nationality", Required: true},
				{Key: "date_of_birth", Label: "Date of Birth", Required: true},
				{Key: "visa_type", Label: "Visa Type"},
				{Key: "entry_date", Label: "Intended Entry Date"},
				{Key: "exit_date", Label: "Intended Exit Date"},
				{Key: "sponsor", Label: "Sponsor"},
			},
		},
		{
			ID:            "financial_declaration",
			Title:         "Financial Declaration",
			Description:   "Declaration of assets and liabilities",
			DocumentTypes: []string{"financial"},
			Fields: []Field{
				{Key: "full_name", Label: "Full Name", Required: true},
				{Key: "declaration_date", Label: "Declaration Date"},
				{Key: "total_assets", Label: "Total Assets"},
				{Key: "total_liabilities", Label: "Total Liabilities"},
				{Key: "currency", Label: "Currency"},
				{Key: "source_of_funds", Label: "Source of Funds"},
			},
		},
		{
			ID:            "personal_information",
			Title:         "Personal Information",
			Description:   "General personal details",
			DocumentTypes: []string{"personal", "other"},
			Fields: []Field{
				{Key: "full_name", Label: "Full Name", Required: true},
				{Key: "date_of_birth", Label: "Date of Birth"},
				{Key: "nationality", Label: "Nationality"},
				{Key: "id_number", Label: "ID Number"},
				{Key: "address", Label: "Address"},
				{Key: "phone", Label: "Phone"},
				{Key: "email", Label: "Email"},
			},
		},
		{
			ID:            "employment_contract",
			Title:         "Employment Contract",
			Description:   "Employment agreement summary",
			DocumentTypes: []string{"contract"},
			Fields: []Field{
				{Key: "employer", Label: "Employer", Required: true},
				{Key: "employee", Label: "Employee", Required: true},
				{Key: "position", Label: "Position"},
				{Key: "start_date", Label: "Start Date"},
				{Key: "salary", Label: "Salary"},
				{Key: "contract_type", Label: "Contract Type"},
				{Key: "notice_period", Label: "Notice Period"},
			},
		},
		{
			ID:            "bank_statement",
			Title:         "Bank Statement",
			Description:   "Bank statement summary",
			DocumentTypes: []string{"financial"},
			Fields: []Field{
				{Key: "account_holder", Label: "Account Holder", Required: true},
				{Key: "account_number", Label: "Account Number", Required: true},
				{Key: "bank_name", Label: "Bank Name"},
				{Key: "iban", Label: "IBAN"},
				{Key: "period_start", Label: "Statement Period Start"},
				{Key: "period_end", Label: "Statement Period End"},
				{Key: "opening_balance", Label: "Opening Balance"},
				{Key: "closing_balance", Label: "Closing Balance"},
			},
		},
	}
}
