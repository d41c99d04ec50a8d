package model

// FormType is a read-only configuration catalog entry.
type FormType struct {
	FormType   string   `json:"formType"`
	FormName   string   `json:"formName"`
	UserCanAdd bool     `json:"userCanAdd"`
	FieldTypes []string `json:"fieldTypes"`
}

// Declares reports whether field is part of the form type's field list.
func (f *FormType) Declares(field string) bool {
	for _, ft := range f.FieldTypes {
		if ft == field {
			return true
		}
	}
	return false
}

// ConfigurationData is the response of the configuration endpoint.
type ConfigurationData struct {
	FormTypes []FormType `json:"formTypes"`
}

// Customer is a workspace ("customer data entry") owned by the user.
type Customer struct {
	Name     string `json:"name"`
	Modified string `json:"modified"`
	DBVer    string `json:"dbver"`
}

// BasicInfo is the server version and identity of the signed-in user.
type BasicInfo struct {
	ProductVersion string `json:"productVersion"`
	UserEmail      string `json:"userEmail"`
}

// MessageType classifies processing messages embedded in results.
type MessageType string

const (
	MessageFatal   MessageType = "fatal"
	MessageWarning MessageType = "warning"
	MessageInfo    MessageType = "info"
)

// ProcessingMessage is a backend note attached to a result.
type ProcessingMessage struct {
	Type MessageType `json:"type"`
	Text string      `json:"text"`
}

// ResultDescriptor describes one generated result file.
type ResultDescriptor struct {
	FileName string              `json:"fileName"`
	TaxYear  string              `json:"taxYear,omitempty"`
	Messages []ProcessingMessage `json:"messages,omitempty"`
}

// Fatal reports whether any message is fatal.
func (r *ResultDescriptor) Fatal() bool {
	for _, m := range r.Messages {
		if m.Type == MessageFatal {
			return true
		}
	}
	return false
}

// TaxResultRow is one line of a tax calculation table.
type TaxResultRow struct {
	Title  string `json:"title"`
	Spouse string `json:"spouse"`
	Main   string `json:"registered"`
	Total  string `json:"total"`
}
