package log

import "fintrack/internal/core"

// Common field names for structured logging
const (
	FieldComponent  = "component"
	FieldRequestID  = "request_id"
	FieldMethod     = "method"
	FieldURL        = "url"
	FieldStatusCode = "status_code"
	FieldDuration   = "duration_ms"
	FieldSuccess    = "success"
	FieldError      = "error"
	FieldErrorType  = "error_type"
	FieldOperation  = "operation"
	FieldStore      = "store"
	FieldRecordID   = "record_id"
	FieldCount      = "count"
	FieldFileName   = "file_name"
	FieldFileType   = "file_type"
	FieldFileSize   = "file_size"
)

// Components defines standard component names
const (
	ComponentApp         = "app"
	ComponentCLI         = "cli"
	ComponentStore       = "store"
	ComponentAPI         = "api"
	ComponentCredentials = "credentials"
	ComponentStorage     = "storage"
	ComponentEvents      = "events"
	ComponentAMQP        = "amqp"
	ComponentSheets      = "sheets"
	ComponentFakeAPI     = "fakeapi"
)

// Operations defines standard operation names
const (
	OpFetch     = "fetch_all"
	OpImport    = "import"
	OpDelete    = "delete"
	OpStats     = "stats"
	OpReconcile = "reconcile"
	OpPersist   = "persist"
	OpRehydrate = "rehydrate"
	OpExport    = "export"
	OpPublish   = "publish"
)

// LogFields provides a builder pattern for structured log fields
type LogFields map[string]any

// NewFields creates a new LogFields instance
func NewFields() LogFields {
	return make(LogFields)
}

// WithStore adds the store name field
func (f LogFields) WithStore(name string) LogFields {
	f[FieldStore] = name
	return f
}

// WithRecord adds the record id field
func (f LogFields) WithRecord(id int64) LogFields {
	f[FieldRecordID] = id
	return f
}

// WithCount adds a count field
func (f LogFields) WithCount(n int) LogFields {
	f[FieldCount] = n
	return f
}

// WithError adds error and error_type fields
func (f LogFields) WithError(err error) LogFields {
	if err != nil {
		f[FieldError] = err.Error()
		f[FieldErrorType] = core.ErrorKind(err)
	}
	return f
}

// WithOperation adds operation field
func (f LogFields) WithOperation(op string) LogFields {
	f[FieldOperation] = op
	return f
}

// WithUpload adds the file name, type and size of an upload
func (f LogFields) WithUpload(u core.Upload) LogFields {
	f[FieldFileName] = u.Name
	f[FieldFileType] = u.Type
	f[FieldFileSize] = u.Size
	return f
}

// WithHTTPResponse adds HTTP response fields
func (f LogFields) WithHTTPResponse(statusCode int, durationMs int64) LogFields {
	f[FieldStatusCode] = statusCode
	f[FieldDuration] = durationMs
	f[FieldSuccess] = statusCode > 0 && statusCode < 400
	return f
}

// ToSlice converts LogFields to a slice for slog
func (f LogFields) ToSlice() []any {
	slice := make([]any, 0, len(f)*2)
	for k, v := range f {
		slice = append(slice, k, v)
	}
	return slice
}
