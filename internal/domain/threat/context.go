package threat

// InputKind is the semantic type of a scanned value. It selects the second
// pass of type-specific rules after the signature battery runs.
type InputKind string

const (
	KindFreeText   InputKind = "free_text"
	KindEmail      InputKind = "email"
	KindURL        InputKind = "url"
	KindFilename   InputKind = "filename"
	KindUsername   InputKind = "username"
	KindPassword   InputKind = "password"
	KindBackupPath InputKind = "backup_path"
	KindBucketName InputKind = "bucket_name"
	KindHostname   InputKind = "hostname"
)

// Origin records where the scanned value entered the system.
type Origin string

const (
	OriginWebForm    Origin = "web_form"
	OriginAPI        Origin = "api"
	OriginFileUpload Origin = "file_upload"
	OriginConfig     Origin = "config"
	OriginCLI        Origin = "cli"
)

// Context carries the semantic context for one Scan call. Immutable once
// constructed; build one per call site.
type Context struct {
	Kind      InputKind
	Origin    Origin
	Field     string // logical field name, used in finding descriptions

	// Actor context, propagated into findings for audit correlation.
	UserID    string
	Role      string
	SessionID string
	RemoteIP  string

	// Strict enables the tighter variants of the type-specific rules
	// (longer minimum passwords, no lenient hostname forms).
	Strict bool

	// MaxLength caps the accepted input size. Zero means the kind default.
	MaxLength int
}

// kind defaults for MaxLength when the context does not set one
var defaultMaxLength = map[InputKind]int{
	KindFreeText:   4096,
	KindEmail:      255,
	KindURL:        2048,
	KindFilename:   255,
	KindUsername:   64,
	KindPassword:   128,
	KindBackupPath: 1024,
	KindBucketName: 63,
	KindHostname:   253,
}

// EffectiveMaxLength returns the configured MaxLength, or the default for
// the context's kind.
func (c Context) EffectiveMaxLength() int {
	if c.MaxLength > 0 {
		return c.MaxLength
	}
	if n, ok := defaultMaxLength[c.Kind]; ok {
		return n
	}
	return defaultMaxLength[KindFreeText]
}
