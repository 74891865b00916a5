package threat

// Severity is the ordered severity scale for findings.
type Severity string

const (
	SeverityLow      Severity = "LOW"
	SeverityMedium   Severity = "MEDIUM"
	SeverityHigh     Severity = "HIGH"
	SeverityCritical Severity = "CRITICAL"
)

// String returns the string representation of the severity
func (s Severity) String() string {
	return string(s)
}

// Level returns a numeric level for the severity (higher = more severe)
func (s Severity) Level() int {
	switch s {
	case SeverityLow:
		return 1
	case SeverityMedium:
		return 2
	case SeverityHigh:
		return 3
	case SeverityCritical:
		return 4
	default:
		return 0
	}
}

// IsAtLeast returns true if this severity is at least as severe as the other
func (s Severity) IsAtLeast(other Severity) bool {
	return s.Level() >= other.Level()
}

// Category identifies the class of a detected threat.
type Category string

const (
	// Injection family
	CategorySQLInjection     Category = "sql_injection"
	CategoryNoSQLInjection   Category = "nosql_injection"
	CategoryLDAPInjection    Category = "ldap_injection"
	CategoryCommandInjection Category = "command_injection"
	CategoryTemplateInjection Category = "template_injection"
	CategoryXPathInjection   Category = "xpath_injection"
	CategoryHeaderInjection  Category = "header_injection"

	// Markup and script attacks
	CategoryCrossSiteScripting Category = "cross_site_scripting"
	CategoryHTMLInjection      Category = "html_injection"
	CategoryCSSInjection       Category = "css_injection"
	CategoryXMLExternalEntity  Category = "xml_external_entity"
	CategoryXMLBomb            Category = "xml_bomb"

	// Path and file attacks
	CategoryPathTraversal          Category = "path_traversal"
	CategoryNullByte               Category = "null_byte"
	CategoryDangerousFileExtension Category = "dangerous_file_extension"
	CategoryArchivePathEscape      Category = "archive_path_escape"

	// Authentication weaknesses
	CategoryWeakPassword      Category = "weak_password"
	CategoryCredentialExposure Category = "credential_exposure"
	CategoryInsecureURLScheme Category = "insecure_url_scheme"
	CategoryOpenRedirect      Category = "open_redirect"

	// Format errors
	CategoryInvalidFormat     Category = "invalid_format"
	CategoryExcessiveLength   Category = "excessive_length"
	CategoryControlCharacters Category = "control_characters"

	// Resource abuse and exfiltration
	CategoryDenialOfService  Category = "denial_of_service"
	CategoryDataExfiltration Category = "data_exfiltration"
)

// String returns the string representation of the category
func (c Category) String() string {
	return string(c)
}

// categoryProfile holds the fixed properties of a threat category. Keeping
// them in a table (rather than methods hand-listing categories) keeps the
// classification data in one place.
type categoryProfile struct {
	DefaultSeverity Severity
	Injection       bool // part of the injection family
	FileRelated     bool
	RequiresBlock   bool // callers should reject the request
	RequiresAudit   bool // callers should emit an audit event
	RequiresNotify  bool // security team notification
}

var categoryProfiles = map[Category]categoryProfile{
	CategorySQLInjection:      {SeverityCritical, true, false, true, true, true},
	CategoryNoSQLInjection:    {SeverityCritical, true, false, true, true, true},
	CategoryLDAPInjection:     {SeverityHigh, true, false, true, true, true},
	CategoryCommandInjection:  {SeverityCritical, true, false, true, true, true},
	CategoryTemplateInjection: {SeverityHigh, true, false, true, true, false},
	CategoryXPathInjection:    {SeverityHigh, true, false, true, true, false},
	CategoryHeaderInjection:   {SeverityMedium, true, false, true, true, false},

	CategoryCrossSiteScripting: {SeverityHigh, false, false, true, true, true},
	CategoryHTMLInjection:      {SeverityMedium, false, false, true, true, false},
	CategoryCSSInjection:       {SeverityMedium, false, false, true, false, false},
	CategoryXMLExternalEntity:  {SeverityHigh, false, false, true, true, true},
	CategoryXMLBomb:            {SeverityHigh, false, false, true, true, false},

	CategoryPathTraversal:          {SeverityHigh, false, true, true, true, true},
	CategoryNullByte:               {SeverityHigh, false, true, true, true, false},
	CategoryDangerousFileExtension: {SeverityHigh, false, true, true, true, false},
	CategoryArchivePathEscape:      {SeverityHigh, false, true, true, true, true},

	CategoryWeakPassword:       {SeverityMedium, false, false, false, false, false},
	CategoryCredentialExposure: {SeverityHigh, false, false, false, true, true},
	CategoryInsecureURLScheme:  {SeverityMedium, false, false, true, false, false},
	CategoryOpenRedirect:       {SeverityMedium, false, false, true, true, false},

	CategoryInvalidFormat:     {SeverityLow, false, false, false, false, false},
	CategoryExcessiveLength:   {SeverityLow, false, false, false, false, false},
	CategoryControlCharacters: {SeverityMedium, false, false, false, false, false},

	CategoryDenialOfService:  {SeverityHigh, false, false, true, true, false},
	CategoryDataExfiltration: {SeverityCritical, false, false, true, true, true},
}

// DefaultSeverity returns the severity assigned to findings of this category.
func (c Category) DefaultSeverity() Severity {
	if p, ok := categoryProfiles[c]; ok {
		return p.DefaultSeverity
	}
	return SeverityMedium
}

// IsInjection returns true for injection-family categories.
func (c Category) IsInjection() bool {
	return categoryProfiles[c].Injection
}

// IsFileRelated returns true for path and file attack categories.
func (c Category) IsFileRelated() bool {
	return categoryProfiles[c].FileRelated
}

// RequiresBlocking reports whether a finding of this category should cause
// the caller to reject the request.
func (c Category) RequiresBlocking() bool {
	return categoryProfiles[c].RequiresBlock
}

// RequiresAudit reports whether a finding of this category should produce an
// audit event.
func (c Category) RequiresAudit() bool {
	return categoryProfiles[c].RequiresAudit
}

// RequiresNotification reports whether the security team should be paged for
// findings of this category.
func (c Category) RequiresNotification() bool {
	return categoryProfiles[c].RequiresNotify
}

// AllCategories returns every known category.
func AllCategories() []Category {
	out := make([]Category, 0, len(categoryProfiles))
	for c := range categoryProfiles {
		out = append(out, c)
	}
	return out
}
